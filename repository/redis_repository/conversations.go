package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/redis/go-redis/v9"
)

const (
	conversationsKey = "conversations"
	currentKey       = "current-conversation"
)

// Conversations keeps the whole conversation set as one JSON document, with
// the current-conversation pointer in a sibling key.
type Conversations struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewConversations stores keys under prefix (default "simplexity"). A zero ttl
// keeps them forever.
func NewConversations(client redis.Cmdable, prefix string, ttl time.Duration) *Conversations {
	if prefix == "" {
		prefix = "simplexity"
	}
	return &Conversations{client: client, prefix: prefix, ttl: ttl}
}

func (r *Conversations) key(name string) string { return r.prefix + ":" + name }

func (r *Conversations) GetAll(ctx context.Context) ([]models.Conversation, error) {
	val, err := r.client.Get(ctx, r.key(conversationsKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.Conversation{}, nil
	}
	if err != nil {
		return nil, err
	}
	var convs []models.Conversation
	if err := json.Unmarshal(val, &convs); err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, nil
}

func (r *Conversations) Get(ctx context.Context, id string) (models.Conversation, error) {
	convs, err := r.GetAll(ctx)
	if err != nil {
		return models.Conversation{}, err
	}
	for _, c := range convs {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Conversation{}, models.ErrConversationNotFound
}

func (r *Conversations) SaveAll(ctx context.Context, convs []models.Conversation) error {
	if convs == nil {
		convs = []models.Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(conversationsKey), data, r.ttl).Err()
}

func (r *Conversations) CurrentID(ctx context.Context) (string, error) {
	id, err := r.client.Get(ctx, r.key(currentKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (r *Conversations) SetCurrentID(ctx context.Context, id string) error {
	return r.client.Set(ctx, r.key(currentKey), id, r.ttl).Err()
}

func (r *Conversations) ClearCurrentID(ctx context.Context) error {
	return r.client.Del(ctx, r.key(currentKey)).Err()
}
