package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/simplexity/internal/store"
	"github.com/mohammad-safakhou/simplexity/models"
)

// MaxTitleRunes bounds the title derived from a conversation's first query.
const MaxTitleRunes = 80

// Repository implements conversation-level operations over a Persistence.
//
// Every mutation reads the full set, changes it and writes it back. Writers in
// this process are serialised, but two processes sharing a store can still
// lose each other's updates; the system assumes a single active writer.
type Repository struct {
	mu    sync.Mutex
	store store.Persistence
	now   func() time.Time
}

func NewRepository(p store.Persistence) *Repository {
	return &Repository{store: p, now: time.Now}
}

// NewID returns a fresh message or conversation id.
func (r *Repository) NewID() string { return uuid.NewString() }

// Now returns the current time in unix milliseconds.
func (r *Repository) Now() int64 { return r.now().UnixMilli() }

func (r *Repository) List(ctx context.Context) ([]models.Conversation, error) {
	return r.store.GetAll(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (models.Conversation, error) {
	return r.store.Get(ctx, id)
}

// Create appends an empty conversation and makes it current.
func (r *Repository) Create(ctx context.Context) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv := models.Conversation{ID: r.NewID(), Messages: []models.Message{}, CreatedAt: r.Now()}
	all, err := r.store.GetAll(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("load conversations: %w", err)
	}
	if err := r.store.SaveAll(ctx, append(all, conv)); err != nil {
		return models.Conversation{}, fmt.Errorf("save conversations: %w", err)
	}
	if err := r.store.SetCurrentID(ctx, conv.ID); err != nil {
		return models.Conversation{}, fmt.Errorf("set current conversation: %w", err)
	}
	return conv, nil
}

// GetOrCreateCurrent returns the current conversation, creating one when the
// pointer is unset or dangling.
func (r *Repository) GetOrCreateCurrent(ctx context.Context) (models.Conversation, error) {
	id, err := r.store.CurrentID(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("read current conversation: %w", err)
	}
	if id != "" {
		conv, err := r.store.Get(ctx, id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, models.ErrConversationNotFound) {
			return models.Conversation{}, err
		}
	}
	return r.Create(ctx)
}

// SetCurrent moves the current pointer to an existing conversation.
func (r *Repository) SetCurrent(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, id); err != nil {
		return err
	}
	return r.store.SetCurrentID(ctx, id)
}

func (r *Repository) mutate(ctx context.Context, convID string, fn func(*models.Conversation) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	idx := -1
	for i := range all {
		if all[i].ID == convID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", models.ErrConversationNotFound, convID)
	}
	if err := fn(&all[idx]); err != nil {
		return err
	}
	if err := r.store.SaveAll(ctx, all); err != nil {
		return fmt.Errorf("save conversations: %w", err)
	}
	return nil
}

// AddMessage appends msg. The first query also names the conversation.
func (r *Repository) AddMessage(ctx context.Context, convID string, msg models.Message) error {
	_, err := r.AppendMessages(ctx, convID, msg)
	return err
}

// AppendMessages appends msgs in a single write, so either all of them land or
// none do, and returns a copy of the messages that preceded them.
func (r *Repository) AppendMessages(ctx context.Context, convID string, msgs ...models.Message) ([]models.Message, error) {
	var prior []models.Message
	err := r.mutate(ctx, convID, func(c *models.Conversation) error {
		prior = lastMessages(c.Messages, len(c.Messages))
		for _, msg := range msgs {
			c.Messages = append(c.Messages, msg.Clone())
			if c.Title == "" && msg.Type == models.MessageTypeQuery {
				c.Title = titleFrom(msg.Content)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prior, nil
}

// UpdateMessage applies fn to one message and persists the result. Both ids
// are resolved against the stored set on every call.
func (r *Repository) UpdateMessage(ctx context.Context, convID, msgID string, fn func(*models.Message)) (models.Message, error) {
	var out models.Message
	err := r.mutate(ctx, convID, func(c *models.Conversation) error {
		i := c.MessageIndex(msgID)
		if i < 0 {
			return fmt.Errorf("%w: %s", models.ErrMessageNotFound, msgID)
		}
		fn(&c.Messages[i])
		out = c.Messages[i].Clone()
		return nil
	})
	return out, err
}

// Message reads one message without modifying anything.
func (r *Repository) Message(ctx context.Context, convID, msgID string) (models.Message, error) {
	conv, err := r.store.Get(ctx, convID)
	if err != nil {
		return models.Message{}, err
	}
	i := conv.MessageIndex(msgID)
	if i < 0 {
		return models.Message{}, fmt.Errorf("%w: %s", models.ErrMessageNotFound, msgID)
	}
	return conv.Messages[i], nil
}

// Delete removes a conversation and clears the pointer if it was current.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	kept := all[:0]
	for _, c := range all {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if err := r.store.SaveAll(ctx, kept); err != nil {
		return fmt.Errorf("save conversations: %w", err)
	}
	current, err := r.store.CurrentID(ctx)
	if err != nil {
		return fmt.Errorf("read current conversation: %w", err)
	}
	if current == id {
		return r.store.ClearCurrentID(ctx)
	}
	return nil
}

// Clear drops every conversation and the current pointer.
func (r *Repository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveAll(ctx, []models.Conversation{}); err != nil {
		return err
	}
	return r.store.ClearCurrentID(ctx)
}

func titleFrom(query string) string {
	t := strings.Join(strings.Fields(query), " ")
	if utf8.RuneCountInString(t) <= MaxTitleRunes {
		return t
	}
	runes := []rune(t)
	return strings.TrimSpace(string(runes[:MaxTitleRunes-1])) + "…"
}

// lastMessages returns a copy of at most n trailing messages.
func lastMessages(msgs []models.Message, n int) []models.Message {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
