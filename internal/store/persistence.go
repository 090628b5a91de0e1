package store

import (
	"context"
	"sync"

	"github.com/mohammad-safakhou/simplexity/models"
)

// Persistence stores the full conversation set plus a pointer to the
// conversation currently in focus. Writers replace the whole set; there is no
// locking across a read-modify-write cycle.
type Persistence interface {
	GetAll(ctx context.Context) ([]models.Conversation, error)
	// Get returns models.ErrConversationNotFound for unknown ids.
	Get(ctx context.Context, id string) (models.Conversation, error)
	SaveAll(ctx context.Context, convs []models.Conversation) error
	// CurrentID returns "" when no conversation is selected.
	CurrentID(ctx context.Context) (string, error)
	SetCurrentID(ctx context.Context, id string) error
	ClearCurrentID(ctx context.Context) error
}

// Memory is an in-process Persistence. Values are deep-copied on the way in
// and out so callers never share message slices.
type Memory struct {
	mu      sync.RWMutex
	convs   []models.Conversation
	current string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) GetAll(ctx context.Context) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.convs), nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.convs {
		if c.ID == id {
			return c.Clone(), nil
		}
	}
	return models.Conversation{}, models.ErrConversationNotFound
}

func (m *Memory) SaveAll(ctx context.Context, convs []models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = cloneAll(convs)
	return nil
}

func (m *Memory) CurrentID(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, nil
}

func (m *Memory) SetCurrentID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = id
	return nil
}

func (m *Memory) ClearCurrentID(ctx context.Context) error {
	return m.SetCurrentID(ctx, "")
}

func cloneAll(in []models.Conversation) []models.Conversation {
	out := make([]models.Conversation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
