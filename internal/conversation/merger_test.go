package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammad-safakhou/simplexity/internal/store"
	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often the full set is written.
type countingStore struct {
	*store.Memory
	saves int
}

func (c *countingStore) SaveAll(ctx context.Context, convs []models.Conversation) error {
	c.saves++
	return c.Memory.SaveAll(ctx, convs)
}

func newAnswer(t *testing.T, repo *Repository) (models.Conversation, models.Message) {
	t.Helper()
	ctx := context.Background()
	conv, err := repo.Create(ctx)
	require.NoError(t, err)
	answer := models.Message{ID: repo.NewID(), Type: models.MessageTypeAnswer, IsLoading: true}
	require.NoError(t, repo.AddMessage(ctx, conv.ID, answer))
	return conv, answer
}

func TestMergerAppendsTextDeltas(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemory())
	conv, answer := newAnswer(t, repo)
	m := NewMerger(repo, conv.ID, answer.ID)

	msg, err := m.Apply(ctx, models.TextEvent("A"))
	require.NoError(t, err)
	assert.False(t, msg.IsLoading)
	_, err = m.Apply(ctx, models.TextEvent("B"))
	require.NoError(t, err)
	_, err = m.Apply(ctx, models.TextEvent("C"))
	require.NoError(t, err)

	stored, err := repo.Message(ctx, conv.ID, answer.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABC", stored.Content)
	assert.False(t, stored.IsLoading)
}

func TestMergerResultsAndCitations(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemory())
	conv, answer := newAnswer(t, repo)
	m := NewMerger(repo, conv.ID, answer.ID)

	_, err := m.Apply(ctx, models.ResultEvent(models.SearchResult{Link: "https://a", Position: 1}))
	require.NoError(t, err)
	msg, err := m.Apply(ctx, models.ResultEvent(models.SearchResult{Link: "https://b", Position: 2}))
	require.NoError(t, err)
	assert.True(t, msg.IsLoading, "sources alone do not end loading")
	require.Len(t, msg.Sources, 2)
	assert.Equal(t, "https://b", msg.Sources[1].Link)

	_, err = m.Apply(ctx, models.CitationsEvent([]models.Citation{{Number: 1}, {Number: 2}}))
	require.NoError(t, err)
	msg, err = m.Apply(ctx, models.CitationsEvent([]models.Citation{{Number: 3, Text: "[3]"}}))
	require.NoError(t, err)
	assert.Equal(t, []models.Citation{{Number: 3, Text: "[3]"}}, msg.Citations)
}

func TestMergerDoneDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Memory: store.NewMemory()}
	repo := NewRepository(cs)
	conv, answer := newAnswer(t, repo)
	m := NewMerger(repo, conv.ID, answer.ID)

	before := cs.saves
	_, err := m.Apply(ctx, models.DoneEvent())
	require.NoError(t, err)
	_, err = m.Apply(ctx, models.Event{Type: "progress"})
	require.NoError(t, err)
	assert.Equal(t, before, cs.saves)
}

func TestMergerIgnoresAbandonedConversation(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemory())
	old, answer := newAnswer(t, repo)
	m := NewMerger(repo, old.ID, answer.ID)

	require.NoError(t, repo.Delete(ctx, old.ID))
	fresh, err := repo.Create(ctx)
	require.NoError(t, err)

	_, err = m.Apply(ctx, models.TextEvent("late"))
	assert.True(t, errors.Is(err, models.ErrConversationNotFound))

	got, err := repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestMergerFailKeepsSources(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemory())
	conv, answer := newAnswer(t, repo)
	m := NewMerger(repo, conv.ID, answer.ID)

	_, err := m.Apply(ctx, models.ResultEvent(models.SearchResult{Link: "https://a"}))
	require.NoError(t, err)
	_, err = m.Apply(ctx, models.TextEvent("partial"))
	require.NoError(t, err)

	msg, err := m.Fail(ctx, FixedErrorMessage)
	require.NoError(t, err)
	assert.Equal(t, FixedErrorMessage, msg.Content)
	assert.False(t, msg.IsLoading)
	assert.Len(t, msg.Sources, 1)
}
