package conversation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/simplexity/internal/store"
	"github.com/mohammad-safakhou/simplexity/internal/stream"
	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndjson(t *testing.T, events ...models.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range events {
		line, err := stream.Encode(ev)
		require.NoError(t, err)
		buf.Write(line)
	}
	return buf.Bytes()
}

// chunkedBody hands out the payload a few bytes at a time.
type chunkedBody struct {
	data []byte
	size int
}

func (c *chunkedBody) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func (c *chunkedBody) Close() error { return nil }

type fakeAPI struct {
	mu          sync.Mutex
	search      []byte
	searchErr   error
	generate    []byte
	generateErr error
	questions   []string
	suggestErr  error
	// searchBody and generateBody replace the canned payloads when set.
	searchBody   io.ReadCloser
	generateBody io.ReadCloser

	searchCalls int
	genReqs     []models.GenerateRequest
	suggestReqs []models.SuggestRequest
	block       chan struct{}
}

func (f *fakeAPI) Search(ctx context.Context, query string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.searchCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchBody != nil {
		return f.searchBody, nil
	}
	return &chunkedBody{data: append([]byte(nil), f.search...), size: 7}, nil
}

func (f *fakeAPI) Generate(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.genReqs = append(f.genReqs, req)
	f.mu.Unlock()
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	if f.generateBody != nil {
		return f.generateBody, nil
	}
	return &chunkedBody{data: append([]byte(nil), f.generate...), size: 5}, nil
}

func (f *fakeAPI) SuggestQuestions(ctx context.Context, req models.SuggestRequest) ([]string, error) {
	f.mu.Lock()
	f.suggestReqs = append(f.suggestReqs, req)
	f.mu.Unlock()
	return f.questions, f.suggestErr
}

type recordingObserver struct {
	NopObserver
	mu     sync.Mutex
	states []State
	text   string
}

func (r *recordingObserver) OnState(_ string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingObserver) OnText(_ string, delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text += delta
}

var twoSources = []models.SearchResult{
	{Title: "X", Link: "https://x.example", Snippet: "x", Position: 1},
	{Title: "Y", Link: "https://y.example", Snippet: "y", Position: 2},
}

func happyAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		search: ndjson(t, models.ResultEvent(twoSources[0]), models.ResultEvent(twoSources[1]), models.DoneEvent()),
		generate: ndjson(t,
			models.TextEvent("X is "),
			models.TextEvent("a thing [1]."),
			models.CitationsEvent([]models.Citation{{Number: 1, SourceIndex: 0, Text: "[1]"}}),
			models.DoneEvent(),
		),
		questions: []string{"What is Y?", "not a question", ""},
	}
}

func TestAskEndToEnd(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	repo := NewRepository(store.NewMemory())
	obs := &recordingObserver{}
	o := NewOrchestrator(api, repo, WithObserver(obs))

	turn, err := o.Ask(ctx, "What is X?")
	require.NoError(t, err)
	o.Wait()

	assert.Equal(t, Complete, turn.State)
	assert.NoError(t, turn.Cause)
	assert.Equal(t, "X is a thing [1].", turn.Answer.Content)
	assert.Len(t, turn.Answer.Sources, 2)
	assert.Len(t, turn.Answer.Citations, 1)
	assert.False(t, turn.Answer.IsLoading)
	assert.Equal(t, []State{SearchPending, SearchStreaming, GeneratePending, GenerateStreaming, Complete}, obs.states)
	assert.Equal(t, "X is a thing [1].", obs.text)

	conv, err := repo.Get(ctx, turn.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.MessageTypeQuery, conv.Messages[0].Type)
	assert.Equal(t, "What is X?", conv.Title)
	stored := conv.Messages[1]
	assert.Equal(t, "X is a thing [1].", stored.Content)
	assert.Equal(t, []string{"What is Y?"}, stored.SuggestedQuestions)

	require.Len(t, api.genReqs, 1)
	assert.Equal(t, twoSources, api.genReqs[0].Sources)
	require.Len(t, api.suggestReqs, 1)
	assert.Equal(t, "X is a thing [1].", api.suggestReqs[0].CurrentAnswer)
}

func TestAskGenerateEndsAbruptly(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	api.generate = ndjson(t, models.TextEvent("partial"))
	repo := NewRepository(store.NewMemory())
	o := NewOrchestrator(api, repo)

	turn, err := o.Ask(ctx, "What is X?")
	require.NoError(t, err)
	o.Wait()

	assert.Equal(t, Errored, turn.State)
	assert.ErrorIs(t, turn.Cause, errMissingDone)
	stored, err := repo.Message(ctx, turn.ConversationID, turn.AnswerID)
	require.NoError(t, err)
	assert.Equal(t, FixedErrorMessage, stored.Content)
	assert.False(t, stored.IsLoading)
	assert.Len(t, stored.Sources, 2)
	assert.Empty(t, api.suggestReqs)
}

func TestAskSearchFailure(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	api.searchErr = &StatusError{Op: "search", Code: 502}
	repo := NewRepository(store.NewMemory())
	o := NewOrchestrator(api, repo)

	turn, err := o.Ask(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, Errored, turn.State)
	var se *StatusError
	assert.True(t, errors.As(turn.Cause, &se))
	assert.Equal(t, FixedErrorMessage, turn.Answer.Content)
	assert.Empty(t, api.genReqs, "generate must not run after a failed search")
}

func TestAskSearchWithoutDoneFails(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	api.search = ndjson(t, models.ResultEvent(twoSources[0]))
	o := NewOrchestrator(api, NewRepository(store.NewMemory()))

	turn, err := o.Ask(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, Errored, turn.State)
	assert.Empty(t, api.genReqs)
}

func TestAskSkipsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	api.search = append(ndjson(t, models.ResultEvent(twoSources[0])), []byte("{oops\n")...)
	api.search = append(api.search, ndjson(t, models.ResultEvent(twoSources[1]), models.DoneEvent())...)
	o := NewOrchestrator(api, NewRepository(store.NewMemory()))

	turn, err := o.Ask(ctx, "q")
	require.NoError(t, err)
	o.Wait()
	assert.Equal(t, Complete, turn.State)
	assert.Len(t, turn.Answer.Sources, 2)
}

func TestAskEmptyQuery(t *testing.T) {
	api := happyAPI(t)
	repo := NewRepository(store.NewMemory())
	o := NewOrchestrator(api, repo)

	_, err := o.Ask(context.Background(), "   \n")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, api.searchCalls)
	all, _ := repo.List(context.Background())
	assert.Empty(t, all)
}

func TestAskRejectsSecondQueryInFlight(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	api.block = make(chan struct{})
	repo := NewRepository(store.NewMemory())
	conv, err := repo.Create(ctx)
	require.NoError(t, err)
	o := NewOrchestrator(api, repo)
	ctx = WithConversation(ctx, conv.ID)

	done := make(chan Turn)
	go func() {
		turn, _ := o.Ask(ctx, "first")
		done <- turn
	}()
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.searchCalls == 1
	}, timeout, tick)

	_, err = o.Ask(ctx, "second")
	assert.ErrorIs(t, err, ErrQueryInFlight)

	close(api.block)
	first := <-done
	o.Wait()
	assert.Equal(t, Complete, first.State)

	got, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestAskSendsLastFourMessagesAsHistory(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	repo := NewRepository(store.NewMemory())
	o := NewOrchestrator(api, repo)

	for _, q := range []string{"one?", "two?", "three?"} {
		_, err := o.Ask(ctx, q)
		require.NoError(t, err)
	}
	o.Wait()

	require.Len(t, api.genReqs, 3)
	assert.Empty(t, api.genReqs[0].ConversationHistory)
	last := api.genReqs[2].ConversationHistory
	require.Len(t, last, 4)
	assert.Equal(t, "two?", last[2].Content)
	assert.Equal(t, "X is a thing [1].", last[3].Content)
	var third models.SuggestRequest
	for _, r := range api.suggestReqs {
		if r.CurrentQuery == "three?" {
			third = r
		}
	}
	assert.Equal(t, last, third.ConversationHistory)
}

func TestAskFollowUpFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	api.suggestErr = errors.New("boom")
	repo := NewRepository(store.NewMemory())
	o := NewOrchestrator(api, repo)

	turn, err := o.Ask(ctx, "q")
	require.NoError(t, err)
	o.Wait()
	assert.Equal(t, Complete, turn.State)
	stored, err := repo.Message(ctx, turn.ConversationID, turn.AnswerID)
	require.NoError(t, err)
	assert.Empty(t, stored.SuggestedQuestions)
	assert.Equal(t, "X is a thing [1].", stored.Content)
}

func TestAskUsesConversationFromContext(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	repo := NewRepository(store.NewMemory())
	pinned, err := repo.Create(ctx)
	require.NoError(t, err)
	current, err := repo.Create(ctx)
	require.NoError(t, err)
	o := NewOrchestrator(api, repo)

	turn, err := o.Ask(WithConversation(ctx, pinned.ID), "q")
	require.NoError(t, err)
	o.Wait()
	assert.Equal(t, pinned.ID, turn.ConversationID)

	untouched, err := repo.Get(ctx, current.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.Messages)

	_, err = o.Ask(WithConversation(ctx, "missing"), "q")
	assert.ErrorIs(t, err, models.ErrConversationNotFound)
}

// ctxStore refuses every call once ctx is done, like a store behind a network.
type ctxStore struct{ *store.Memory }

func (s ctxStore) GetAll(ctx context.Context) ([]models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Memory.GetAll(ctx)
}

func (s ctxStore) Get(ctx context.Context, id string) (models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, err
	}
	return s.Memory.Get(ctx, id)
}

func (s ctxStore) SaveAll(ctx context.Context, convs []models.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.SaveAll(ctx, convs)
}

func (s ctxStore) CurrentID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Memory.CurrentID(ctx)
}

func (s ctxStore) SetCurrentID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.SetCurrentID(ctx, id)
}

func (s ctxStore) ClearCurrentID(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.ClearCurrentID(ctx)
}

// cancelBody hands out its payload, then cancels the caller and fails the
// next read the way a dropped connection does.
type cancelBody struct {
	data   []byte
	cancel context.CancelFunc
}

func (b *cancelBody) Read(p []byte) (int, error) {
	if len(b.data) > 0 {
		n := copy(p, b.data)
		b.data = b.data[n:]
		return n, nil
	}
	b.cancel()
	return 0, context.Canceled
}

func (b *cancelBody) Close() error { return nil }

func TestAskCancelledDuringGenerateStillRecordsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := happyAPI(t)
	api.generateBody = &cancelBody{data: ndjson(t, models.TextEvent("partial ")), cancel: cancel}
	repo := NewRepository(ctxStore{store.NewMemory()})
	o := NewOrchestrator(api, repo)

	turn, err := o.Ask(ctx, "What is X?")
	require.NoError(t, err)
	o.Wait()

	assert.Equal(t, Errored, turn.State)
	assert.ErrorIs(t, turn.Cause, context.Canceled)
	stored, err := repo.Message(context.Background(), turn.ConversationID, turn.AnswerID)
	require.NoError(t, err)
	assert.Equal(t, FixedErrorMessage, stored.Content)
	assert.False(t, stored.IsLoading)
	assert.Empty(t, api.suggestReqs)
}

func TestAskCancelledDuringSearchClearsLoading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := happyAPI(t)
	api.searchBody = &cancelBody{data: ndjson(t, models.ResultEvent(twoSources[0])), cancel: cancel}
	repo := NewRepository(ctxStore{store.NewMemory()})
	o := NewOrchestrator(api, repo)

	turn, err := o.Ask(ctx, "q")
	require.NoError(t, err)

	assert.Equal(t, Errored, turn.State)
	stored, err := repo.Message(context.Background(), turn.ConversationID, turn.AnswerID)
	require.NoError(t, err)
	assert.Equal(t, FixedErrorMessage, stored.Content)
	assert.False(t, stored.IsLoading)
	assert.Len(t, stored.Sources, 1)
	assert.Empty(t, api.genReqs)
}

func TestAskAcceptsNextQueryOnceTurnIsTerminal(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(t)
	api.searchErr = errors.New("boom")
	repo := NewRepository(store.NewMemory())
	o := NewOrchestrator(api, repo)

	first, err := o.Ask(ctx, "one?")
	require.NoError(t, err)
	require.True(t, first.State.Terminal())

	api.searchErr = nil
	second, err := o.Ask(WithConversation(ctx, first.ConversationID), "two?")
	require.NoError(t, err)
	o.Wait()
	assert.Equal(t, Complete, second.State)

	require.Len(t, api.genReqs, 1)
	hist := api.genReqs[0].ConversationHistory
	require.Len(t, hist, 2)
	assert.Equal(t, "one?", hist[0].Content)
	assert.Equal(t, FixedErrorMessage, hist[1].Content)
}
