package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/simplexity/internal/helpers"
	"github.com/mohammad-safakhou/simplexity/internal/stream"
	"github.com/mohammad-safakhou/simplexity/models"
	"go.uber.org/zap"
)

// HistoryWindow is how many prior messages accompany a generate or
// follow-up request.
const HistoryWindow = 4

var (
	ErrEmptyQuery    = errors.New("query is empty")
	ErrQueryInFlight = errors.New("a query is already running for this conversation")
	// errMissingDone marks a phase stream that ended without its done event.
	errMissingDone = errors.New("stream ended without done event")
)

// State is the progress of one query through the pipeline.
type State int

const (
	Idle State = iota
	SearchPending
	SearchStreaming
	GeneratePending
	GenerateStreaming
	Complete
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SearchPending:
		return "search_pending"
	case SearchStreaming:
		return "search_streaming"
	case GeneratePending:
		return "generate_pending"
	case GenerateStreaming:
		return "generate_streaming"
	case Complete:
		return "complete"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == Complete || s == Errored }

// Observer is notified as a turn progresses. Calls happen on the goroutine
// running Ask, except OnSuggestions which runs on the follow-up goroutine.
type Observer interface {
	OnState(conversationID string, s State)
	OnSources(conversationID string, sources []models.SearchResult)
	OnText(conversationID string, delta string)
	OnSuggestions(conversationID string, questions []string)
}

type NopObserver struct{}

func (NopObserver) OnState(string, State) {}
func (NopObserver) OnSources(string, []models.SearchResult) {}
func (NopObserver) OnText(string, string) {}
func (NopObserver) OnSuggestions(string, []string) {}

// Turn is the outcome of one Ask.
type Turn struct {
	ConversationID string
	QueryID        string
	AnswerID       string
	State          State
	Answer         models.Message
	// Cause is the failure behind an Errored turn. It is for logs only; the
	// conversation shows FixedErrorMessage.
	Cause error
}

// Orchestrator runs the search, generate and follow-up phases of a query.
type Orchestrator struct {
	api      API
	repo     *Repository
	logger   *zap.Logger
	observer Observer

	mu sync.Mutex
	// state of the turn running per conversation; terminal or absent means idle
	inFlight map[string]State
	wg       sync.WaitGroup
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func NewOrchestrator(api API, repo *Repository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:      api,
		repo:     repo,
		logger:   zap.NewNop(),
		observer: NopObserver{},
		inFlight: make(map[string]State),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) acquire(convID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.inFlight[convID]; ok && !s.Terminal() {
		return false
	}
	o.inFlight[convID] = Idle
	return true
}

func (o *Orchestrator) release(convID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, convID)
}

// Wait blocks until every follow-up request started by Ask has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) setState(t *Turn, s State) {
	t.State = s
	o.mu.Lock()
	if _, ok := o.inFlight[t.ConversationID]; ok {
		o.inFlight[t.ConversationID] = s
	}
	o.mu.Unlock()
	o.observer.OnState(t.ConversationID, s)
}

// Ask runs one query to completion. Failures inside a phase do not surface as
// an error: the turn ends Errored with the answer replaced by
// FixedErrorMessage. A non-nil error means nothing was started.
func (o *Orchestrator) Ask(ctx context.Context, query string) (Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Turn{}, ErrEmptyQuery
	}

	var (
		conv models.Conversation
		err  error
	)
	if id, ok := ConversationFrom(ctx); ok {
		conv, err = o.repo.Get(ctx, id)
	} else {
		conv, err = o.repo.GetOrCreateCurrent(ctx)
	}
	if err != nil {
		return Turn{}, fmt.Errorf("resolve conversation: %w", err)
	}
	if !o.acquire(conv.ID) {
		return Turn{ConversationID: conv.ID}, ErrQueryInFlight
	}
	defer o.release(conv.ID)

	now := o.repo.Now()
	queryMsg := models.Message{ID: o.repo.NewID(), Type: models.MessageTypeQuery, Content: query, Timestamp: now}
	answerMsg := models.Message{ID: o.repo.NewID(), Type: models.MessageTypeAnswer, Timestamp: now, IsLoading: true}
	// history is taken from the same read that appends, after acquire, so a
	// turn that just finished on this conversation is always included
	prior, err := o.repo.AppendMessages(ctx, conv.ID, queryMsg, answerMsg)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	history := lastMessages(prior, HistoryWindow)

	turn := Turn{ConversationID: conv.ID, QueryID: queryMsg.ID, AnswerID: answerMsg.ID, State: Idle}
	log := o.logger.With(zap.String("conversation", conv.ID), zap.String("answer", answerMsg.ID))
	merger := NewMerger(o.repo, conv.ID, answerMsg.ID)

	o.setState(&turn, SearchPending)
	sources, err := o.searchPhase(ctx, &turn, merger, query, log)
	if err != nil {
		return o.fail(ctx, turn, merger, fmt.Errorf("search: %w", err), log), nil
	}

	o.setState(&turn, GeneratePending)
	req := models.GenerateRequest{Query: query, Sources: sources, ConversationHistory: history}
	if err := o.generatePhase(ctx, &turn, merger, req, log); err != nil {
		return o.fail(ctx, turn, merger, fmt.Errorf("generate: %w", err), log), nil
	}

	// terminal writes must land even when the caller has given up
	answer, err := merger.Finish(context.WithoutCancel(ctx))
	if err != nil {
		return o.fail(ctx, turn, merger, err, log), nil
	}
	turn.Answer = answer
	o.setState(&turn, Complete)

	o.followUp(ctx, merger, models.SuggestRequest{
		CurrentQuery:        query,
		CurrentAnswer:       answer.Content,
		ConversationHistory: history,
	}, log)
	return turn, nil
}

func (o *Orchestrator) fail(ctx context.Context, turn Turn, merger *Merger, cause error, log *zap.Logger) Turn {
	turn.Cause = cause
	log.Warn("query failed", zap.String("state", turn.State.String()), zap.Error(cause))
	answer, err := merger.Fail(context.WithoutCancel(ctx), FixedErrorMessage)
	if err != nil {
		log.Warn("could not record failure on answer", zap.Error(err))
	} else {
		turn.Answer = answer
	}
	o.setState(&turn, Errored)
	return turn
}

// drain decodes body, handing every event to apply until done. A stream that
// ends before done is an error.
func (o *Orchestrator) drain(body io.ReadCloser, apply func(models.Event) error) error {
	defer body.Close()
	dec := stream.NewDecoder(body, stream.WithLogger(o.logger.Named("decoder")))
	for ev, err := range dec.Events() {
		if err != nil {
			return err
		}
		if ev.Type == models.EventDone {
			return nil
		}
		if err := apply(ev); err != nil {
			return err
		}
	}
	return errMissingDone
}

func (o *Orchestrator) searchPhase(ctx context.Context, turn *Turn, merger *Merger, query string, log *zap.Logger) ([]models.SearchResult, error) {
	body, err := o.api.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	o.setState(turn, SearchStreaming)

	var sources []models.SearchResult
	err = o.drain(body, func(ev models.Event) error {
		msg, err := merger.Apply(ctx, ev)
		if err != nil {
			return err
		}
		if ev.Type == models.EventResult {
			sources = msg.Sources
			o.observer.OnSources(turn.ConversationID, msg.Sources)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug("search phase complete", zap.Int("sources", len(sources)))
	return sources, nil
}

func (o *Orchestrator) generatePhase(ctx context.Context, turn *Turn, merger *Merger, req models.GenerateRequest, log *zap.Logger) error {
	body, err := o.api.Generate(ctx, req)
	if err != nil {
		return err
	}
	o.setState(turn, GenerateStreaming)

	return o.drain(body, func(ev models.Event) error {
		if _, err := merger.Apply(ctx, ev); err != nil {
			return err
		}
		if ev.Type == models.EventText {
			o.observer.OnText(turn.ConversationID, ev.Text)
		}
		return nil
	})
}

// followUp asks for suggested questions in the background. Its outcome never
// affects the finished turn; failures are logged.
func (o *Orchestrator) followUp(ctx context.Context, merger *Merger, req models.SuggestRequest, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		raw, err := o.api.SuggestQuestions(ctx, req)
		if err != nil {
			log.Debug("follow-up questions unavailable", zap.Error(err))
			return
		}
		questions := helpers.FilterQuestions(strings.Join(raw, "\n"), helpers.DefaultMaxQuestions)
		if len(questions) == 0 {
			return
		}
		if _, err := merger.SetSuggestedQuestions(ctx, questions); err != nil {
			log.Debug("dropping follow-up questions", zap.Error(err))
			return
		}
		o.observer.OnSuggestions(merger.conversationID, questions)
	}()
}
