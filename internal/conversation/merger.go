package conversation

import (
	"context"

	"github.com/mohammad-safakhou/simplexity/models"
)

// FixedErrorMessage replaces the answer of any failed turn.
const FixedErrorMessage = "Sorry, there was an error processing your request. Please try again."

// Merger applies decoded events to one answer message. Each write re-resolves
// the conversation and message by id, so a stream whose conversation was
// deleted or replaced fails with models.ErrConversationNotFound or
// models.ErrMessageNotFound instead of touching anything else.
type Merger struct {
	repo           *Repository
	conversationID string
	messageID      string
}

func NewMerger(repo *Repository, conversationID, messageID string) *Merger {
	return &Merger{repo: repo, conversationID: conversationID, messageID: messageID}
}

func (m *Merger) update(ctx context.Context, fn func(*models.Message)) (models.Message, error) {
	return m.repo.UpdateMessage(ctx, m.conversationID, m.messageID, fn)
}

// Apply merges ev and persists the change. done and unknown events change
// nothing and are not written.
func (m *Merger) Apply(ctx context.Context, ev models.Event) (models.Message, error) {
	switch ev.Type {
	case models.EventResult:
		if ev.Result == nil {
			break
		}
		r := *ev.Result
		return m.update(ctx, func(msg *models.Message) {
			msg.Sources = append(msg.Sources, r)
		})
	case models.EventText:
		delta := ev.Text
		return m.update(ctx, func(msg *models.Message) {
			msg.Content += delta
			msg.IsLoading = false
		})
	case models.EventCitations:
		citations := append([]models.Citation{}, ev.Citations...)
		return m.update(ctx, func(msg *models.Message) {
			msg.Citations = citations
		})
	}
	return m.repo.Message(ctx, m.conversationID, m.messageID)
}

// Finish clears the loading flag.
func (m *Merger) Finish(ctx context.Context) (models.Message, error) {
	return m.update(ctx, func(msg *models.Message) { msg.IsLoading = false })
}

// Fail overwrites any partial text with text and clears the loading flag.
// Sources and citations already merged are kept.
func (m *Merger) Fail(ctx context.Context, text string) (models.Message, error) {
	return m.update(ctx, func(msg *models.Message) {
		msg.Content = text
		msg.IsLoading = false
	})
}

func (m *Merger) SetSuggestedQuestions(ctx context.Context, questions []string) (models.Message, error) {
	qs := append([]string(nil), questions...)
	return m.update(ctx, func(msg *models.Message) { msg.SuggestedQuestions = qs })
}
