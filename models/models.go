package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrConversationNotFound is returned when a conversation id does not resolve.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned when a message id does not resolve inside its conversation.
	ErrMessageNotFound = errors.New("message not found")
)

// SearchResult is a single web result produced by the search phase.
// Link is the identity of a result.
type SearchResult struct {
	Title    string `json:"title" yaml:"title"`
	Link     string `json:"link" yaml:"link"`
	Snippet  string `json:"snippet" yaml:"snippet"`
	Favicon  string `json:"favicon,omitempty" yaml:"favicon,omitempty"`
	Position int    `json:"position" yaml:"position"`
}

// Citation references a source from a bracketed marker in answer text.
type Citation struct {
	Number      int    `json:"number" yaml:"number"`
	SourceIndex int    `json:"sourceIndex" yaml:"sourceIndex"`
	Text        string `json:"text" yaml:"text"`
}

type MessageType string

const (
	MessageTypeQuery  MessageType = "query"
	MessageTypeAnswer MessageType = "answer"
)

// Message is one side of a Q&A pair. Timestamps are unix milliseconds.
type Message struct {
	ID                 string         `json:"id" yaml:"id"`
	Type               MessageType    `json:"type" yaml:"type"`
	Content            string         `json:"content" yaml:"content"`
	Sources            []SearchResult `json:"sources,omitempty" yaml:"sources,omitempty"`
	Citations          []Citation     `json:"citations,omitempty" yaml:"citations,omitempty"`
	Timestamp          int64          `json:"timestamp" yaml:"timestamp"`
	IsLoading          bool           `json:"isLoading,omitempty" yaml:"isLoading,omitempty"`
	SuggestedQuestions []string       `json:"suggestedQuestions,omitempty" yaml:"suggestedQuestions,omitempty"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Sources != nil {
		out.Sources = append([]SearchResult(nil), m.Sources...)
	}
	if m.Citations != nil {
		out.Citations = append([]Citation(nil), m.Citations...)
	}
	if m.SuggestedQuestions != nil {
		out.SuggestedQuestions = append([]string(nil), m.SuggestedQuestions...)
	}
	return out
}

// Conversation is an ordered, append-only list of messages.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt int64     `json:"createdAt" yaml:"createdAt"`
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// MessageIndex returns the position of the message with the given id, or -1.
func (c Conversation) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// EventType names a streamed event.
type EventType string

const (
	EventResult    EventType = "result"
	EventText      EventType = "text"
	EventCitations EventType = "citations"
	EventDone      EventType = "done"
)

// Event is one record of the newline-delimited JSON stream. On the wire it is
// {"type": ..., "data": ...}; data is absent for done.
type Event struct {
	Type      EventType
	Result    *SearchResult
	Text      string
	Citations []Citation
	// Raw keeps the data payload of event types this build does not know.
	Raw json.RawMessage
}

func ResultEvent(r SearchResult) Event { return Event{Type: EventResult, Result: &r} }
func TextEvent(delta string) Event { return Event{Type: EventText, Text: delta} }
func CitationsEvent(c []Citation) Event { return Event{Type: EventCitations, Citations: c} }
func DoneEvent() Event { return Event{Type: EventDone} }

type wireEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch e.Type {
	case EventResult:
		if e.Result == nil {
			return nil, fmt.Errorf("result event without data")
		}
		data, err = json.Marshal(e.Result)
	case EventText:
		data, err = json.Marshal(e.Text)
	case EventCitations:
		c := e.Citations
		if c == nil {
			c = []Citation{}
		}
		data, err = json.Marshal(c)
	case EventDone:
	default:
		data = e.Raw
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Type: e.Type, Data: data})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return fmt.Errorf("event missing type")
	}
	*e = Event{Type: w.Type}
	switch w.Type {
	case EventResult:
		var r SearchResult
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &r); err != nil {
				return fmt.Errorf("result data: %w", err)
			}
		}
		e.Result = &r
	case EventText:
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &e.Text); err != nil {
				return fmt.Errorf("text data: %w", err)
			}
		}
	case EventCitations:
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &e.Citations); err != nil {
				return fmt.Errorf("citations data: %w", err)
			}
		}
	case EventDone:
	default:
		e.Raw = w.Data
	}
	return nil
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query" validate:"required,notblank"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Query               string         `json:"query" validate:"required,notblank"`
	Sources             []SearchResult `json:"sources" validate:"required,min=1"`
	ConversationHistory []Message      `json:"conversationHistory,omitempty"`
}

// SuggestRequest is the body of POST /api/suggest-questions.
type SuggestRequest struct {
	CurrentQuery        string    `json:"currentQuery"`
	CurrentAnswer       string    `json:"currentAnswer"`
	ConversationHistory []Message `json:"conversationHistory"`
}

type SuggestResponse struct {
	Questions []string `json:"questions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
