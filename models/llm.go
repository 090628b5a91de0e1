package models

// Prompt is a single-turn request to a language model.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// TextStream yields answer text deltas. Recv returns io.EOF once the model
// has finished; any other error means the stream failed.
type TextStream interface {
	Recv() (string, error)
	Close() error
}
