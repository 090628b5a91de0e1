package openai_provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/sashabaranov/go-openai"
)

type client struct {
	api   *openai.Client
	model string
}

// NewClient creates a chat completions client. baseURL may point at any
// OpenAI-compatible endpoint.
func NewClient(apiKey, baseURL, model string, httpClient *http.Client) *client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &client{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *client) request(p models.Prompt, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})
	return openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: p.MaxTokens,
		Stream:    stream,
	}
}

func (c *client) Complete(ctx context.Context, p models.Prompt) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.request(p, false))
	if err != nil {
		return "", fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *client) Stream(ctx context.Context, p models.Prompt) (models.TextStream, error) {
	s, err := c.api.CreateChatCompletionStream(ctx, c.request(p, true))
	if err != nil {
		return nil, fmt.Errorf("openai: open stream: %w", err)
	}
	return &stream{s: s}, nil
}

type stream struct {
	s *openai.ChatCompletionStream
}

// Recv skips chunks that carry no content such as the role preamble.
func (s *stream) Recv() (string, error) {
	for {
		chunk, err := s.s.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("openai: stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *stream) Close() error { return s.s.Close() }
