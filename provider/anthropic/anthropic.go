package anthropic_provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/simplexity/models"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 2048
)

// APIError is a non-2xx reply from the messages endpoint.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic: API request failed with status %d", e.Code)
}

type client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewClient creates a messages API client. Empty baseURL selects the public API.
func NewClient(apiKey, baseURL, model string, httpClient *http.Client) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

func (c *client) post(ctx context.Context, p models.Prompt, stream bool) (*http.Response, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    p.System,
		Messages:  []message{{Role: "user", Content: p.User}},
		Stream:    stream,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Code: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

// Complete runs a non-streamed completion and returns the joined text blocks.
func (c *client) Complete(ctx context.Context, p models.Prompt) (string, error) {
	resp, err := c.post(ctx, p, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}
	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// Stream opens a server-sent event stream of text deltas.
func (c *client) Stream(ctx context.Context, p models.Prompt) (models.TextStream, error) {
	resp, err := c.post(ctx, p, true)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &stream{body: resp.Body, scanner: sc}, nil
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	err     error
	once    sync.Once
}

// Recv returns the next non-empty text delta. io.EOF is only returned after
// message_stop; a body that ends before it yields io.ErrUnexpectedEOF.
func (s *stream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var evt streamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			continue
		}
		switch {
		case evt.Error != nil:
			s.err = fmt.Errorf("anthropic: stream error: %s: %s", evt.Error.Type, evt.Error.Message)
			return "", s.err
		case evt.Type == "message_stop":
			s.err = io.EOF
			return "", s.err
		case evt.Type == "content_block_delta" && evt.Delta != nil && evt.Delta.Type == "text_delta" && evt.Delta.Text != "":
			return evt.Delta.Text, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("anthropic: read stream: %w", err)
	} else {
		s.err = fmt.Errorf("anthropic: stream ended before message_stop: %w", io.ErrUnexpectedEOF)
	}
	return "", s.err
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
