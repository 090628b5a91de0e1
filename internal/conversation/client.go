package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/simplexity/models"
)

// API is the server surface the orchestrator drives. Streaming calls return
// the raw NDJSON body once a 2xx status has been received.
type API interface {
	Search(ctx context.Context, query string) (io.ReadCloser, error)
	Generate(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error)
	SuggestQuestions(ctx context.Context, req models.SuggestRequest) ([]string, error)
}

// StatusError is a non-2xx reply. The body is deliberately not kept.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

// HTTPClient talks to a running server.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

func (c *HTTPClient) post(ctx context.Context, op, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &StatusError{Op: op, Code: resp.StatusCode}
	}
	return resp, nil
}

func (c *HTTPClient) Search(ctx context.Context, query string) (io.ReadCloser, error) {
	resp, err := c.post(ctx, "search", "/api/search", models.SearchRequest{Query: query})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *HTTPClient) Generate(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
	resp, err := c.post(ctx, "generate", "/api/generate", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *HTTPClient) SuggestQuestions(ctx context.Context, req models.SuggestRequest) ([]string, error) {
	resp, err := c.post(ctx, "suggest-questions", "/api/suggest-questions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out models.SuggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("suggest-questions: decode response: %w", err)
	}
	return out.Questions, nil
}
