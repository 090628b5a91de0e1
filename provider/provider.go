package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/mohammad-safakhou/simplexity/models"
	anthropic_provider "github.com/mohammad-safakhou/simplexity/provider/anthropic"
	openai_provider "github.com/mohammad-safakhou/simplexity/provider/openai"
)

// Client names a language model backend.
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

type (
	Prompt = models.Prompt
	Stream = models.TextStream
)

var (
	// ErrNotConfigured means the selected backend has no API key.
	ErrNotConfigured = errors.New("llm provider not configured")
	ErrUnsupported   = errors.New("unsupported LLM provider")
)

// Provider is the interface that all LLM implementations must satisfy.
type Provider interface {
	// Stream starts a streamed completion. Errors returned here happen before
	// any text was produced.
	Stream(ctx context.Context, p Prompt) (Stream, error)
	Complete(ctx context.Context, p Prompt) (string, error)
}

// New creates the backend selected by cfg.
func New(cfg config.LLMConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	httpClient := newHTTPClient(cfg.Timeout)
	switch Client(cfg.Provider) {
	case Anthropic:
		return anthropic_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, httpClient), nil
	case OpenAI:
		return openai_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, httpClient), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Provider)
	}
}

// newHTTPClient bounds only the wait for response headers. A streamed body can
// run as long as the request context allows.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: tr}
}
