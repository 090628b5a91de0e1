package web_search

import (
	"context"
	"errors"
	"net/http"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/mohammad-safakhou/simplexity/tools/web_search/brave"
	"github.com/mohammad-safakhou/simplexity/tools/web_search/searchhttp"
	"github.com/mohammad-safakhou/simplexity/tools/web_search/serpapi"
	"github.com/mohammad-safakhou/simplexity/tools/web_search/serper"
)

// WebSearcher returns up to k organic results for q in provider order.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.SearchResult, error)
}

type Provider string

const (
	SerpAPIProvider Provider = "serpapi"
	SerperProvider  Provider = "serper"
	BraveProvider   Provider = "brave"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported search provider")
	// ErrNotConfigured means the provider has no credentials.
	ErrNotConfigured = errors.New("search provider not configured")
)

// StatusError is returned for non-2xx provider replies.
type StatusError = searchhttp.StatusError

// Options carries provider credentials and transport overrides.
type Options struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewWebSearcher(provider Provider, opts Options) (WebSearcher, error) {
	if opts.APIKey == "" {
		return nil, ErrNotConfigured
	}
	switch provider {
	case SerpAPIProvider:
		return serpapi.Search{ApiKey: opts.APIKey, Endpoint: opts.Endpoint, HTTPClient: opts.HTTPClient}, nil
	case SerperProvider:
		return serper.Search{ApiKey: opts.APIKey, Endpoint: opts.Endpoint, HTTPClient: opts.HTTPClient}, nil
	case BraveProvider:
		return brave.Search{ApiKey: opts.APIKey, Endpoint: opts.Endpoint, HTTPClient: opts.HTTPClient}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
