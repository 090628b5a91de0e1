package brave

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/mohammad-safakhou/simplexity/tools/web_search/searchhttp"
)

const defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

type Search struct {
	ApiKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	// https://api.search.brave.com/app/documentation/web-search
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	params := url.Values{"q": {q}, "count": {strconv.Itoa(k)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
				MetaURL struct {
					Favicon string `json:"favicon"`
				} `json:"meta_url"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := searchhttp.DoJSON(s.HTTPClient, "brave", req, &raw); err != nil {
		return nil, err
	}
	var out []models.SearchResult
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, models.SearchResult{
			Title: r.Title, Link: r.URL, Snippet: r.Snippet, Favicon: r.MetaURL.Favicon, Position: i + 1,
		})
	}
	return out, nil
}
