package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/mohammad-safakhou/simplexity/tools/web_search/searchhttp"
	"github.com/mohammad-safakhou/simplexity/utils"
)

const defaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	// https://serper.dev/ docs
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	body, err := json.Marshal(map[string]any{"q": q, "num": k})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	var raw map[string]any
	if err := searchhttp.DoJSON(s.HTTPClient, "serper", req, &raw); err != nil {
		return nil, err
	}

	var out []models.SearchResult
	items, _ := raw["organic"].([]any)
	for i, it := range items {
		if i >= k {
			break
		}
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		pos := i + 1
		if p, ok := m["position"].(float64); ok && p > 0 {
			pos = int(p)
		}
		out = append(out, models.SearchResult{
			Title:    utils.Str(m["title"]),
			Link:     utils.Str(m["link"]),
			Snippet:  utils.Str(m["snippet"]),
			Favicon:  utils.Str(m["favicon"]),
			Position: pos,
		})
	}
	return out, nil
}
