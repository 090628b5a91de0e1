package serpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/mohammad-safakhou/simplexity/tools/web_search/searchhttp"
)

const defaultEndpoint = "https://serpapi.com/search"

type Search struct {
	ApiKey     string
	Endpoint   string
	HTTPClient *http.Client
}

type response struct {
	SearchMetadata struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"search_metadata"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Favicon  string `json:"favicon"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	// https://serpapi.com/search-api
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	params := url.Values{
		"api_key":       {s.ApiKey},
		"q":             {q},
		"engine":        {"google"},
		"google_domain": {"google.com"},
		"gl":            {"us"},
		"hl":            {"en"},
		"num":           {strconv.Itoa(k)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var raw response
	if err := searchhttp.DoJSON(s.HTTPClient, "serpapi", req, &raw); err != nil {
		return nil, err
	}
	if raw.Error != "" && len(raw.OrganicResults) == 0 {
		// "Google hasn't returned any results" is reported through this field too.
		if raw.SearchMetadata.Status == "Success" {
			return []models.SearchResult{}, nil
		}
		return nil, fmt.Errorf("serpapi: %s", raw.Error)
	}

	out := make([]models.SearchResult, 0, len(raw.OrganicResults))
	for i, r := range raw.OrganicResults {
		if i >= k {
			break
		}
		pos := r.Position
		if pos == 0 {
			pos = i + 1
		}
		out = append(out, models.SearchResult{
			Title: r.Title, Link: r.Link, Snippet: r.Snippet, Favicon: r.Favicon, Position: pos,
		})
	}
	return out, nil
}
