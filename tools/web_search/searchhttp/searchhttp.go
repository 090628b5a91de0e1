// Package searchhttp holds the HTTP plumbing shared by the search providers.
package searchhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError reports a non-2xx reply from a search provider. The body is
// kept for logs only and must not be shown to end users.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: search API returned status %d", e.Provider, e.Code)
}

// Client returns c or http.DefaultClient.
func Client(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

// DoJSON sends req and decodes a 2xx JSON body into out.
func DoJSON(c *http.Client, provider string, req *http.Request, out any) error {
	resp, err := Client(c).Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: provider, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: malformed response: %w", provider, err)
	}
	return nil
}
