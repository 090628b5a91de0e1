package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "c1",
		"object":  "chat.completion.chunk",
		"model":   "gpt",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": content}}},
	})
	return string(b)
}

func TestStreamYieldsContentDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{chunk(""), chunk("Go"), chunk(" is [1]")} {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, "gpt", srv.Client())
	s, err := c.Stream(context.Background(), models.Prompt{System: "sys", User: "hi", MaxTokens: 32})
	require.NoError(t, err)
	defer s.Close()

	var got []string
	for {
		d, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, d)
	}
	assert.Equal(t, []string{"Go", " is [1]"}, got)
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`)
	}))
	defer srv.Close()

	out, err := NewClient("key", srv.URL, "gpt", nil).Complete(context.Background(), models.Prompt{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestStreamRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := NewClient("key", srv.URL, "gpt", nil).Stream(context.Background(), models.Prompt{User: "hi"})
	require.Error(t, err)
}
