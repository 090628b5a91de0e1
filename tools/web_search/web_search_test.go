package web_search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebSearcherRequiresKey(t *testing.T) {
	_, err := NewWebSearcher(SerpAPIProvider, Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewWebSearcher("bing", Options{APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestSerpAPIDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang generics", r.URL.Query().Get("q"))
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		assert.Equal(t, "2", r.URL.Query().Get("num"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"search_metadata":{"status":"Success"},"organic_results":[
			{"position":1,"title":"A","link":"https://a.example","snippet":"sa"},
			{"position":2,"title":"B","link":"https://b.example","snippet":"sb","favicon":"https://b.example/f.ico"},
			{"position":3,"title":"C","link":"https://c.example","snippet":"sc"}]}`))
	}))
	defer srv.Close()

	s, err := NewWebSearcher(SerpAPIProvider, Options{APIKey: "secret", Endpoint: srv.URL})
	require.NoError(t, err)
	got, err := s.Discover(context.Background(), "golang generics", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SearchResult{Title: "A", Link: "https://a.example", Snippet: "sa", Position: 1}, got[0])
	assert.Equal(t, "https://b.example/f.ico", got[1].Favicon)
}

func TestSerpAPIEmptyResultsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"search_metadata":{"status":"Success"},"error":"Google hasn't returned any results for this query."}`))
	}))
	defer srv.Close()

	s, err := NewWebSearcher(SerpAPIProvider, Options{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)
	got, err := s.Discover(context.Background(), "zzz", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	for _, p := range []Provider{SerpAPIProvider, SerperProvider, BraveProvider} {
		s, err := NewWebSearcher(p, Options{APIKey: "k", Endpoint: srv.URL})
		require.NoError(t, err)
		_, err = s.Discover(context.Background(), "q", 5)
		var se *StatusError
		require.True(t, errors.As(err, &se), "provider %s", p)
		assert.Equal(t, http.StatusTooManyRequests, se.Code)
		assert.NotContains(t, se.Error(), "quota")
	}
}

func TestSerperDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "q", body["q"])
		_, _ = w.Write([]byte(`{"organic":[{"title":"A","link":"https://a.example","snippet":"sa","position":1}]}`))
	}))
	defer srv.Close()

	s, err := NewWebSearcher(SerperProvider, Options{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)
	got, err := s.Discover(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://a.example", got[0].Link)
	assert.Equal(t, 1, got[0].Position)
}

func TestBraveDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-Subscription-Token"))
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"A","url":"https://a.example","description":"sa","meta_url":{"favicon":"https://a.example/f.ico"}},
			{"title":"B","url":"https://b.example","description":"sb"}]}}`))
	}))
	defer srv.Close()

	s, err := NewWebSearcher(BraveProvider, Options{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)
	got, err := s.Discover(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.example/f.ico", got[0].Favicon)
	assert.Equal(t, 2, got[1].Position)
}

type countingSearcher struct {
	calls int
	out   []models.SearchResult
	err   error
}

func (c *countingSearcher) Discover(context.Context, string, int) ([]models.SearchResult, error) {
	c.calls++
	return c.out, c.err
}

type mapStore struct {
	data map[string]string
	ttl  time.Duration
}

func (m *mapStore) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mapStore) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttl = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestCachedServesRepeatQueriesFromStore(t *testing.T) {
	next := &countingSearcher{out: []models.SearchResult{{Title: "A", Link: "https://a.example", Position: 1}}}
	store := &mapStore{data: map[string]string{}}
	c := &Cached{Next: next, Client: store, TTL: time.Minute}

	first, err := c.Discover(context.Background(), "Go ", 3)
	require.NoError(t, err)
	second, err := c.Discover(context.Background(), "go", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Minute, store.ttl)

	_, err = c.Discover(context.Background(), "go", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	next := &countingSearcher{err: errors.New("boom")}
	store := &mapStore{data: map[string]string{}}
	c := &Cached{Next: next, Client: store, TTL: time.Minute}

	_, err := c.Discover(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Empty(t, store.data)
}
