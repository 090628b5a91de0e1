package provider

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(config.LLMConfig{Provider: "gemini", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnsupported)

	for _, name := range []string{"anthropic", "openai"} {
		p, err := New(config.LLMConfig{Provider: name, APIKey: "k", Model: "m"})
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
}

func TestHTTPClientBoundsHeadersNotBody(t *testing.T) {
	slowBody := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		_, _ = io.WriteString(w, "late but fine")
	}))
	defer slowBody.Close()

	hc := newHTTPClient(50 * time.Millisecond)
	assert.Zero(t, hc.Timeout)
	resp, err := hc.Get(slowBody.URL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "late but fine", string(body))

	slowHeaders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slowHeaders.Close()

	_, err = hc.Get(slowHeaders.URL)
	assert.Error(t, err)
}
