// Package stream implements the newline-delimited JSON event transport shared by
// the search and generate endpoints: one JSON object per line, each line
// terminated by a single '\n'.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/simplexity/models"
)

// ContentType is sent on every streaming response.
const ContentType = "text/plain; charset=utf-8"

// Writer frames events onto an outgoing stream and flushes after every event.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	written int
}

// NewWriter wraps w. When w implements http.Flusher each event is flushed as
// soon as it is written.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// PrepareResponse writes the streaming headers and the 200 status. After this
// call errors can no longer be reported with a status code.
func PrepareResponse(resp *echo.Response) *Writer {
	resp.Header().Set(echo.HeaderContentType, ContentType)
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()
	return NewWriter(resp)
}

// Encode renders a single framed record, including the trailing newline.
func Encode(ev models.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoder.Encode terminates the value with exactly one '\n'.
	if err := enc.Encode(ev); err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return buf.Bytes(), nil
}

// WriteEvent frames ev and pushes it to the stream.
func (w *Writer) WriteEvent(ev models.Event) error {
	line, err := Encode(ev)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	w.written++
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

func (w *Writer) Result(r models.SearchResult) error { return w.WriteEvent(models.ResultEvent(r)) }

func (w *Writer) Text(delta string) error { return w.WriteEvent(models.TextEvent(delta)) }

func (w *Writer) Citations(c []models.Citation) error {
	return w.WriteEvent(models.CitationsEvent(c))
}

func (w *Writer) Done() error { return w.WriteEvent(models.DoneEvent()) }

// Written reports how many events have been pushed so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Abort terminates the current HTTP response abnormally. The connection is
// dropped without a terminating chunk so the consumer sees a stream that ends
// without a done event. It never returns.
func Abort() {
	panic(http.ErrAbortHandler)
}
