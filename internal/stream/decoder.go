package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/mohammad-safakhou/simplexity/models"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultChunkSize is the read size used when decoding from an io.Reader.
const DefaultChunkSize = 4096

// Decoder turns arbitrarily split byte chunks back into events.
//
// Chunk boundaries carry no meaning: a record may span many chunks and a chunk
// may hold many records. Bytes are only interpreted once the newline that ends
// their record has arrived, so a multi-byte character split between chunks is
// held over intact. A stream that ends mid-record is malformed and the partial
// record is dropped.
type Decoder struct {
	src       io.Reader
	chunkSize int
	logger    *zap.Logger

	buf     []byte
	pending []models.Event
	err     error
	skipped int
}

type DecoderOption func(*Decoder)

// WithLogger sets the logger used to report skipped records.
func WithLogger(l *zap.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithChunkSize overrides the read size used by Next.
func WithChunkSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// NewDecoder decodes events from r. Input is passed through a UTF-8 decoding
// transform which keeps partial sequences until the rest arrives and replaces
// invalid bytes with U+FFFD.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := newDecoder(opts...)
	if r != nil {
		d.src = transform.NewReader(r, unicode.UTF8.NewDecoder())
	}
	return d
}

// NewChunkDecoder returns a decoder that is driven only through Feed.
func NewChunkDecoder(opts ...DecoderOption) *Decoder {
	return newDecoder(opts...)
}

func newDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{chunkSize: DefaultChunkSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends one chunk and returns every event completed by it, in order.
func (d *Decoder) Feed(chunk []byte) []models.Event {
	d.buf = append(d.buf, chunk...)
	var out []models.Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		if ev, ok := d.parse(line); ok {
			out = append(out, ev)
		}
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Close ends a Feed-driven stream. Any incomplete trailing record is discarded
// and the number of discarded bytes is returned.
func (d *Decoder) Close() int {
	n := len(bytes.TrimSpace(d.buf))
	if n > 0 {
		d.logger.Debug("discarding incomplete trailing record", zap.Int("bytes", n))
	}
	d.buf = nil
	return n
}

// Skipped reports how many complete records failed to parse.
func (d *Decoder) Skipped() int { return d.skipped }

func (d *Decoder) parse(line []byte) (models.Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 {
		return models.Event{}, false
	}
	var ev models.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		d.skipped++
		d.logger.Warn("skipping malformed stream record", zap.Error(err), zap.Int("bytes", len(line)))
		return models.Event{}, false
	}
	return ev, true
}

// Next returns the next event read from the underlying reader. It returns
// io.EOF once the stream has ended cleanly; any other error means the
// transport failed mid-stream.
func (d *Decoder) Next() (models.Event, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.err != nil {
			return models.Event{}, d.err
		}
		if d.src == nil {
			d.err = io.EOF
			continue
		}
		chunk := make([]byte, d.chunkSize)
		n, err := d.src.Read(chunk)
		if n > 0 {
			d.pending = append(d.pending, d.Feed(chunk[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.Close()
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("read stream: %w", err)
			}
		}
	}
}

// Events exposes the decoder as a single-use iterator. Iteration stops after
// the first error; a clean end of stream yields no error.
func (d *Decoder) Events() iter.Seq2[models.Event, error] {
	return func(yield func(models.Event, error) bool) {
		for {
			ev, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(models.Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
