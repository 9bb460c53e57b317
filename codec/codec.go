// Package codec encodes the records and results exchanged with voyago's
// command line tools.
//
// Index blobs never go through a Codec; their layout is fixed by the
// persistence package.
package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}

// Record is one input line: a vector and an optional explicit ID.
type Record struct {
	ID     *uint64   `json:"id,omitempty"`
	Vector []float32 `json:"vector"`
}

// Match is one query result line.
type Match struct {
	Rank     int     `json:"rank"`
	ID       uint64  `json:"id"`
	Distance float32 `json:"distance"`
}

// MaxLineSize bounds a single encoded line.
const MaxLineSize = 64 << 20

// ReadLines decodes one value per line from r and calls fn with it. Blank
// lines are skipped. Errors carry the 1-based line number.
func ReadLines[T any](r io.Reader, c Codec, fn func(line int, v T) error) error {
	if c == nil {
		c = Default
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		var v T
		if err := c.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(line, v); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

// LineWriter writes one encoded value per line.
type LineWriter struct {
	w   io.Writer
	c   Codec
	buf []byte
}

// NewLineWriter returns a LineWriter encoding with c (Default when nil).
func NewLineWriter(w io.Writer, c Codec) *LineWriter {
	if c == nil {
		c = Default
	}
	return &LineWriter{w: w, c: c}
}

// Write encodes v followed by a newline.
func (lw *LineWriter) Write(v any) error {
	b, err := lw.c.Marshal(v)
	if err != nil {
		return err
	}
	lw.buf = append(append(lw.buf[:0], b...), '\n')
	_, err = lw.w.Write(lw.buf)
	return err
}
