package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
)

var (
	recordSeparator = []byte("\n\n")
	dataPrefix      = []byte("data: ")
)

// Splitter cuts a byte stream into records at blank-line separators, holding
// the bytes after the last separator until more input arrives.
type Splitter struct {
	buf  []byte
	scan int
}

// Split appends chunk and calls fn for each record it completes, separator
// excluded. The record slice is only valid during the call.
func (s *Splitter) Split(chunk []byte, fn func(record []byte)) {
	s.buf = append(s.buf, chunk...)

	start := 0
	for {
		idx := bytes.Index(s.buf[s.scan:], recordSeparator)
		if idx < 0 {
			break
		}
		end := s.scan + idx
		fn(s.buf[start:end])
		start = end + len(recordSeparator)
		s.scan = start
	}

	if start > 0 {
		s.buf = append(s.buf[:0], s.buf[start:]...)
		s.scan -= start
	}
	// A separator may straddle the next chunk boundary.
	if n := len(s.buf) - (len(recordSeparator) - 1); n > s.scan {
		s.scan = n
	}
}

// Pending returns the bytes waiting for a separator.
func (s *Splitter) Pending() []byte {
	return s.buf
}

// Reset discards any pending bytes.
func (s *Splitter) Reset() {
	s.buf = nil
	s.scan = 0
}

// Fields holds the server-sent-event fields of one record.
type Fields struct {
	Event string
	ID    string
	Data  []byte
}

// ParseFields reads the field lines of a record. Comment lines are skipped,
// one space after the colon is dropped and data values are joined with
// newlines.
func ParseFields(record []byte) Fields {
	var (
		f    Fields
		data [][]byte
	)
	for _, line := range bytes.Split(record, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		name, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(name) {
		case "event":
			f.Event = string(value)
		case "id":
			f.ID = string(value)
		case "data":
			data = append(data, value)
		}
	}
	if len(data) > 0 {
		f.Data = bytes.Join(data, []byte("\n"))
	}
	return f
}

// Records lazily splits r into complete records. An unterminated tail is
// dropped, and a transport failure is yielded once as the last element.
func Records(ctx context.Context, r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var (
			split   Splitter
			stopped bool
		)
		err := readChunks(ctx, r, func(chunk []byte) bool {
			split.Split(chunk, func(record []byte) {
				if !stopped && !yield(bytes.Clone(record), nil) {
					stopped = true
				}
			})
			return !stopped
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// readChunks passes r to fn chunk by chunk until EOF, a read failure or a
// cancelled ctx. fn returning false stops reading without an error.
func readChunks(ctx context.Context, r io.Reader, fn func([]byte) bool) error {
	buf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 && !fn(buf[:n]) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read event stream: %w", err)
		}
	}
}
