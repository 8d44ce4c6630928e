package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
)

const readSize = 32 * 1024

// Decode lazily decodes r. Each element is either an event or, at most once
// and always last, the error that ended the transport. A clean EOF ends the
// sequence without an error; a truncated trailing record is dropped.
func Decode(ctx context.Context, r io.Reader) iter.Seq2[Event, error] {
	return DecodeWith(ctx, r, nil)
}

// DecodeWith is Decode with a callback invoked once the stream is finished,
// receiving the final decoder counters.
func DecodeWith(ctx context.Context, r io.Reader, done func(Stats)) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		dec := NewDecoder()
		defer func() {
			dec.Close()
			if done != nil {
				done(dec.Stats())
			}
		}()

		stopped := false
		err := readChunks(ctx, r, func(chunk []byte) bool {
			for _, ev := range dec.Feed(chunk) {
				if !yield(ev, nil) {
					stopped = true
					return false
				}
			}
			return true
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// Collect drains a sequence, returning the events seen before the terminal
// error (if any).
func Collect(seq iter.Seq2[Event, error]) ([]Event, error) {
	var out []Event
	for ev, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Marshal renders ev as the JSON envelope used on the wire.
func Marshal(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("nil event")
	}
	return json.Marshal(struct {
		Type Kind  `json:"type"`
		Data Event `json:"data"`
	}{Type: ev.Kind(), Data: ev})
}

// Encode renders ev as one complete record, separator included.
func Encode(ev Event) ([]byte, error) {
	payload, err := Marshal(ev)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(dataPrefix)+len(payload)+len(recordSeparator))
	out = append(out, dataPrefix...)
	out = append(out, payload...)
	out = append(out, recordSeparator...)
	return out, nil
}
