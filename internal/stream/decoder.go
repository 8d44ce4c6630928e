package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DropReason explains why a complete record produced no event.
type DropReason string

const (
	DropNoPrefix      DropReason = "no_prefix"
	DropInvalidJSON   DropReason = "invalid_json"
	DropUnknownType   DropReason = "unknown_type"
	DropInvalidFields DropReason = "invalid_fields"
)

// Stats counts what a decoder has seen so far.
type Stats struct {
	Records        int                `json:"records"`
	Events         int                `json:"events"`
	Dropped        map[DropReason]int `json:"dropped,omitempty"`
	TruncatedBytes int                `json:"truncatedBytes,omitempty"`
}

// Decoder turns one response body into events. A Decoder is not safe for
// concurrent use and is not reusable across streams.
type Decoder struct {
	split  Splitter
	closed bool
	stats  Stats
}

// NewDecoder returns a decoder with an empty buffer.
func NewDecoder() *Decoder {
	return &Decoder{stats: Stats{Dropped: map[DropReason]int{}}}
}

// Feed appends a chunk and returns the events completed by it, in arrival
// order. Chunk boundaries need not align with records.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.closed || len(chunk) == 0 {
		return nil
	}
	var out []Event
	d.split.Split(chunk, func(record []byte) {
		if ev, ok := d.record(record); ok {
			out = append(out, ev)
		}
	})
	return out
}

// Close ends the stream. Any unterminated trailing record is discarded and its
// size returned; it is never emitted.
func (d *Decoder) Close() int {
	if d.closed {
		return 0
	}
	d.closed = true
	dropped := len(bytes.TrimSpace(d.split.Pending()))
	d.stats.TruncatedBytes += dropped
	d.split.Reset()
	return dropped
}

// Buffered reports how many bytes are waiting for a separator.
func (d *Decoder) Buffered() int {
	return len(d.split.Pending())
}

// Stats returns a copy of the decoder counters.
func (d *Decoder) Stats() Stats {
	out := d.stats
	out.Dropped = make(map[DropReason]int, len(d.stats.Dropped))
	for k, v := range d.stats.Dropped {
		out.Dropped[k] = v
	}
	return out
}

func (d *Decoder) record(raw []byte) (Event, bool) {
	text := bytes.TrimSpace(raw)
	if len(text) == 0 {
		return nil, false
	}
	d.stats.Records++

	ev, reason := ParseRecord(text)
	if reason != "" {
		d.stats.Dropped[reason]++
		return nil, false
	}
	d.stats.Events++
	return ev, true
}

// ParseRecord turns one complete record (without its separator) into an event.
// A non-empty DropReason means the record must be skipped.
func ParseRecord(record []byte) (Event, DropReason) {
	text := bytes.TrimSpace(record)
	if !bytes.HasPrefix(text, dataPrefix) {
		return nil, DropNoPrefix
	}

	env, err := parseEnvelope(text[len(dataPrefix):])
	if err != nil && bytes.IndexByte(text, '\n') >= 0 {
		env, err = parseEnvelope(ParseFields(text).Data)
	}
	if err != nil {
		return nil, DropInvalidJSON
	}
	return dispatch(env)
}

type envelope struct {
	Type string
	Data map[string]json.RawMessage
}

// parseEnvelope reads the exact "type" and "data" keys. Struct decoding would
// also accept "TYPE" or "Data". A missing type dispatches as unknown.
func parseEnvelope(payload []byte) (envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return envelope{}, err
	}
	var env envelope
	if typ, ok := raw["type"]; ok {
		if err := json.Unmarshal(typ, &env.Type); err != nil {
			return envelope{}, fmt.Errorf("envelope type: %w", err)
		}
	}
	if data, ok := raw["data"]; ok {
		if err := json.Unmarshal(data, &env.Data); err != nil {
			return envelope{}, fmt.Errorf("envelope data: %w", err)
		}
	}
	return env, nil
}

func dispatch(env envelope) (Event, DropReason) {
	f := fields(env.Data)
	var ev Event
	switch Kind(env.Type) {
	case KindSessionStart:
		id := f.get("session_id")
		if id == "" {
			f.bad = true
		}
		ev = SessionStart{SessionID: id}
	case KindStatus:
		ev = Status{Message: f.get("message")}
	case KindPlanCreated:
		ev = PlanCreated{TechStack: f.get("tech_stack"), Message: f.get("message")}
	case KindFileCreated:
		name := f.get("filename")
		if name == "" {
			f.bad = true
		}
		ev = FileCreated{Filename: name, Content: f.get("content")}
	case KindComplete:
		ev = Complete{
			PreviewURL: f.get("preview_url"),
			SessionID:  f.get("session_id"),
			Message:    f.get("message"),
		}
	case KindError:
		msg := f.get("error")
		if msg == "" {
			msg = f.get("message")
		}
		ev = Error{Message: msg}
	default:
		return nil, DropUnknownType
	}
	if f.bad {
		return nil, DropInvalidFields
	}
	return ev, ""
}

type fieldReader struct {
	data map[string]json.RawMessage
	bad  bool
}

func fields(data map[string]json.RawMessage) *fieldReader {
	return &fieldReader{data: data}
}

// get reads a primitive value as text. Arrays of primitives are joined with
// ", "; objects and nested arrays mark the envelope as malformed.
func (f *fieldReader) get(key string) string {
	raw, ok := f.data[key]
	if !ok {
		return ""
	}
	s, ok := primitive(raw)
	if ok {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		items := make([]string, 0, len(list))
		for _, item := range list {
			v, ok := primitive(item)
			if !ok {
				f.bad = true
				return ""
			}
			items = append(items, v)
		}
		return strings.Join(items, ", ")
	}
	f.bad = true
	return ""
}

func primitive(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 'n':
		return "", string(raw) == "null"
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	case '{', '[':
		return "", false
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
}

func (r DropReason) String() string {
	return string(r)
}

func (s Stats) String() string {
	return fmt.Sprintf("records=%d events=%d dropped=%v truncated=%dB", s.Records, s.Events, s.Dropped, s.TruncatedBytes)
}
