package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/lockin/internal/stream"
)

// Sender identifies who wrote a transcript message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// State is the lifecycle of one prompt/response cycle.
type State string

const (
	StatePending   State = "pending"
	StateStreaming State = "streaming"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// Message is one transcript line.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Kind      string    `json:"kind,omitempty"`
	Text      string    `json:"text"`
	IsError   bool      `json:"isError,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the caller-owned fold of a decoded event stream.
type Session struct {
	ID         string       `json:"id"`
	Prompt     string       `json:"prompt,omitempty"`
	State      State        `json:"state"`
	TechStack  string       `json:"techStack,omitempty"`
	PreviewURL string       `json:"previewUrl,omitempty"`
	Selected   string       `json:"selected,omitempty"`
	Error      string       `json:"error,omitempty"`
	Messages   []Message    `json:"messages"`
	Files      *ArtifactSet `json:"-"`

	now func() time.Time
}

// New returns an empty pending session.
func New() *Session {
	return &Session{
		State: StatePending,
		Files: NewArtifactSet(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// AddUserMessage records the prompt the user submitted.
func (s *Session) AddUserMessage(text string) Message {
	if s.Prompt == "" {
		s.Prompt = text
	}
	return s.appendMessage(SenderUser, "prompt", text, false)
}

// Apply folds one event into the session and returns the transcript message
// it produced, if any.
func (s *Session) Apply(ev stream.Event) *Message {
	if s.State == StatePending {
		s.State = StateStreaming
	}
	var msg Message
	switch e := ev.(type) {
	case stream.SessionStart:
		s.ID = e.SessionID
		msg = s.appendMessage(SenderBot, string(e.Kind()), fmt.Sprintf("Session started: %s", e.SessionID), false)
	case stream.Status:
		if e.Message == "" {
			return nil
		}
		msg = s.appendMessage(SenderBot, string(e.Kind()), e.Message, false)
	case stream.PlanCreated:
		s.TechStack = e.TechStack
		text := e.Message
		if text == "" {
			text = "Plan created"
		}
		if e.TechStack != "" {
			text = fmt.Sprintf("%s (tech stack: %s)", text, e.TechStack)
		}
		msg = s.appendMessage(SenderBot, string(e.Kind()), text, false)
	case stream.FileCreated:
		stored := s.Files.Put(e.Filename, e.Content)
		if s.Selected == "" && stored != "" {
			s.Selected = stored
		}
		return nil
	case stream.Complete:
		if e.SessionID != "" && s.ID == "" {
			s.ID = e.SessionID
		}
		if e.PreviewURL != "" {
			s.PreviewURL = e.PreviewURL
		}
		s.State = StateComplete
		text := e.Message
		if text == "" {
			text = fmt.Sprintf("Generation complete for session: %s", s.ID)
		}
		msg = s.appendMessage(SenderBot, string(e.Kind()), text, false)
	case stream.Error:
		s.State = StateFailed
		s.Error = e.Message
		text := e.Message
		if text == "" {
			text = "The agent reported an error."
		}
		msg = s.appendMessage(SenderBot, string(e.Kind()), text, true)
	default:
		return nil
	}
	return &msg
}

// Fail records a transport failure that ended the stream.
func (s *Session) Fail(err error) Message {
	s.State = StateFailed
	if err != nil {
		s.Error = err.Error()
	}
	return s.appendMessage(SenderBot, "transport_error", "Error contacting agent. Please try again.", true)
}

// Select changes the selected file. Unknown paths are rejected.
func (s *Session) Select(p string) bool {
	p = NormalizePath(p)
	if !s.Files.Has(p) {
		return false
	}
	s.Selected = p
	return true
}

// Done reports whether the stream reached a terminal state.
func (s *Session) Done() bool {
	return s.State == StateComplete || s.State == StateFailed
}

func (s *Session) appendMessage(sender Sender, kind, text string, isErr bool) Message {
	now := s.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	msg := Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Kind:      kind,
		Text:      text,
		IsError:   isErr,
		Timestamp: now(),
	}
	s.Messages = append(s.Messages, msg)
	return msg
}
