// Package stream decodes the Server-Sent-Events feed produced by the Lock-In
// backend agent into typed session events.
package stream

// Kind is the wire tag carried in the envelope's "type" field.
type Kind string

const (
	KindSessionStart Kind = "session_start"
	KindStatus       Kind = "status"
	KindPlanCreated  Kind = "plan_created"
	KindFileCreated  Kind = "file_created"
	KindComplete     Kind = "complete"
	KindError        Kind = "error"
)

// Kinds lists every tag the decoder understands, in lifecycle order.
var Kinds = []Kind{
	KindSessionStart,
	KindStatus,
	KindPlanCreated,
	KindFileCreated,
	KindComplete,
	KindError,
}

// Event is one decoded envelope. The set of implementations is closed: callers
// can switch exhaustively over the six concrete types below.
type Event interface {
	Kind() Kind
	isEvent()
}

// SessionStart announces the session id the agent allocated for the prompt.
type SessionStart struct {
	SessionID string `json:"session_id"`
}

// Status is a free-form progress line.
type Status struct {
	Message string `json:"message"`
}

// PlanCreated reports the plan the agent settled on.
type PlanCreated struct {
	TechStack string `json:"tech_stack,omitempty"`
	Message   string `json:"message,omitempty"`
}

// FileCreated carries one generated file. Filename is a forward-slash path.
type FileCreated struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Complete ends a successful generation.
type Complete struct {
	PreviewURL string `json:"preview_url,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Error is an agent-side failure reported in-band. It is data, not a Go error:
// the stream itself is still healthy when one arrives.
type Error struct {
	Message string `json:"error"`
}

func (SessionStart) Kind() Kind { return KindSessionStart }
func (Status) Kind() Kind       { return KindStatus }
func (PlanCreated) Kind() Kind  { return KindPlanCreated }
func (FileCreated) Kind() Kind  { return KindFileCreated }
func (Complete) Kind() Kind     { return KindComplete }
func (Error) Kind() Kind        { return KindError }

func (SessionStart) isEvent() {}
func (Status) isEvent()       {}
func (PlanCreated) isEvent()  {}
func (FileCreated) isEvent()  {}
func (Complete) isEvent()     {}
func (Error) isEvent()        {}
