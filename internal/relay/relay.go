// Package relay drives one prompt through the agent: it folds the decoded
// events into a session, persists and broadcasts them, and forwards each one
// to the caller.
package relay

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/lockin/internal/events"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/oremus-labs/lockin/internal/metrics"
	"github.com/oremus-labs/lockin/internal/session"
	"github.com/oremus-labs/lockin/internal/store"
	"github.com/oremus-labs/lockin/internal/stream"
)

// Sink receives every decoded event in stream order. Returning an error stops
// the relay.
type Sink func(stream.Event) error

// ErrSinkClosed wraps a sink failure, usually a disconnected client.
var ErrSinkClosed = errors.New("relay sink closed")

type promptSubmitter interface {
	SubmitPrompt(ctx context.Context, prompt string) iter.Seq2[stream.Event, error]
}

type eventPublisher interface {
	Publish(context.Context, events.Event) error
}

// Archiver stores a finished artifact set and returns where it went.
type Archiver interface {
	Enabled() bool
	Archive(ctx context.Context, sessionID string, files map[string]string) (string, error)
}

// Options configures a Relay.
type Options struct {
	Agent    promptSubmitter
	Store    *store.Store
	Events   eventPublisher
	Archiver Archiver
}

// Relay is safe for concurrent use; each Run owns its own session.
type Relay struct {
	agent    promptSubmitter
	store    *store.Store
	events   eventPublisher
	archiver Archiver
}

// New creates a Relay. Store, Events and Archiver are optional.
func New(opts Options) *Relay {
	return &Relay{
		agent:    opts.Agent,
		store:    opts.Store,
		events:   opts.Events,
		archiver: opts.Archiver,
	}
}

// run carries the per-prompt state. The session row is written once the
// agent announces the session id; messages and bus events produced before
// that are held.
type run struct {
	*Relay
	sess      *session.Session
	id        string
	persisted bool
	pending   []session.Message
	held      []stream.Event
}

// Run submits prompt and relays the reply. It returns the folded session
// and, when the stream ended on a transport failure or a sink error, that
// error.
func (r *Relay) Run(ctx context.Context, prompt string, sink Sink) (*session.Session, error) {
	if r.agent == nil {
		return nil, errors.New("relay: agent client not configured")
	}
	st := &run{Relay: r, sess: session.New()}
	st.pending = append(st.pending, st.sess.AddUserMessage(prompt))

	finish := metrics.RelayStarted()
	outcome := "incomplete"
	defer func() { finish(outcome) }()

	for ev, err := range r.agent.SubmitPrompt(ctx, prompt) {
		if err != nil {
			st.fail(err)
			outcome = "transport_error"
			return st.sess, err
		}
		metrics.ObserveEvent(ev)
		st.apply(ctx, ev)
		if sink != nil {
			if err := sink(ev); err != nil {
				err = fmt.Errorf("%w: %v", ErrSinkClosed, err)
				st.fail(err)
				outcome = "client_gone"
				return st.sess, err
			}
		}
	}

	st.ensurePersisted()
	st.flushHeld(ctx)
	switch st.sess.State {
	case session.StateComplete:
		outcome = "complete"
		st.archive(ctx)
	case session.StateFailed:
		outcome = "agent_error"
	}
	st.saveSummary()
	logutil.Info("relay finished", map[string]interface{}{
		"sessionId": st.id,
		"state":     st.sess.State,
		"files":     st.sess.Files.Len(),
	})
	return st.sess, nil
}

func (st *run) apply(ctx context.Context, ev stream.Event) {
	msg := st.sess.Apply(ev)

	if start, ok := ev.(stream.SessionStart); ok && !st.persisted {
		st.id = start.SessionID
		st.ensurePersisted()
	}
	if msg != nil {
		st.appendMessage(*msg)
	}

	switch e := ev.(type) {
	case stream.FileCreated:
		st.ensurePersisted()
		if st.store != nil {
			if err := st.store.PutFile(st.id, session.NormalizePath(e.Filename), e.Content); err != nil {
				logutil.Error("relay: failed to store file", err, map[string]interface{}{"sessionId": st.id, "path": e.Filename})
			}
		}
	case stream.PlanCreated, stream.Complete, stream.Error:
		st.saveSummary()
	}

	if !st.persisted {
		st.held = append(st.held, ev)
		return
	}
	st.flushHeld(ctx)
	st.publish(ctx, events.SessionEvent(st.id, ev))
}

// flushHeld publishes the events that arrived before the session id was
// known, tagged with that id.
func (st *run) flushHeld(ctx context.Context) {
	for _, ev := range st.held {
		st.publish(ctx, events.SessionEvent(st.id, ev))
	}
	st.held = nil
}

func (st *run) fail(err error) {
	msg := st.sess.Fail(err)
	st.ensurePersisted()
	st.appendMessage(msg)
	st.saveSummary()
	logutil.Error("relay failed", err, map[string]interface{}{"sessionId": st.id})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st.flushHeld(ctx)
	st.publish(ctx, events.Event{
		Type:      "session.failed",
		SessionID: st.id,
		Data:      map[string]string{"error": err.Error()},
	})
}

// ensurePersisted writes the session row, inventing an id when the agent
// never sent one.
func (st *run) ensurePersisted() {
	if st.persisted {
		return
	}
	if st.id == "" {
		st.id = st.sess.ID
	}
	if st.id == "" {
		st.id = uuid.NewString()
	}
	st.sess.ID = st.id
	st.persisted = true
	if st.store == nil {
		st.pending = nil
		return
	}
	if err := st.store.CreateSession(store.FromSession(st.sess)); err != nil {
		logutil.Error("relay: failed to create session", err, map[string]interface{}{"sessionId": st.id})
	}
	for _, msg := range st.pending {
		st.storeMessage(msg)
	}
	st.pending = nil
}

func (st *run) appendMessage(msg session.Message) {
	if !st.persisted {
		st.pending = append(st.pending, msg)
		return
	}
	st.storeMessage(msg)
}

func (st *run) storeMessage(msg session.Message) {
	if st.store == nil {
		return
	}
	if err := st.store.AppendMessage(st.id, msg); err != nil {
		logutil.Error("relay: failed to store message", err, map[string]interface{}{"sessionId": st.id})
	}
}

func (st *run) saveSummary() {
	if st.store == nil || !st.persisted {
		return
	}
	rec := store.FromSession(st.sess)
	rec.ID = st.id
	if existing, err := st.store.GetSession(st.id); err == nil {
		rec.ArchiveURI = existing.ArchiveURI
	}
	if err := st.store.UpdateSession(rec); err != nil {
		logutil.Error("relay: failed to update session", err, map[string]interface{}{"sessionId": st.id})
	}
}

func (st *run) archive(ctx context.Context) {
	if st.archiver == nil || !st.archiver.Enabled() || st.sess.Files.Len() == 0 {
		return
	}
	uri, err := st.archiver.Archive(ctx, st.id, st.sess.Files.Snapshot())
	metrics.ObserveArchive(err == nil)
	if err != nil {
		logutil.Error("relay: archive failed", err, map[string]interface{}{"sessionId": st.id})
		return
	}
	if st.store == nil {
		return
	}
	rec := store.FromSession(st.sess)
	rec.ID = st.id
	rec.ArchiveURI = uri
	if err := st.store.UpdateSession(rec); err != nil {
		logutil.Error("relay: failed to record archive", err, map[string]interface{}{"sessionId": st.id})
	}
	if err := st.store.AppendHistory(&store.HistoryEntry{
		Event:     "session_archived",
		SessionID: st.id,
		Metadata:  map[string]interface{}{"uri": uri, "files": st.sess.Files.Len()},
	}); err != nil {
		logutil.Error("relay: failed to append history", err, map[string]interface{}{"sessionId": st.id})
	}
}

func (st *run) publish(ctx context.Context, evt events.Event) {
	if st.events == nil {
		return
	}
	if err := st.events.Publish(ctx, evt); err != nil {
		logutil.Error("relay: failed to publish event", err, map[string]interface{}{"sessionId": st.id, "type": evt.Type})
	}
}
