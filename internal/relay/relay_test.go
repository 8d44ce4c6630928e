package relay

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oremus-labs/lockin/internal/events"
	"github.com/oremus-labs/lockin/internal/session"
	"github.com/oremus-labs/lockin/internal/store"
	"github.com/oremus-labs/lockin/internal/stream"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	events []stream.Event
	err    error
}

func (f *fakeAgent) SubmitPrompt(ctx context.Context, prompt string) iter.Seq2[stream.Event, error] {
	return func(yield func(stream.Event, error) bool) {
		for _, ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

type fakeArchiver struct {
	got map[string]string
}

func (a *fakeArchiver) Enabled() bool { return true }

func (a *fakeArchiver) Archive(ctx context.Context, sessionID string, files map[string]string) (string, error) {
	a.got = files
	return "s3://lockin-sessions/" + sessionID, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, evt events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"), store.DriverSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scenario() []stream.Event {
	return []stream.Event{
		stream.Status{Message: "Thinking..."},
		stream.SessionStart{SessionID: "abc123"},
		stream.PlanCreated{TechStack: "React"},
		stream.FileCreated{Filename: "src/App.jsx", Content: "export default () => null"},
		stream.FileCreated{Filename: "index.html", Content: "<div id=root></div>"},
		stream.Complete{PreviewURL: "http://preview/abc123"},
	}
}

func TestRelayPersistsAndForwards(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	bus := &recordingBus{}
	arch := &fakeArchiver{}
	r := New(Options{Agent: &fakeAgent{events: scenario()}, Store: s, Events: bus, Archiver: arch})

	var forwarded []stream.Event
	sess, err := r.Run(context.Background(), "build a todo app", func(ev stream.Event) error {
		forwarded = append(forwarded, ev)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, scenario(), forwarded)
	require.Equal(t, "abc123", sess.ID)
	require.Equal(t, session.StateComplete, sess.State)

	rec, err := s.GetSession("abc123")
	require.NoError(t, err)
	require.Equal(t, session.StateComplete, rec.State)
	require.Equal(t, "React", rec.TechStack)
	require.Equal(t, "http://preview/abc123", rec.PreviewURL)
	require.Equal(t, "s3://lockin-sessions/abc123", rec.ArchiveURI)
	require.Equal(t, 2, rec.FileCount)

	files, err := s.ListFiles("abc123")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "src/App.jsx", files[0].Path)

	msgs, err := s.ListMessages("abc123")
	require.NoError(t, err)
	var texts []string
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	require.Equal(t, []string{
		"build a todo app",
		"Thinking...",
		"Session started: abc123",
		"Plan created (tech stack: React)",
		"Generation complete for session: abc123",
	}, texts)

	require.Len(t, arch.got, 2)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.events, len(scenario()))
	require.Equal(t, "session.complete", bus.events[len(bus.events)-1].Type)
	require.Equal(t, "abc123", bus.events[len(bus.events)-1].SessionID)
}

func TestRelayTransportFailure(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	boom := errors.New("connection reset")
	r := New(Options{Agent: &fakeAgent{
		events: []stream.Event{stream.SessionStart{SessionID: "s1"}, stream.FileCreated{Filename: "a.js", Content: "1"}},
		err:    boom,
	}, Store: s})

	sess, err := r.Run(context.Background(), "x", nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, session.StateFailed, sess.State)
	require.Equal(t, 1, sess.Files.Len())

	rec, err := s.GetSession("s1")
	require.NoError(t, err)
	require.Equal(t, session.StateFailed, rec.State)
	require.Equal(t, "connection reset", rec.Error)

	msgs, err := s.ListMessages("s1")
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	require.True(t, last.IsError)
	require.Equal(t, "Error contacting agent. Please try again.", last.Text)
}

func TestRelayStopsWhenSinkFails(t *testing.T) {
	t.Parallel()

	r := New(Options{Agent: &fakeAgent{events: scenario()}})
	calls := 0
	sess, err := r.Run(context.Background(), "x", func(stream.Event) error {
		calls++
		if calls == 2 {
			return errors.New("broken pipe")
		}
		return nil
	})
	require.ErrorIs(t, err, ErrSinkClosed)
	require.Equal(t, 2, calls)
	require.Equal(t, session.StateFailed, sess.State)
}

func TestRelayInventsIDWhenAgentSendsNone(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	r := New(Options{Agent: &fakeAgent{events: []stream.Event{
		stream.FileCreated{Filename: "index.html", Content: "x"},
	}}, Store: s})

	sess, err := r.Run(context.Background(), "x", nil)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	rec, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StateStreaming, rec.State)
	require.Equal(t, 1, rec.FileCount)
}

func TestRelayTagsEarlyEventsWithSessionID(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	r := New(Options{Agent: &fakeAgent{events: scenario()}, Events: bus})
	_, err := r.Run(context.Background(), "x", nil)
	require.NoError(t, err)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.events, len(scenario()))
	require.Equal(t, "session.status", bus.events[0].Type)
	for _, evt := range bus.events {
		require.Equal(t, "abc123", evt.SessionID, evt.Type)
	}
}

func TestRelayTagsHeldEventsWithInventedID(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	boom := errors.New("connection reset")
	r := New(Options{Agent: &fakeAgent{
		events: []stream.Event{stream.Status{Message: "Thinking..."}},
		err:    boom,
	}, Events: bus})
	sess, err := r.Run(context.Background(), "x", nil)
	require.ErrorIs(t, err, boom)
	require.NotEmpty(t, sess.ID)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.events, 2)
	require.Equal(t, "session.status", bus.events[0].Type)
	require.Equal(t, "session.failed", bus.events[1].Type)
	for _, evt := range bus.events {
		require.Equal(t, sess.ID, evt.SessionID, evt.Type)
	}
}

func TestRelayRequiresAgent(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).Run(context.Background(), "x", nil)
	require.Error(t, err)
}
