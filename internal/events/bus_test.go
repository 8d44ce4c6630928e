package events

import (
	"context"
	"testing"
	"time"

	"github.com/oremus-labs/lockin/internal/store"
	"github.com/oremus-labs/lockin/internal/stream"
)

func TestLocalBusDeliversToSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(Options{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsubscribe := bus.Subscribe(ctx)
	defer unsubscribe()

	if err := bus.Publish(ctx, SessionEvent("abc", stream.FileCreated{Filename: "index.html"})); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != "session.file_created" || evt.SessionID != "abc" {
			t.Fatalf("unexpected event %+v", evt)
		}
		if evt.ID == "" || evt.Timestamp.IsZero() {
			t.Fatalf("expected id and timestamp to be filled: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeClosesOnContextCancel(t *testing.T) {
	t.Parallel()

	bus := NewBus(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	ch, unsubscribe := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was not closed")
	}
	// A second cancel must be harmless.
	unsubscribe()
}

func TestJobEventCarriesSessionID(t *testing.T) {
	t.Parallel()

	evt := JobEvent(&store.Job{ID: "j1", Status: store.JobDone, Payload: map[string]interface{}{"sessionId": "s1"}})
	if evt.Type != "job.completed" || evt.SessionID != "s1" {
		t.Fatalf("unexpected job event %+v", evt)
	}
}
