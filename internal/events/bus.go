// Package events fans gateway activity out to SSE watchers, locally and
// across replicas through Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/oremus-labs/lockin/internal/store"
	"github.com/oremus-labs/lockin/internal/stream"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "lockin-events"

// Event represents one activity notification.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// SessionEvent wraps a decoded agent event as "session.<kind>".
func SessionEvent(sessionID string, ev stream.Event) Event {
	return Event{
		Type:      "session." + string(ev.Kind()),
		SessionID: sessionID,
		Data:      ev,
	}
}

// JobEvent wraps a job snapshot as "job.<status>".
func JobEvent(job *store.Job) Event {
	var sessionID string
	if job.Payload != nil {
		sessionID, _ = job.Payload["sessionId"].(string)
	}
	return Event{
		Type:      "job." + string(job.Status),
		SessionID: sessionID,
		Data:      job,
	}
}

// Bus multiplexes events to connected clients (local + Redis backed).
type Bus struct {
	client redis.UniversalClient
	ch     string
	origin string

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}

	stop context.CancelFunc
	done chan struct{}
}

// Options configure the bus.
type Options struct {
	Client  redis.UniversalClient
	Channel string
}

// envelope tags Redis payloads so a replica ignores its own echo.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// NewBus creates a new event bus. A nil Redis client keeps it process-local.
func NewBus(opts Options) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	bus := &Bus{
		client:      opts.Client,
		ch:          channel,
		origin:      uuid.NewString(),
		subscribers: make(map[chan Event]struct{}),
		done:        make(chan struct{}),
	}
	if bus.client != nil {
		ctx, cancel := context.WithCancel(context.Background())
		bus.stop = cancel
		go bus.observeRedis(ctx)
	} else {
		close(bus.done)
	}
	return bus
}

// Publish broadcasts an event to all subscribers and Redis.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b == nil {
		return nil
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.broadcast(evt)

	if b.client != nil {
		payload, err := json.Marshal(envelope{Origin: b.origin, Event: evt})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
	}
	return nil
}

// Subscribe registers a subscriber and returns a channel plus a cancel func.
// The channel is closed when ctx ends or cancel is called.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel
}

// Close stops the Redis listener.
func (b *Bus) Close() {
	if b == nil || b.stop == nil {
		return
	}
	b.stop()
	<-b.done
}

func (b *Bus) broadcast(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			logutil.Warn("events: dropping event for slow subscriber", map[string]interface{}{
				"eventId": evt.ID,
				"type":    evt.Type,
			})
		}
	}
}

func (b *Bus) observeRedis(ctx context.Context) {
	defer close(b.done)
	pubsub := b.client.Subscribe(ctx, b.ch)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logutil.Error("events: redis subscriber error", err, map[string]interface{}{"channel": b.ch})
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logutil.Warn("events: invalid payload", map[string]interface{}{"error": err.Error()})
			continue
		}
		if env.Origin == b.origin {
			continue
		}
		b.broadcast(env.Event)
	}
}
