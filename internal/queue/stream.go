// Package queue carries repository sync jobs from the gateway to the worker
// over a Redis Stream consumer group.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/lockin/internal/jobs"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream = "lockin:sync"
	DefaultGroup  = "sync-workers"
)

// SyncMessage wraps the payload pushed through Redis.
type SyncMessage struct {
	JobID   string           `json:"jobId"`
	Request jobs.SyncRequest `json:"request"`
}

// Producer publishes jobs onto a Redis Stream.
type Producer struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewProducer constructs a producer for the provided stream.
func NewProducer(client redis.UniversalClient, stream string) *Producer {
	if stream == "" {
		stream = DefaultStream
	}
	return &Producer{client: client, stream: stream, maxLen: 10000}
}

// Enqueue pushes a sync request to the stream.
func (p *Producer) Enqueue(ctx context.Context, jobID string, req jobs.SyncRequest) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("queue producer not configured")
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}
	data, err := json.Marshal(SyncMessage{JobID: jobID, Request: req})
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"data": data,
		},
	}).Err()
}

// Consumer pulls jobs from a Redis Stream consumer group.
type Consumer struct {
	client   redis.UniversalClient
	stream   string
	group    string
	name     string
	blockDur time.Duration
}

// NewConsumer creates a consumer bound to a stream + group.
func NewConsumer(client redis.UniversalClient, stream, group, name string) *Consumer {
	if stream == "" {
		stream = DefaultStream
	}
	if group == "" {
		group = DefaultGroup
	}
	if name == "" {
		name = uuid.NewString()
	}
	return &Consumer{
		client:   client,
		stream:   stream,
		group:    group,
		name:     name,
		blockDur: 5 * time.Second,
	}
}

// EnsureGroup ensures the consumer group exists.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("queue consumer not configured")
	}
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Next fetches the next message from the stream (blocking). A nil message
// with an empty id means the block window elapsed.
func (c *Consumer) Next(ctx context.Context) (*SyncMessage, string, error) {
	if c == nil || c.client == nil {
		return nil, "", fmt.Errorf("queue consumer not configured")
	}
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    c.blockDur,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", err
	}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			msgPayload, err := decodeMessage(msg)
			return msgPayload, msg.ID, err
		}
	}
	return nil, "", nil
}

func decodeMessage(msg redis.XMessage) (*SyncMessage, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no data field", msg.ID)
	}
	var payload SyncMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return &payload, nil
}

// Ack confirms processing of a message and deletes it from the stream, so a
// caller-supplied token does not outlive the job.
func (c *Consumer) Ack(ctx context.Context, id string) error {
	if c == nil || c.client == nil || id == "" {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		return err
	}
	return c.client.XDel(ctx, c.stream, id).Err()
}
