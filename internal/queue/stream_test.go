package queue

import (
	"context"
	"testing"

	"github.com/oremus-labs/lockin/internal/jobs"
	"github.com/redis/go-redis/v9"
)

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	msg, err := decodeMessage(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"data": `{"jobId":"j1","request":{"sessionId":"s1","repoName":"r","token":"t"}}`},
	})
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	want := jobs.SyncRequest{SessionID: "s1", RepoName: "r", Token: "t"}
	if msg.JobID != "j1" || msg.Request != want {
		t.Fatalf("unexpected message %+v", msg)
	}

	if _, err := decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{}}); err == nil {
		t.Fatalf("expected error for missing data field")
	}
	if _, err := decodeMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}}); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}

func TestUnconfiguredQueue(t *testing.T) {
	t.Parallel()

	var p *Producer
	if err := p.Enqueue(context.Background(), "j1", jobs.SyncRequest{}); err == nil {
		t.Fatalf("expected error from nil producer")
	}
	c := NewConsumer(nil, "", "", "")
	if c.stream != DefaultStream || c.group != DefaultGroup || c.name == "" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if _, _, err := c.Next(context.Background()); err == nil {
		t.Fatalf("expected error from unconfigured consumer")
	}
	if err := c.Ack(context.Background(), "1-0"); err != nil {
		t.Fatalf("Ack on unconfigured consumer should be a no-op: %v", err)
	}
}

type ackClient struct {
	redis.UniversalClient
	acked   []string
	deleted []string
}

func (c *ackClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	c.acked = append(c.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (c *ackClient) XDel(ctx context.Context, stream string, ids ...string) *redis.IntCmd {
	c.deleted = append(c.deleted, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func TestAckDeletesMessage(t *testing.T) {
	t.Parallel()

	client := &ackClient{}
	c := NewConsumer(client, "", "", "w1")
	if err := c.Ack(context.Background(), "5-0"); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if len(client.acked) != 1 || client.acked[0] != "5-0" {
		t.Fatalf("unexpected acks %v", client.acked)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "5-0" {
		t.Fatalf("acked message must be deleted, got %v", client.deleted)
	}
}
