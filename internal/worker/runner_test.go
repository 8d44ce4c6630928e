package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oremus-labs/lockin/internal/jobs"
	"github.com/oremus-labs/lockin/internal/queue"
	"github.com/oremus-labs/lockin/internal/store"
)

type item struct {
	msg *queue.SyncMessage
	id  string
	err error
}

type fakeConsumer struct {
	mu     sync.Mutex
	items  []item
	acked  []string
	cancel context.CancelFunc
}

func (f *fakeConsumer) EnsureGroup(context.Context) error { return nil }

func (f *fakeConsumer) Next(ctx context.Context) (*queue.SyncMessage, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		f.cancel()
		return nil, "", nil
	}
	it := f.items[0]
	f.items = f.items[1:]
	return it.msg, it.id, it.err
}

func (f *fakeConsumer) Ack(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

type fakeJobs struct {
	jobs      map[string]*store.Job
	processed []string
}

func (f *fakeJobs) GetJob(id string) (*store.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) ProcessSync(ctx context.Context, job *store.Job, req jobs.SyncRequest) {
	f.processed = append(f.processed, job.ID+":"+req.RepoName)
}

func TestRunnerProcessesAndAcks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer := &fakeConsumer{
		cancel: cancel,
		items: []item{
			{msg: &queue.SyncMessage{JobID: "j1", Request: jobs.SyncRequest{RepoName: "one"}}, id: "1-0"},
			{id: "2-0", err: errors.New("bad payload")},
			{msg: &queue.SyncMessage{JobID: "done", Request: jobs.SyncRequest{RepoName: "two"}}, id: "3-0"},
			{msg: &queue.SyncMessage{JobID: "missing"}, id: "4-0"},
		},
	}
	fj := &fakeJobs{jobs: map[string]*store.Job{
		"j1":   {ID: "j1", Status: store.JobPending},
		"done": {ID: "done", Status: store.JobDone},
	}}

	r := New(Options{Consumer: consumer, Jobs: fj, RetryDelay: time.Millisecond})
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(fj.processed) != 1 || fj.processed[0] != "j1:one" {
		t.Fatalf("unexpected processed jobs %v", fj.processed)
	}
	if len(consumer.acked) != 4 {
		t.Fatalf("expected every message acked, got %v", consumer.acked)
	}
}

func TestRunnerRequiresDependencies(t *testing.T) {
	t.Parallel()

	if err := New(Options{}).Run(context.Background()); err == nil {
		t.Fatalf("expected error without consumer")
	}
}
