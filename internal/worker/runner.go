// Package worker drains queued repository syncs.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/oremus-labs/lockin/internal/jobs"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/oremus-labs/lockin/internal/queue"
	"github.com/oremus-labs/lockin/internal/store"
)

type messageSource interface {
	EnsureGroup(context.Context) error
	Next(context.Context) (*queue.SyncMessage, string, error)
	Ack(context.Context, string) error
}

type syncProcessor interface {
	GetJob(id string) (*store.Job, error)
	ProcessSync(ctx context.Context, job *store.Job, req jobs.SyncRequest)
}

// Options configure the background worker process.
type Options struct {
	Consumer messageSource
	Jobs     syncProcessor
	// RetryDelay is the pause after a failed read from the queue.
	RetryDelay time.Duration
}

// Runner consumes sync messages and executes them one at a time.
type Runner struct {
	consumer   messageSource
	jobs       syncProcessor
	retryDelay time.Duration
}

// New creates a new Runner.
func New(opts Options) *Runner {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Runner{
		consumer:   opts.Consumer,
		jobs:       opts.Jobs,
		retryDelay: delay,
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.consumer == nil || r.jobs == nil {
		return errors.New("worker requires a queue consumer and a job manager")
	}
	if err := r.consumer.EnsureGroup(ctx); err != nil {
		return err
	}
	logutil.Info("worker started", nil)

	for {
		if ctx.Err() != nil {
			logutil.Info("worker shutting down", nil)
			return ctx.Err()
		}
		msg, id, err := r.consumer.Next(ctx)
		if err != nil && id == "" {
			if ctx.Err() != nil {
				continue
			}
			logutil.Error("worker: queue read failed", err, nil)
			r.sleep(ctx)
			continue
		}
		if id == "" {
			continue
		}
		if err != nil {
			logutil.Error("worker: dropping undecodable message", err, map[string]interface{}{"messageId": id})
			r.ack(ctx, id)
			continue
		}
		r.handle(ctx, msg)
		r.ack(ctx, id)
	}
}

func (r *Runner) handle(ctx context.Context, msg *queue.SyncMessage) {
	job, err := r.jobs.GetJob(msg.JobID)
	if err != nil {
		logutil.Error("worker: job not found", err, map[string]interface{}{"jobId": msg.JobID})
		return
	}
	if job.Status == store.JobDone || job.Status == store.JobFailed {
		logutil.Warn("worker: skipping finished job", map[string]interface{}{"jobId": job.ID, "status": job.Status})
		return
	}
	r.jobs.ProcessSync(ctx, job, msg.Request)
}

func (r *Runner) ack(ctx context.Context, id string) {
	if err := r.consumer.Ack(context.WithoutCancel(ctx), id); err != nil {
		logutil.Error("worker: ack failed", err, map[string]interface{}{"messageId": id})
	}
}

func (r *Runner) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.retryDelay):
	}
}
