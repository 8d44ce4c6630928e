package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/lockin/internal/agent"
	"github.com/oremus-labs/lockin/internal/events"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/oremus-labs/lockin/internal/metrics"
	"github.com/oremus-labs/lockin/internal/store"
)

// TypeGitHubSync is the job type for repository syncs.
const TypeGitHubSync = "github_sync"

// Manager coordinates asynchronous background work (repository syncs).
type Manager struct {
	store       *store.Store
	syncer      repoSyncer
	events      eventPublisher
	queue       Enqueuer
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	token       string
}

type repoSyncer interface {
	SyncRepository(context.Context, agent.SyncRequest) (*agent.SyncResult, error)
}

type eventPublisher interface {
	Publish(context.Context, events.Event) error
}

// Enqueuer hands a job to an external worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, req SyncRequest) error
}

// Options configures the job manager.
type Options struct {
	Store          *store.Store
	Syncer         repoSyncer
	EventPublisher eventPublisher
	// Queue, when set, moves execution to the worker process.
	Queue          Enqueuer
	MaxJobAttempts int
	RetryBackoff   time.Duration
	Timeout        time.Duration
	// DefaultToken is the deployment's own source-control token. Requests
	// carrying it are queued without it and the worker substitutes its own.
	DefaultToken string
}

// New creates a job manager.
func New(opts Options) *Manager {
	if opts.MaxJobAttempts <= 0 {
		opts.MaxJobAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Manager{
		store:       opts.Store,
		syncer:      opts.Syncer,
		events:      opts.EventPublisher,
		queue:       opts.Queue,
		maxAttempts: opts.MaxJobAttempts,
		backoff:     opts.RetryBackoff,
		timeout:     opts.Timeout,
		token:       opts.DefaultToken,
	}
}

// SyncRequest describes a repository sync job. The token is never written to
// the job record, and is left out of queued messages when it is the default.
type SyncRequest struct {
	SessionID string `json:"sessionId"`
	RepoName  string `json:"repoName"`
	Token     string `json:"token,omitempty"`
}

// Validate checks the required fields.
func (r SyncRequest) Validate() error {
	switch {
	case r.SessionID == "":
		return errors.New("sessionId is required")
	case r.RepoName == "":
		return errors.New("repoName is required")
	case r.Token == "":
		return errors.New("token is required")
	}
	return nil
}

// EnqueueSync schedules a sync. With a queue configured the worker runs it;
// otherwise it runs in a goroutine of this process.
func (m *Manager) EnqueueSync(ctx context.Context, req SyncRequest) (*store.Job, error) {
	job, err := m.CreateJob(req)
	if err != nil {
		return nil, err
	}
	if m.queue != nil {
		queued := req
		if m.token != "" && queued.Token == m.token {
			queued.Token = ""
		}
		if err := m.queue.Enqueue(ctx, job.ID, queued); err != nil {
			job.Error = err.Error()
			m.updateJob(job, store.JobFailed, -1, "failed", "Could not enqueue job")
			return nil, fmt.Errorf("enqueue sync: %w", err)
		}
		m.logJob(job, "info", "queued", "Handed to worker")
		return job, nil
	}
	go m.ProcessSync(context.Background(), job, req)
	return job, nil
}

// SyncNow creates and runs a sync job in the caller's goroutine.
func (m *Manager) SyncNow(ctx context.Context, req SyncRequest) (*store.Job, error) {
	job, err := m.CreateJob(req)
	if err != nil {
		return nil, err
	}
	m.ProcessSync(ctx, job, req)
	return job, nil
}

// CreateJob persists a new pending job without executing it.
func (m *Manager) CreateJob(req SyncRequest) (*store.Job, error) {
	if m.store == nil || m.syncer == nil {
		return nil, fmt.Errorf("job manager not configured")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	job := &store.Job{
		ID:   uuid.NewString(),
		Type: TypeGitHubSync,
		Payload: map[string]interface{}{
			"sessionId": req.SessionID,
			"repoName":  req.RepoName,
		},
		Status:      store.JobPending,
		MaxAttempts: m.maxAttempts,
	}
	if err := m.store.CreateJob(job); err != nil {
		return nil, err
	}
	m.emitJobEvent(job)
	return job, nil
}

// GetJob loads a job by ID.
func (m *Manager) GetJob(id string) (*store.Job, error) {
	if m.store == nil {
		return nil, fmt.Errorf("job manager not configured")
	}
	return m.store.GetJob(id)
}

// ProcessSync executes the job synchronously (used by workers). Temporary
// agent failures are retried up to the job's attempt limit.
func (m *Manager) ProcessSync(ctx context.Context, job *store.Job, req SyncRequest) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	start := time.Now()
	finalStatus := "failed"
	defer func() {
		metrics.ObserveJobCompletion(job.Type, finalStatus, time.Since(start))
	}()

	var (
		result *agent.SyncResult
		err    error
	)
	token := req.Token
	if token == "" {
		token = m.token
	}
	switch {
	case job.Attempt >= job.MaxAttempts:
		err = fmt.Errorf("job exhausted %d attempts", job.MaxAttempts)
	case token == "":
		err = errors.New("no source-control token for this sync")
	}
	for err == nil {
		job.Attempt++
		m.logJob(job, "info", "syncing", fmt.Sprintf("Attempt %d/%d", job.Attempt, job.MaxAttempts))
		m.updateJob(job, store.JobRunning, 20, "syncing", fmt.Sprintf("Pushing session %s to %s", req.SessionID, req.RepoName))

		result, err = m.syncer.SyncRepository(ctx, agent.SyncRequest{
			SessionID: req.SessionID,
			RepoName:  req.RepoName,
			Token:     token,
		})
		if err == nil || !agent.Temporary(err) || job.Attempt >= job.MaxAttempts {
			break
		}
		m.logJob(job, "warn", "retrying", err.Error())
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(m.backoff * time.Duration(job.Attempt)):
			err = nil
		}
	}

	if err != nil {
		job.Error = err.Error()
		m.updateJob(job, store.JobFailed, job.Progress, "failed", err.Error())
		m.appendHistory("github_sync_failed", req.SessionID, map[string]interface{}{
			"jobId":    job.ID,
			"repoName": req.RepoName,
			"error":    err.Error(),
		})
		m.logJob(job, "error", "failed", err.Error())
		logutil.Error("github_sync_failed", err, map[string]interface{}{
			"jobId":     job.ID,
			"sessionId": req.SessionID,
			"repoName":  req.RepoName,
			"attempts":  job.Attempt,
		})
		return
	}
	finalStatus = "success"

	job.Error = ""
	job.Result = map[string]interface{}{
		"status":  result.Status,
		"repoUrl": result.RepoURL,
	}
	m.updateJob(job, store.JobDone, 100, "completed", "Repository synced")
	m.logJob(job, "info", "completed", "Repository synced")

	m.appendHistory("github_sync_completed", req.SessionID, map[string]interface{}{
		"jobId":    job.ID,
		"repoName": req.RepoName,
		"repoUrl":  result.RepoURL,
	})
	logutil.Info("github_sync_completed", map[string]interface{}{
		"jobId":     job.ID,
		"sessionId": req.SessionID,
		"repoUrl":   result.RepoURL,
		"duration":  time.Since(start).String(),
	})
}

func (m *Manager) updateJob(job *store.Job, status store.JobStatus, progress int, stage, message string) {
	if status != "" {
		job.Status = status
	}
	if progress >= 0 {
		if progress > 100 {
			progress = 100
		}
		job.Progress = progress
	}
	if stage != "" {
		job.Stage = stage
	}
	if message != "" {
		job.Message = message
	}
	if err := m.store.UpdateJob(job); err != nil {
		logutil.Error("jobs: failed to update job", err, map[string]interface{}{"jobId": job.ID})
		return
	}
	m.emitJobEvent(job)
}

func (m *Manager) appendHistory(event, sessionID string, meta map[string]interface{}) {
	if m.store == nil {
		return
	}
	if err := m.store.AppendHistory(&store.HistoryEntry{
		Event:     event,
		SessionID: sessionID,
		Metadata:  meta,
	}); err != nil {
		logutil.Error("jobs: failed to append history", err, map[string]interface{}{"event": event})
	}
}

func (m *Manager) emitJobEvent(job *store.Job) {
	if m.events == nil || job == nil {
		return
	}
	snapshot := *job
	snapshot.Logs = nil
	evt := events.JobEvent(&snapshot)
	evt.Timestamp = job.UpdatedAt
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.events.Publish(ctx, evt); err != nil {
		logutil.Error("jobs: failed to publish job event", err, map[string]interface{}{"jobId": job.ID})
	}
}

func (m *Manager) logJob(job *store.Job, level, stage, message string) {
	if m.store == nil || job == nil {
		return
	}
	entry := store.JobLogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Stage:     stage,
		Message:   message,
	}
	if err := m.store.AppendJobLog(job.ID, entry); err != nil {
		logutil.Error("jobs: failed to append job log", err, map[string]interface{}{"jobId": job.ID})
		return
	}
	job.Logs = append(job.Logs, entry)
}
