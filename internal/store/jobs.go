package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents asynchronous job state.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "completed"
	JobFailed  JobStatus = "failed"
)

// Job represents an asynchronous task (e.g., a repository sync).
type Job struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Status      JobStatus              `json:"status"`
	Stage       string                 `json:"stage,omitempty"`
	Progress    int                    `json:"progress,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Attempt     int                    `json:"attempt"`
	MaxAttempts int                    `json:"maxAttempts"`
	Logs        []JobLogEntry          `json:"logs,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// JobLogEntry is one progress line of a job.
type JobLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message"`
}

// HistoryEntry stores past actions (syncs, archived sessions, etc.).
type HistoryEntry struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	SessionID string                 `json:"sessionId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// CreateJob inserts a new job record.
func (s *Store) CreateJob(job *Job) error {
	if job.ID == "" {
		return errors.New("job id required")
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobPending
	}
	payload, result, logs, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO jobs (id, type, status, stage, progress, message, payload, result, error, attempt, max_attempts, logs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, string(job.Status), job.Stage, job.Progress, job.Message, payload, result, job.Error, job.Attempt, job.MaxAttempts, logs, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// UpdateJob mutates an existing job.
func (s *Store) UpdateJob(job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	payload, result, logs, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.exec(`UPDATE jobs SET type=?, status=?, stage=?, progress=?, message=?, payload=?, result=?, error=?, attempt=?, max_attempts=?, logs=?, updated_at=? WHERE id=?`,
		job.Type, string(job.Status), job.Stage, job.Progress, job.Message, payload, result, job.Error, job.Attempt, job.MaxAttempts, logs, job.UpdatedAt, job.ID,
	)
	return err
}

// AppendJobLog adds a log line to a job.
func (s *Store) AppendJobLog(id string, entry JobLogEntry) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	job.Logs = append(job.Logs, entry)
	logs, err := json.Marshal(job.Logs)
	if err != nil {
		return err
	}
	_, err = s.exec(`UPDATE jobs SET logs=? WHERE id=?`, string(logs), id)
	return err
}

func encodeJob(job *Job) (string, string, string, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return "", "", "", err
	}
	result, err := json.Marshal(job.Result)
	if err != nil {
		return "", "", "", err
	}
	logs, err := json.Marshal(job.Logs)
	if err != nil {
		return "", "", "", err
	}
	return string(payload), string(result), string(logs), nil
}

const jobColumns = `id, type, status, stage, progress, message, payload, result, error, attempt, max_attempts, logs, created_at, updated_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*Job, error) {
	var (
		job    Job
		status string
	)
	var stage, message, payload, result, errText, logs sql.NullString
	if err := row.Scan(&job.ID, &job.Type, &status, &stage, &job.Progress, &message, &payload, &result, &errText, &job.Attempt, &job.MaxAttempts, &logs, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.Stage = stage.String
	job.Message = message.String
	job.Error = errText.String
	if payload.Valid {
		_ = json.Unmarshal([]byte(payload.String), &job.Payload)
	}
	if result.Valid {
		_ = json.Unmarshal([]byte(result.String), &job.Result)
	}
	if logs.Valid {
		_ = json.Unmarshal([]byte(logs.String), &job.Logs)
	}
	return &job, nil
}

// GetJob loads a job by ID.
func (s *Store) GetJob(id string) (*Job, error) {
	job, err := scanJob(s.queryRow(`SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

// ListJobs returns recent jobs sorted from newest to oldest.
func (s *Store) ListJobs(limit int) ([]Job, error) {
	rows, err := s.query(limitClause(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC`, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// AppendHistory writes an entry to the history log.
func (s *Store) AppendHistory(entry *HistoryEntry) error {
	entry.CreatedAt = time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO history (id, event, session_id, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Event, entry.SessionID, string(metadata), entry.CreatedAt,
	)
	return err
}

// ListHistory returns the newest history entries.
func (s *Store) ListHistory(limit int) ([]HistoryEntry, error) {
	rows, err := s.query(limitClause(`SELECT id, event, session_id, metadata, created_at FROM history ORDER BY created_at DESC`, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var sessionID, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Event, &sessionID, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
