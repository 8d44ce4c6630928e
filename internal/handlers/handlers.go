// Package handlers provides HTTP request handlers for the Lock-In gateway API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/lockin/internal/events"
	"github.com/oremus-labs/lockin/internal/jobs"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/oremus-labs/lockin/internal/openapi"
	"github.com/oremus-labs/lockin/internal/relay"
	"github.com/oremus-labs/lockin/internal/session"
	"github.com/oremus-labs/lockin/internal/store"
	"github.com/oremus-labs/lockin/internal/stream"
	"github.com/oremus-labs/lockin/internal/validator"
)

// Options configures handler runtime behavior.
type Options struct {
	// GitHubToken is used for syncs that do not carry their own token.
	GitHubToken string
	// Heartbeat is the comment interval on the /events feed.
	Heartbeat time.Duration
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

type promptRelay interface {
	Run(ctx context.Context, prompt string, sink relay.Sink) (*session.Session, error)
}

type syncJobs interface {
	EnqueueSync(ctx context.Context, req jobs.SyncRequest) (*store.Job, error)
	SyncNow(ctx context.Context, req jobs.SyncRequest) (*store.Job, error)
}

type eventSource interface {
	Subscribe(ctx context.Context) (<-chan events.Event, func())
}

type fileSource interface {
	SessionFiles(ctx context.Context, sessionID string) (map[string]string, error)
}

type requestValidator interface {
	Validate(kind validator.Kind, payload []byte) validator.Result
	CheckPrompt(prompt string) validator.Result
}

// Deps lists the collaborators. Any of them may be nil; the matching routes
// then answer 503.
type Deps struct {
	Store     *store.Store
	Relay     promptRelay
	Jobs      syncJobs
	Events    eventSource
	Agent     fileSource
	Validator requestValidator
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	relay   promptRelay
	jobs    syncJobs
	events  eventSource
	agent   fileSource
	checker requestValidator
	opts    Options
}

// New creates a new Handler instance.
func New(deps Deps, opts Options) *Handler {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		store:   deps.Store,
		relay:   deps.Relay,
		jobs:    deps.Jobs,
		events:  deps.Events,
		agent:   deps.Agent,
		checker: deps.Validator,
		opts:    opts,
	}
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type syncRequest struct {
	SessionID string `json:"sessionId"`
	RepoName  string `json:"repoName"`
	Token     string `json:"token,omitempty"`
	Async     bool   `json:"async,omitempty"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// OpenAPISpec serves the OpenAPI document as JSON.
func (h *Handler) OpenAPISpec(c *gin.Context) {
	doc, err := openapi.JSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render OpenAPI document"})
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

// SubmitPrompt relays a prompt to the agent and streams the decoded events
// back in the same `data: {type,data}` framing.
func (h *Handler) SubmitPrompt(c *gin.Context) {
	if h.relay == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent relay not configured"})
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	if !h.validate(c, validator.KindPrompt, body) {
		return
	}
	var req promptRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if h.checker != nil {
		if res := h.checker.CheckPrompt(req.Prompt); !res.Valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": strings.Join(res.Errors, "; ")})
			return
		}
	}

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sink := func(ev stream.Event) error {
		return writeRecord(w, ev)
	}
	sess, err := h.relay.Run(c.Request.Context(), req.Prompt, sink)
	if err != nil && !errors.Is(err, relay.ErrSinkClosed) && c.Request.Context().Err() == nil {
		// The client only speaks the event framing once the stream is open.
		_ = writeRecord(w, stream.Error{Message: "Error contacting agent. Please try again."})
	}
	if sess != nil {
		logutil.Info("prompt relayed", map[string]interface{}{
			"sessionId": sess.ID,
			"state":     sess.State,
			"requestId": c.GetString("requestID"),
		})
	}
}

func writeRecord(w gin.ResponseWriter, ev stream.Event) error {
	record, err := stream.Encode(ev)
	if err != nil {
		return err
	}
	if _, err := w.Write(record); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// StreamEvents serves the bus as server-sent events. ?session=<id> narrows
// the feed to one session.
func (h *Handler) StreamEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus not configured"})
		return
	}
	filter := c.Query("session")
	ctx := c.Request.Context()
	ch, cancel := h.events.Subscribe(ctx)
	defer cancel()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(h.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			w.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if filter != "" && evt.SessionID != filter {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, payload); err != nil {
				return
			}
			w.Flush()
		}
	}
}

// ListSessions returns recent sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	sessions, err := h.store.ListSessions(queryLimit(c, 50))
	if err != nil {
		h.internalError(c, "failed to list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession returns one session summary.
func (h *Handler) GetSession(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	sess, err := h.store.GetSession(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.internalError(c, "failed to load session", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SessionFiles returns {"files": {path: content}}. Sessions this gateway
// never relayed are looked up on the agent.
func (h *Handler) SessionFiles(c *gin.Context) {
	id := c.Param("id")
	if h.store != nil {
		if _, err := h.store.GetSession(id); err == nil {
			files, err := h.store.FileMap(id)
			if err != nil {
				h.internalError(c, "failed to load files", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"files": files})
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			h.internalError(c, "failed to load session", err)
			return
		}
	}
	if h.agent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	files, err := h.agent.SessionFiles(c.Request.Context(), id)
	if err != nil {
		logutil.Error("agent file lookup failed", err, map[string]interface{}{"sessionId": id})
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// SessionMessages returns the stored transcript.
func (h *Handler) SessionMessages(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	id := c.Param("id")
	if _, err := h.store.GetSession(id); errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	msgs, err := h.store.ListMessages(id)
	if err != nil {
		h.internalError(c, "failed to load messages", err)
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SyncRepository pushes a session's files to a new repository. Parameters
// come from the query string (session_id, repo_name, token) or a JSON body.
// ?async=true queues the job and answers 202.
func (h *Handler) SyncRepository(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync jobs not configured"})
		return
	}
	req := syncRequest{
		SessionID: c.Query("session_id"),
		RepoName:  c.Query("repo_name"),
		Token:     c.Query("token"),
		Async:     c.Query("async") == "true",
	}
	if req.SessionID == "" && req.RepoName == "" {
		body, ok := h.readBody(c)
		if !ok {
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
	}
	payload, _ := json.Marshal(req)
	if !h.validate(c, validator.KindSync, payload) {
		return
	}
	if req.Token == "" {
		req.Token = h.opts.GitHubToken
	}
	jobReq := jobs.SyncRequest{SessionID: req.SessionID, RepoName: req.RepoName, Token: req.Token}
	if err := jobReq.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Async {
		job, err := h.jobs.EnqueueSync(c.Request.Context(), jobReq)
		if err != nil {
			h.internalError(c, "failed to enqueue sync", err)
			return
		}
		c.JSON(http.StatusAccepted, job)
		return
	}

	job, err := h.jobs.SyncNow(c.Request.Context(), jobReq)
	if err != nil {
		h.internalError(c, "failed to run sync", err)
		return
	}
	if job.Status != store.JobDone {
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "detail": job.Error, "job_id": job.ID})
		return
	}
	repoURL, _ := job.Result["repoUrl"].(string)
	c.JSON(http.StatusOK, gin.H{"status": "success", "repo_url": repoURL, "job_id": job.ID})
}

// ListJobs returns recent jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	list, err := h.store.ListJobs(queryLimit(c, 50))
	if err != nil {
		h.internalError(c, "failed to list jobs", err)
		return
	}
	if list == nil {
		list = []store.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

// GetJob returns one job with its log.
func (h *Handler) GetJob(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	job, err := h.store.GetJob(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		h.internalError(c, "failed to load job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListHistory returns sync and archive history.
func (h *Handler) ListHistory(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	entries, err := h.store.ListHistory(queryLimit(c, 50))
	if err != nil {
		h.internalError(c, "failed to list history", err)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, false
	}
	return body, true
}

func (h *Handler) validate(c *gin.Context, kind validator.Kind, body []byte) bool {
	if h.checker == nil {
		return true
	}
	res := h.checker.Validate(kind, body)
	if res.Valid {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": res.Errors})
	return false
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "datastore not configured"})
		return false
	}
	return true
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	logutil.Error(msg, err, map[string]interface{}{
		"path":      c.FullPath(),
		"requestId": c.GetString("requestID"),
	})
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func queryLimit(c *gin.Context, def int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}
