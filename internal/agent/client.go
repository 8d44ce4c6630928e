// Package agent talks to the Lock-In backend agent (or a gateway that mirrors
// its routes): prompt submission, session file listing and repository sync.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oremus-labs/lockin/internal/metrics"
	"github.com/oremus-labs/lockin/internal/stream"
)

// ErrSyncRejected marks a sync the agent answered but did not perform.
var ErrSyncRejected = errors.New("sync rejected")

// StatusError is returned when the agent answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s failed: %s: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Method, e.Path, e.Status)
}

// Client wraps the agent HTTP API.
type Client struct {
	BaseURL string
	Token   string
	// Timeout bounds non-streaming calls. Prompt streams are bounded only by
	// the caller's context.
	Timeout    time.Duration
	HTTPClient *http.Client
	// OnDecoded receives the decoder counters when a prompt stream ends,
	// after they have been added to the stream metrics.
	OnDecoded func(stream.Stats)
}

// SyncRequest asks the agent to push a session's files to a new repository.
type SyncRequest struct {
	SessionID string `json:"sessionId"`
	RepoName  string `json:"repoName"`
	Token     string `json:"-"`
}

// SyncResult is the agent's answer to a successful sync.
type SyncResult struct {
	Status  string `json:"status"`
	RepoURL string `json:"repo_url"`
	Detail  string `json:"detail,omitempty"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type filesResponse struct {
	Files map[string]string `json:"files"`
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Client) httpClient(streaming bool) *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	if streaming {
		return &http.Client{}
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, target interface{}) error {
	resp, err := c.httpClient(false).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(req, resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// Temporary reports whether err is worth retrying: transport failures and
// 5xx answers are, rejections and 4xx answers are not.
func Temporary(err error) bool {
	if err == nil || errors.Is(err, ErrSyncRejected) || errors.Is(err, context.Canceled) {
		return false
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Code >= 500
	}
	return true
}

func statusError(req *http.Request, resp *http.Response) error {
	serr := &StatusError{
		Method: req.Method,
		Path:   req.URL.Path,
		Code:   resp.StatusCode,
		Status: resp.Status,
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		serr.Detail = payload.Detail
		if serr.Detail == "" {
			serr.Detail = payload.Error
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		serr.Detail = text
	}
	return serr
}

// SubmitPrompt posts the prompt and lazily decodes the streamed reply. A
// transport failure, including a non-2xx status, is yielded once as the last
// element. The response body is closed when iteration stops.
func (c *Client) SubmitPrompt(ctx context.Context, prompt string) iter.Seq2[stream.Event, error] {
	return func(yield func(stream.Event, error) bool) {
		body, err := json.Marshal(promptRequest{Prompt: prompt})
		if err != nil {
			yield(nil, err)
			return
		}
		req, err := c.newRequest(ctx, http.MethodPost, "/prompt", bytes.NewReader(body))
		if err != nil {
			yield(nil, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient(true).Do(req)
		if err != nil {
			yield(nil, fmt.Errorf("POST /prompt: %w", err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			yield(nil, statusError(req, resp))
			return
		}

		for ev, err := range stream.DecodeWith(ctx, resp.Body, c.decoded) {
			if !yield(ev, err) {
				return
			}
		}
	}
}

func (c *Client) decoded(stats stream.Stats) {
	metrics.ObserveDecoder(stats)
	if c.OnDecoded != nil {
		c.OnDecoded(stats)
	}
}

// SessionFiles returns the full path → content mapping for a session.
func (c *Client) SessionFiles(ctx context.Context, sessionID string) (map[string]string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID)+"/files", nil)
	if err != nil {
		return nil, err
	}
	var resp filesResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Files == nil {
		resp.Files = map[string]string{}
	}
	return resp.Files, nil
}

// SyncRepository forwards a repository sync for a session. The agent takes
// its parameters on the query string.
func (c *Client) SyncRepository(ctx context.Context, in SyncRequest) (*SyncResult, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if in.RepoName == "" {
		return nil, fmt.Errorf("repository name is required")
	}
	if in.Token == "" {
		return nil, fmt.Errorf("source-control token is required")
	}
	q := url.Values{}
	q.Set("session_id", in.SessionID)
	q.Set("repo_name", in.RepoName)
	q.Set("token", in.Token)

	req, err := c.newRequest(ctx, http.MethodPost, "/github/sync?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var result SyncResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		detail := result.Detail
		if detail == "" {
			detail = "sync did not report success"
		}
		return &result, fmt.Errorf("%w: %s", ErrSyncRejected, detail)
	}
	return &result, nil
}

// Health checks that the agent answers at all.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
