package lockincli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oremus-labs/lockin/internal/stream"
)

// Client wraps gateway API calls.
type Client struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// EventEnvelope mirrors the SSE payload emitted by /events.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
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
	httpClient := &http.Client{Timeout: c.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var body struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
		detail := body.Error
		if detail == "" {
			detail = body.Detail
		}
		if detail != "" {
			return fmt.Errorf("%s %s failed: %s: %s", req.Method, req.URL.Path, resp.Status, detail)
		}
		return fmt.Errorf("%s %s failed: %s", req.Method, req.URL.Path, resp.Status)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *Client) GetJSON(ctx context.Context, path string, target interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}, target interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	return c.do(req, target)
}

// StreamEvents opens the SSE feed and invokes handler for each event. Returning false stops the stream.
func (c *Client) StreamEvents(ctx context.Context, path string, handler func(EventEnvelope) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s failed: %s", path, resp.Status)
	}

	for record, err := range stream.Records(ctx, resp.Body) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fields := stream.ParseFields(record)
		if len(fields.Data) == 0 {
			continue
		}
		var envelope EventEnvelope
		if err := json.Unmarshal(fields.Data, &envelope); err != nil {
			continue
		}
		if envelope.Type == "" {
			envelope.Type = fields.Event
		}
		if envelope.ID == "" {
			envelope.ID = fields.ID
		}
		if handler != nil && !handler(envelope) {
			return nil
		}
	}
	return nil
}
