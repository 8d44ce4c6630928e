package lockincli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, rec := range []string{
			`{"type":"session_start","data":{"session_id":"abc123"}}`,
			`{"type":"plan_created","data":{"tech_stack":"react"}}`,
			`{"type":"file_created","data":{"filename":"src/App.jsx","content":"export default 1"}}`,
			`{"type":"file_created","data":{"filename":"index.html","content":"<div id=root></div>"}}`,
			`{"type":"complete","data":{"preview_url":"http://preview/abc123"}}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", rec)
		}
	})
	mux.HandleFunc("GET /session/abc123/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"files": map[string]string{"index.html": "<h1>Hi</h1>", "README.md": "docs"},
		})
	})
	mux.HandleFunc("POST /github/sync", func(w http.ResponseWriter, r *http.Request) {
		var body syncPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Token == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "token is required"})
			return
		}
		_ = json.NewEncoder(w).Encode(syncAnswer{Status: "success", RepoURL: "https://github.com/me/" + body.RepoName, JobID: "job-123456789"})
	})
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc123", r.URL.Query().Get("session"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "id: 1\nevent: session.status\ndata: {\"id\":\"1\",\"type\":\"session.status\",\"sessionId\":\"abc123\",\"data\":{\"message\":\"working\"}}\n\n")
		fmt.Fprint(w, "id: 2\nevent: session.complete\ndata: {\"id\":\"2\",\"type\":\"session.complete\",\"sessionId\":\"abc123\"}\n\n")
		fmt.Fprint(w, "id: 3\nevent: session.status\ndata: {\"id\":\"3\",\"type\":\"session.status\",\"sessionId\":\"abc123\"}\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPromptFollowsStreamAndWritesFiles(t *testing.T) {
	t.Parallel()

	srv := fakeGateway(t)
	dir := t.TempDir()
	outDir := filepath.Join(dir, "site")

	out, _, err := runCLI(t, "--config", filepath.Join(dir, "cfg.yaml"), "--server", srv.URL, "--token", "secret",
		"prompt", "--out", outDir, "a", "landing", "page")
	require.NoError(t, err)

	assert.Contains(t, out, "Session started: abc123")
	assert.Contains(t, out, "+ src/App.jsx")
	assert.Contains(t, out, "http://preview/abc123")
	assert.Contains(t, out, "Wrote 2 files")

	content, err := os.ReadFile(filepath.Join(outDir, "src", "App.jsx"))
	require.NoError(t, err)
	assert.Equal(t, "export default 1", string(content))
}

func TestPromptJSONOutput(t *testing.T) {
	t.Parallel()

	srv := fakeGateway(t)
	out, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "cfg.yaml"), "--server", srv.URL, "--token", "secret",
		"-o", "json", "prompt", "build")
	require.NoError(t, err)

	var res promptResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "abc123", res.SessionID)
	assert.Equal(t, "react", res.TechStack)
	assert.Equal(t, []string{"src/App.jsx", "index.html"}, res.Files)
}

func TestPromptReportsTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, errOut, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "cfg.yaml"), "--server", srv.URL, "prompt", "x")
	require.Error(t, err)
	assert.Contains(t, errOut, "Error contacting agent")
}

func TestFilesFiltersCodeAndShowsContent(t *testing.T) {
	t.Parallel()

	srv := fakeGateway(t)
	cfg := filepath.Join(t.TempDir(), "cfg.yaml")

	out, _, err := runCLI(t, "--config", cfg, "--server", srv.URL, "files", "--code", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "index.html")
	assert.NotContains(t, out, "README.md")

	out, _, err = runCLI(t, "--config", cfg, "--server", srv.URL, "files", "--show", "README.md", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "docs", out)
}

func TestSyncUsesContextGitHubToken(t *testing.T) {
	t.Parallel()

	srv := fakeGateway(t)
	cfg := filepath.Join(t.TempDir(), "cfg.yaml")

	_, _, err := runCLI(t, "--config", cfg, "config", "set-context", "local", "--server", srv.URL, "--github-token", "gh")
	require.NoError(t, err)

	out, _, err := runCLI(t, "--config", cfg, "sync", "abc123", "--repo", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "https://github.com/me/demo")
	assert.Contains(t, out, "job-1234")

	_, _, err = runCLI(t, "--config", cfg, "--context", "missing", "sync", "abc123", "--repo", "demo")
	require.ErrorContains(t, err, `context "missing" not found`)
}

func TestSyncSurfacesGatewayError(t *testing.T) {
	t.Parallel()

	srv := fakeGateway(t)
	_, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "cfg.yaml"), "--server", srv.URL, "sync", "abc123", "--repo", "demo")
	require.ErrorContains(t, err, "token is required")
}

func TestWatchStopsAtUntil(t *testing.T) {
	t.Parallel()

	srv := fakeGateway(t)
	out, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "cfg.yaml"), "--server", srv.URL,
		"watch", "--session", "abc123", "--until", "session.complete")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "session.status")
	assert.Contains(t, lines[1], "session.complete")
}

func TestConfigContexts(t *testing.T) {
	t.Parallel()

	cfg := filepath.Join(t.TempDir(), "nested", "cfg.yaml")

	_, _, err := runCLI(t, "--config", cfg, "config", "set-context", "prod", "--server", "https://lockin.example.com", "--token", "t1")
	require.NoError(t, err)
	_, _, err = runCLI(t, "--config", cfg, "config", "set-context", "dev", "--server", "http://localhost:8080", "--current=false")
	require.NoError(t, err)

	out, _, err := runCLI(t, "--config", cfg, "config", "current-context")
	require.NoError(t, err)
	assert.Equal(t, "prod\n", out)

	_, _, err = runCLI(t, "--config", cfg, "config", "use-context", "dev")
	require.NoError(t, err)
	_, _, err = runCLI(t, "--config", cfg, "config", "use-context", "nope")
	require.Error(t, err)

	out, _, err = runCLI(t, "--config", cfg, "config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "* dev (http://localhost:8080)")
	assert.Contains(t, out, "  prod (https://lockin.example.com)")

	loaded, err := LoadConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "t1", loaded.Contexts["prod"].Token)
}

func TestWriteFilesRefusesEscapes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := writeFiles(dir, map[string]string{"../evil.txt": "x"})
	require.Error(t, err)

	written, err := writeFiles(dir, map[string]string{`src\\main.js`: "1", "./a.css": "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.css", "src/main.js"}, written)
}

func TestUnsupportedOutputFormat(t *testing.T) {
	t.Parallel()

	_, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "cfg.yaml"), "-o", "yaml", "sessions")
	require.ErrorContains(t, err, "unsupported output format")
}

func TestStreamEventsFramesRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\nid: 7\nevent: job.running\ndata: {\"sessionId\":")
		flusher.Flush()
		fmt.Fprint(w, "\ndata: \"s1\"}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "id: 8\ndata: {\"id\":\"8\",\"type\":\"job.done\"}")
	}))
	t.Cleanup(srv.Close)

	client := &Client{BaseURL: srv.URL}
	var got []EventEnvelope
	err := client.StreamEvents(t.Context(), "/events", func(evt EventEnvelope) bool {
		got = append(got, evt)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].ID)
	assert.Equal(t, "job.running", got[0].Type)
	assert.Equal(t, "s1", got[0].SessionID)
}
