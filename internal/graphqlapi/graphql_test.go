package graphqlapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/oremus-labs/lockin/internal/session"
	"github.com/oremus-labs/lockin/internal/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"), store.DriverSQLite)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.CreateSession(&store.Session{ID: "abc", Prompt: "todo app", State: session.StateComplete, PreviewURL: "http://p"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for path, content := range map[string]string{"src/App.jsx": "x", "README.md": "# hi"} {
		if err := s.PutFile("abc", path, content); err != nil {
			t.Fatalf("PutFile: %v", err)
		}
	}
	if err := s.AppendMessage("abc", session.Message{ID: uuid.NewString(), Sender: session.SenderUser, Text: "todo app"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	return s
}

func TestGraphQLSessionQuery(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(Config{Store: seedStore(t)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	body := EncodeGraphQLQuery(`{ session(id: "abc") { id state previewUrl fileCount files(codeOnly: true) { path } messages { sender text } } }`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			Session struct {
				ID         string `json:"id"`
				State      string `json:"state"`
				PreviewURL string `json:"previewUrl"`
				FileCount  int    `json:"fileCount"`
				Files      []struct {
					Path string `json:"path"`
				} `json:"files"`
				Messages []struct {
					Sender string `json:"sender"`
					Text   string `json:"text"`
				} `json:"messages"`
			} `json:"session"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", resp.Errors)
	}
	got := resp.Data.Session
	if got.ID != "abc" || got.State != "complete" || got.PreviewURL != "http://p" || got.FileCount != 2 {
		t.Fatalf("unexpected session %+v", got)
	}
	if len(got.Files) != 1 || got.Files[0].Path != "src/App.jsx" {
		t.Fatalf("expected only code files, got %+v", got.Files)
	}
	if len(got.Messages) != 1 || got.Messages[0].Sender != "user" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestGraphQLUnknownSessionIsNull(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(Config{Store: seedStore(t)})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(EncodeGraphQLQuery(`{ session(id: "nope") { id } sessions { id } }`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp struct {
		Data struct {
			Session  *struct{ ID string }  `json:"session"`
			Sessions []struct{ ID string } `json:"sessions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Session != nil {
		t.Fatalf("expected null session, got %+v", resp.Data.Session)
	}
	if len(resp.Data.Sessions) != 1 {
		t.Fatalf("expected one session, got %+v", resp.Data.Sessions)
	}
}
