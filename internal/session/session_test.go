package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/oremus-labs/lockin/internal/stream"
	"github.com/stretchr/testify/require"
)

func TestSessionFoldsStream(t *testing.T) {
	t.Parallel()

	input := `data: {"type":"session_start","data":{"session_id":"abc123"}}

data: {"type":"status","data":{"message":"planning"}}

data: {"type":"plan_created","data":{"tech_stack":"react"}}

data: {"type":"file_created","data":{"filename":"src\\App.jsx","content":"app"}}

data: {"type":"file_created","data":{"filename":"index.html","content":"<h1>Hi</h1>"}}

data: {"type":"file_created","data":{"filename":"src/App.jsx","content":"app v2"}}

data: {"type":"complete","data":{"preview_url":"http://x/preview"}}

`
	events, err := stream.Collect(stream.Decode(t.Context(), strings.NewReader(input)))
	require.NoError(t, err)

	s := New()
	s.AddUserMessage("build a landing page")
	for _, ev := range events {
		s.Apply(ev)
	}

	require.Equal(t, "abc123", s.ID)
	require.Equal(t, StateComplete, s.State)
	require.Equal(t, "http://x/preview", s.PreviewURL)
	require.Equal(t, "react", s.TechStack)
	require.Equal(t, "src/App.jsx", s.Selected)
	require.Equal(t, []string{"src/App.jsx", "index.html"}, s.Files.Paths())

	content, ok := s.Files.Get("src/App.jsx")
	require.True(t, ok)
	require.Equal(t, "app v2", content)

	texts := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		texts = append(texts, m.Text)
	}
	require.Equal(t, []string{
		"build a landing page",
		"Session started: abc123",
		"planning",
		"Plan created (tech stack: react)",
		"Generation complete for session: abc123",
	}, texts)
	require.Equal(t, SenderUser, s.Messages[0].Sender)
}

func TestSessionErrorEvent(t *testing.T) {
	t.Parallel()

	s := New()
	msg := s.Apply(stream.Error{Message: "sandbox crashed"})
	require.NotNil(t, msg)
	require.True(t, msg.IsError)
	require.Equal(t, StateFailed, s.State)
	require.Equal(t, "sandbox crashed", s.Error)
	require.True(t, s.Done())
}

func TestSessionTransportFailure(t *testing.T) {
	t.Parallel()

	s := New()
	s.Apply(stream.SessionStart{SessionID: "s1"})
	msg := s.Fail(errors.New("connection refused"))
	require.True(t, msg.IsError)
	require.Equal(t, StateFailed, s.State)
	require.Equal(t, "connection refused", s.Error)
}

func TestSessionSelectRequiresExistingFile(t *testing.T) {
	t.Parallel()

	s := New()
	require.False(t, s.Select("missing.js"))
	s.Apply(stream.FileCreated{Filename: "a.js"})
	s.Apply(stream.FileCreated{Filename: "b.css"})
	require.Equal(t, "a.js", s.Selected)
	require.True(t, s.Select("./b.css"))
	require.Equal(t, "b.css", s.Selected)
}

func TestArtifactSetMergeAndCodeFiles(t *testing.T) {
	t.Parallel()

	a := NewArtifactSet()
	a.Put("README.md", "# hi")
	a.Merge(map[string]string{
		"src/main.jsx": "x",
		"package.json": "{}",
		"README.md":    "# updated",
		"server.py":    "print()",
	})
	require.Equal(t, []string{"README.md", "package.json", "server.py", "src/main.jsx"}, a.Paths())
	require.Equal(t, []string{"package.json", "src/main.jsx"}, a.CodeFiles())

	first, ok := a.First()
	require.True(t, ok)
	require.Equal(t, "README.md", first)
	require.Equal(t, "# updated", a.Snapshot()["README.md"])
	require.Empty(t, a.Put("//", "ignored"))
	require.Equal(t, 4, a.Len())
}
