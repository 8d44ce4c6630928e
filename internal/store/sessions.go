package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/oremus-labs/lockin/internal/session"
)

// Session is the persisted summary of one prompt/response cycle.
type Session struct {
	ID         string        `json:"id"`
	Prompt     string        `json:"prompt,omitempty"`
	State      session.State `json:"state"`
	TechStack  string        `json:"techStack,omitempty"`
	PreviewURL string        `json:"previewUrl,omitempty"`
	Selected   string        `json:"selected,omitempty"`
	Error      string        `json:"error,omitempty"`
	ArchiveURI string        `json:"archiveUri,omitempty"`
	FileCount  int           `json:"fileCount"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// File is one stored artifact.
type File struct {
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromSession copies the summary fields of a live session fold.
func FromSession(s *session.Session) *Session {
	return &Session{
		ID:         s.ID,
		Prompt:     s.Prompt,
		State:      s.State,
		TechStack:  s.TechStack,
		PreviewURL: s.PreviewURL,
		Selected:   s.Selected,
		Error:      s.Error,
	}
}

// CreateSession inserts a session record.
func (s *Store) CreateSession(sess *Session) error {
	if sess.ID == "" {
		return errors.New("session id required")
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.State == "" {
		sess.State = session.StatePending
	}
	_, err := s.exec(`INSERT INTO sessions (id, prompt, state, tech_stack, preview_url, selected, error, archive_uri, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Prompt, string(sess.State), sess.TechStack, sess.PreviewURL, sess.Selected, sess.Error, sess.ArchiveURI, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// UpdateSession rewrites the mutable fields of a session.
func (s *Store) UpdateSession(sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	res, err := s.exec(`UPDATE sessions SET prompt=?, state=?, tech_stack=?, preview_url=?, selected=?, error=?, archive_uri=?, updated_at=? WHERE id=?`,
		sess.Prompt, string(sess.State), sess.TechStack, sess.PreviewURL, sess.Selected, sess.Error, sess.ArchiveURI, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const sessionColumns = `id, prompt, state, tech_stack, preview_url, selected, error, archive_uri, created_at, updated_at,
	(SELECT COUNT(*) FROM session_files f WHERE f.session_id = sessions.id)`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var (
		sess  Session
		state string
	)
	var prompt, techStack, previewURL, selected, errText, archiveURI sql.NullString
	if err := row.Scan(&sess.ID, &prompt, &state, &techStack, &previewURL, &selected, &errText, &archiveURI, &sess.CreatedAt, &sess.UpdatedAt, &sess.FileCount); err != nil {
		return nil, err
	}
	sess.State = session.State(state)
	sess.Prompt = prompt.String
	sess.TechStack = techStack.String
	sess.PreviewURL = previewURL.String
	sess.Selected = selected.String
	sess.Error = errText.String
	sess.ArchiveURI = archiveURI.String
	return &sess, nil
}

// GetSession loads a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	sess, err := scanSession(s.queryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return sess, nil
}

// ListSessions returns recent sessions sorted from newest to oldest.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	rows, err := s.query(limitClause(`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// PutFile stores a file for a session. Rewriting a path keeps its position.
func (s *Store) PutFile(sessionID, path, content string) error {
	if sessionID == "" || path == "" {
		return errors.New("session id and path required")
	}
	now := time.Now().UTC()
	_, err := s.exec(`INSERT INTO session_files (session_id, path, content, position, updated_at)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM session_files WHERE session_id = ?), ?)
		ON CONFLICT (session_id, path) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		sessionID, path, content, sessionID, now,
	)
	return err
}

// ListFiles returns a session's files in creation order.
func (s *Store) ListFiles(sessionID string) ([]File, error) {
	rows, err := s.query(`SELECT path, content, updated_at FROM session_files WHERE session_id=? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Path, &f.Content, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FileMap returns a session's files as a path → content mapping.
func (s *Store) FileMap(sessionID string) (map[string]string, error) {
	files, err := s.ListFiles(sessionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f.Path] = f.Content
	}
	return out, nil
}

// AppendMessage adds a transcript line to a session.
func (s *Store) AppendMessage(sessionID string, msg session.Message) error {
	if sessionID == "" || msg.ID == "" {
		return errors.New("session id and message id required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := s.exec(`INSERT INTO session_messages (id, session_id, position, sender, kind, text, is_error, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM session_messages WHERE session_id = ?), ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, sessionID, string(msg.Sender), msg.Kind, msg.Text, msg.IsError, msg.Timestamp,
	)
	return err
}

// ListMessages returns a session transcript in order.
func (s *Store) ListMessages(sessionID string) ([]session.Message, error) {
	rows, err := s.query(`SELECT id, sender, kind, text, is_error, created_at FROM session_messages WHERE session_id=? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []session.Message
	for rows.Next() {
		var (
			m      session.Message
			sender string
			kind   sql.NullString
		)
		if err := rows.Scan(&m.ID, &sender, &kind, &m.Text, &m.IsError, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Sender = session.Sender(sender)
		m.Kind = kind.String
		out = append(out, m)
	}
	return out, rows.Err()
}
