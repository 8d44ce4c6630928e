package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store wraps the SQL database used for persistence.
type Store struct {
	db     *sql.DB
	driver string
}

// Open initializes the datastore using the supplied DSN/file path and driver.
func Open(dsn string, driver string) (*Store, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("datastore DSN is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create datastore directory: %w", err)
		}
		conn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dsn)
		db, err = sql.Open("sqlite", conn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite datastore: %w", err)
		}
		// modernc serializes writers; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres datastore: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported datastore driver: %s", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Driver reports which SQL backend is in use.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) initSchema() error {
	boolType := "BOOLEAN"
	tsType := "TIMESTAMP"
	if s.driver == DriverPostgres {
		tsType = "TIMESTAMPTZ"
	}
	var stmts []string
	if s.driver == DriverSQLite {
		stmts = append(stmts, `PRAGMA journal_mode=WAL;`)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			prompt TEXT,
			state TEXT NOT NULL,
			tech_stack TEXT,
			preview_url TEXT,
			selected TEXT,
			error TEXT,
			archive_uri TEXT,
			created_at `+tsType+` NOT NULL,
			updated_at `+tsType+` NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);`,
		`CREATE TABLE IF NOT EXISTS session_files (
			session_id TEXT NOT NULL,
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			position INTEGER NOT NULL,
			updated_at `+tsType+` NOT NULL,
			PRIMARY KEY (session_id, path)
		);`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			sender TEXT NOT NULL,
			kind TEXT,
			text TEXT NOT NULL,
			is_error `+boolType+` NOT NULL,
			created_at `+tsType+` NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON session_messages(session_id, position);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT,
			progress INTEGER DEFAULT 0,
			message TEXT,
			payload TEXT,
			result TEXT,
			error TEXT,
			attempt INTEGER DEFAULT 0,
			max_attempts INTEGER DEFAULT 0,
			logs TEXT,
			created_at `+tsType+` NOT NULL,
			updated_at `+tsType+` NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			session_id TEXT,
			metadata TEXT,
			created_at `+tsType+` NOT NULL
		);`,
	)
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

// Close shuts down the datastore.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(s.rebind(query), args...)
}

func (s *Store) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(s.rebind(query), args...)
}

func (s *Store) queryRow(query string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(s.rebind(query), args...)
}

func limitClause(query string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	return query
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
