// Package modlog stores and fans out moderation reports.
package modlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/apexion-ai/threadbot/internal/dispatch"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS reports (
    id          TEXT PRIMARY KEY,
    created_at  TEXT NOT NULL,
    kind        TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    thread_id   TEXT NOT NULL DEFAULT '',
    categories  TEXT NOT NULL DEFAULT '',
    text        TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`

// Kind distinguishes flagged from blocked reports.
type Kind string

const (
	KindFlagged Kind = "flagged"
	KindBlocked Kind = "blocked"
)

// Entry is one stored report.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Kind      Kind
	dispatch.Report
}

// SQLiteStore is a dispatch.ModerationLog backed by a SQLite audit table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default database path (~/.local/share/threadbot/modlog.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "threadbot", "modlog.db"), nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Concurrent `complete` runs write from several goroutines.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Flagged(ctx context.Context, r dispatch.Report) error {
	return s.insert(ctx, KindFlagged, r)
}

func (s *SQLiteStore) Blocked(ctx context.Context, r dispatch.Report) error {
	return s.insert(ctx, KindBlocked, r)
}

func (s *SQLiteStore) insert(ctx context.Context, kind Kind, r dispatch.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, created_at, kind, user_id, thread_id, categories, text, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		s.now().UTC().Format(time.RFC3339Nano),
		string(kind),
		r.User,
		r.ThreadID,
		r.Categories,
		r.Text,
		r.URL,
	)
	if err != nil {
		return fmt.Errorf("save %s report: %w", kind, err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, kind, user_id, thread_id, categories, text, url
		FROM reports ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt, kind string
		if err := rows.Scan(&e.ID, &createdAt, &kind, &e.User, &e.ThreadID, &e.Categories, &e.Text, &e.URL); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
