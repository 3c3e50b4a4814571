package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ AuditLog = (*SQLiteStore)(nil)

const auditSchema = `
CREATE TABLE IF NOT EXISTS query_log (
	id          TEXT PRIMARY KEY,
	op          TEXT    NOT NULL,
	files       INTEGER NOT NULL,
	rows        INTEGER NOT NULL,
	remaining   INTEGER NOT NULL,
	cursor      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS query_log_created_at ON query_log (created_at);
`

// SQLiteStore implements AuditLog backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and creates
// the audit schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record inserts ev. A missing ID or timestamp is filled in.
func (s *SQLiteStore) Record(ctx context.Context, ev QueryEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_log (id, op, files, rows, remaining, cursor, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Op, ev.Files, ev.Rows, ev.Remaining, ev.Cursor,
		ev.Duration.Milliseconds(), ev.Error, ev.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting query event: %w", err)
	}
	return nil
}

// Recent returns the newest events first, up to limit.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]QueryEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, op, files, rows, remaining, cursor, duration_ms, error, created_at
		 FROM query_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying query events: %w", err)
	}
	defer rows.Close()

	var events []QueryEvent
	for rows.Next() {
		var (
			ev        QueryEvent
			durMs     int64
			createdMs int64
		)
		if err := rows.Scan(&ev.ID, &ev.Op, &ev.Files, &ev.Rows, &ev.Remaining, &ev.Cursor, &durMs, &ev.Error, &createdMs); err != nil {
			return nil, fmt.Errorf("scanning query event: %w", err)
		}
		ev.Duration = time.Duration(durMs) * time.Millisecond
		ev.CreatedAt = time.UnixMilli(createdMs)
		events = append(events, ev)
	}
	return events, rows.Err()
}
