// Package store provides access to the day-partitioned CSV files on disk:
// reading data rows, resolving header columns, discovering files, estimating
// sizes, provisioning folders, importing parquet archives, and persisting the
// query audit log.
package store

import (
	"context"
	"time"
)

// RowSource reads the header and data rows of a single day file.
type RowSource interface {
	// ReadHeader returns the tokenized first line of the file.
	ReadHeader(path string) (Header, error)

	// ReadRows returns every non-blank line after the header, in file order.
	ReadRows(path string) ([]string, error)
}

// RowCounter is implemented by sources that can count rows without
// materializing them.
type RowCounter interface {
	CountRows(path string) (int, error)
}

// Compile-time interface check.
var _ RowCounter = (*CSVSource)(nil)

// AuditLog persists one event per served query.
type AuditLog interface {
	// Record stores a single query event.
	Record(ctx context.Context, ev QueryEvent) error

	// Recent returns the most recent events, newest first, up to limit.
	Recent(ctx context.Context, limit int) ([]QueryEvent, error)
}

// QueryEvent describes one served query.
type QueryEvent struct {
	ID        string
	Op        string
	Files     int
	Rows      int
	Remaining int
	Cursor    int
	Duration  time.Duration
	Error     string
	CreatedAt time.Time
}
