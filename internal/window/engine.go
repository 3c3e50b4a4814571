// Package window implements resumable, count-bounded paging and time-range
// filtering over ordered sets of day files.
//
// Every call is a pure function of its inputs: the caller threads the
// returned cursor and remaining files into the next call, and nothing is
// cached between calls.
package window

import (
	"context"
	"log/slog"

	"mdwindow/internal/store"
)

// Engine pages and filters day files read through a RowSource.
type Engine struct {
	source store.RowSource
	log    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(source store.RowSource, log *slog.Logger) *Engine {
	return &Engine{source: source, log: log}
}

// resolveColumn returns the index of name in the header of the first
// readable file. The read error is returned only when files holds a single
// file; otherwise unreadable files are logged and skipped. A column absent
// from the header yields -1 with no error.
func (e *Engine) resolveColumn(files []string, name string) (int, error) {
	var firstErr error
	for _, f := range files {
		h, err := e.source.ReadHeader(f)
		if err != nil {
			e.log.Warn("reading header", "path", f, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return h.Index(name), nil
	}
	if len(files) == 1 {
		return -1, firstErr
	}
	return -1, nil
}

// readRows reads a file's rows; an unreadable file contributes no rows.
func (e *Engine) readRows(path string) []string {
	rows, err := e.source.ReadRows(path)
	if err != nil {
		e.log.Warn("skipping unreadable file", "path", path, "error", err)
		return nil
	}
	return rows
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
