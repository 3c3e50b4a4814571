package window

import (
	"context"
	"fmt"
	"log/slog"

	"mdwindow/internal/domain"
	"mdwindow/internal/store"
)

// Page returns up to count rows starting cursor rows into the concatenated
// rows of pos.Files. count is clamped by the ceiling of kind.
//
// Files are read only until the window is satisfied. The returned
// RemainingFiles start at the last file scanned, which may still hold unread
// rows, and NextCursor is relative to that file. Once the files are
// exhausted the window has no remaining files and a zero cursor.
func (e *Engine) Page(ctx context.Context, pos domain.Position, count int, kind CapKind) (domain.Window, error) {
	count = Clamp(kind, count)
	return e.page(ctx, pos, count, e.readRows)
}

// PageTicks pages tick rows whose created_at timestamp lies within rng.
// Rows with an unparsable timestamp are kept; rows too short to hold the
// column are dropped. count is clamped to the tick ceiling, and cursors are
// offsets into the filtered rows.
func (e *Engine) PageTicks(ctx context.Context, pos domain.Position, count int, rng TimeRange) (domain.Window, error) {
	count = Clamp(CapTick, count)

	idx, err := e.resolveColumn(pos.Files, store.ColumnCreatedAt)
	if err != nil {
		return domain.Window{}, err
	}
	if idx < 0 && len(pos.Files) > 0 {
		e.log.Warn("tick files have no created_at column; no rows match", "file", pos.Files[0])
	}

	return e.page(ctx, pos, count, func(path string) []string {
		return e.filterTicks(path, e.readRows(path), idx, rng)
	})
}

func (e *Engine) filterTicks(path string, rows []string, idx int, rng TimeRange) []string {
	if idx < 0 {
		return nil
	}
	var kept []string
	for i, row := range rows {
		fields := store.SplitFields(row)
		if idx >= len(fields) {
			e.log.Warn("dropping tick row", "error", &store.ParseError{
				Path:   path,
				Row:    i + 1,
				Reason: fmt.Sprintf("short row: %d fields, created_at at %d", len(fields), idx),
			})
			continue
		}
		ts, err := ParseTimestamp(fields[idx])
		if err != nil {
			e.log.Warn("keeping tick row", "error", &store.ParseError{
				Path:   path,
				Row:    i + 1,
				Reason: fmt.Sprintf("unparsable created_at %q: %v", fields[idx], err),
			})
			kept = append(kept, row)
			continue
		}
		if rng.Contains(ts) {
			kept = append(kept, row)
		}
	}
	return kept
}

func (e *Engine) page(ctx context.Context, pos domain.Position, count int, rowsOf func(string) []string) (domain.Window, error) {
	files := pos.Files
	cursor := max(pos.Cursor, 0)
	if len(files) == 0 {
		return domain.Window{RemainingFiles: []string{}}, nil
	}

	var (
		buffer       []string
		totalRows    int
		lastFileRows int
		lastScanned  int
		stopped      bool
	)
	for i, f := range files {
		if err := checkContext(ctx); err != nil {
			return domain.Window{}, err
		}
		rows := rowsOf(f)
		buffer = append(buffer, rows...)
		totalRows += len(rows)
		lastFileRows = len(rows)
		lastScanned = i
		if totalRows-cursor > count {
			stopped = true
			break
		}
	}

	actualLimit := min(count, len(buffer))
	from := min(cursor, len(buffer))
	to := min(cursor+actualLimit, len(buffer))
	data := buffer[from:to]

	w := domain.Window{
		Data:           domain.JoinRows(data),
		Rows:           len(data),
		RemainingFiles: []string{},
	}
	if stopped {
		next := cursor + actualLimit + lastFileRows - totalRows
		if next < 0 {
			// Rebase onto the first file of the next call.
			next += lastFileRows
		}
		w.NextCursor = next
		w.RemainingFiles = files[lastScanned:]
	}

	e.log.Debug("paged window",
		slog.Int("files", lastScanned+1),
		slog.Int("cursor", cursor),
		slog.Int("count", count),
		slog.Int("rows", w.Rows),
		slog.Int("next_cursor", w.NextCursor),
		slog.Int("remaining", len(w.RemainingFiles)),
	)
	return w, nil
}
