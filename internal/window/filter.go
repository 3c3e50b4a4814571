package window

import (
	"context"
	"fmt"
	"time"

	"mdwindow/internal/domain"
	"mdwindow/internal/store"
)

// Granularity selects how bob/eob fields are parsed.
type Granularity int

const (
	// GranularityDay compares calendar dates; any time part is ignored.
	GranularityDay Granularity = iota
	// GranularityMinute compares full timestamps.
	GranularityMinute
)

// FilterQuery parameterizes FilterByTime.
type FilterQuery struct {
	Range       TimeRange
	Symbol      string // exact match on the symbol column; empty matches all
	Granularity Granularity
	Cap         CapKind
}

// FilterByTime scans whole files in order and keeps the rows whose [bob, eob]
// interval overlaps q.Range and, when q.Symbol is set, whose symbol matches.
//
// The first file is always scanned. Before each later file, the raw row count
// including that file is checked against the cap of q.Cap; if it would exceed
// the cap, scanning stops and that file heads RemainingFiles. Every file
// before it was fully consumed.
func (e *Engine) FilterByTime(ctx context.Context, files []string, q FilterQuery) (domain.FilterResult, error) {
	if len(files) == 0 {
		return domain.FilterResult{RemainingFiles: []string{}}, nil
	}

	bobIdx, err := e.resolveColumn(files, store.ColumnBob)
	if err != nil {
		return domain.FilterResult{}, err
	}
	if bobIdx < 0 {
		e.log.Warn("no bob column; time filtering disabled", "file", files[0])
	}

	symIdx := -1
	if q.Symbol != "" {
		symIdx, err = e.resolveColumn(files, store.ColumnSymbol)
		if err != nil {
			return domain.FilterResult{}, err
		}
		if symIdx < 0 {
			e.log.Warn("no symbol column; symbol filtering disabled", "file", files[0], "symbol", q.Symbol)
		}
	}

	parse := ParseTimestamp
	if q.Granularity == GranularityDay {
		parse = ParseDate
	}

	limit := CapFor(q.Cap)
	var (
		out       []string
		totalRows int
		scanned   int
	)
	for i, f := range files {
		if err := checkContext(ctx); err != nil {
			return domain.FilterResult{}, err
		}
		rows := e.readRows(f)
		if i > 0 && totalRows+len(rows) > limit {
			break
		}
		totalRows += len(rows)
		scanned = i + 1

		for n, row := range rows {
			if e.keepRow(f, n+1, row, bobIdx, symIdx, q, parse) {
				out = append(out, row)
			}
		}
	}

	res := domain.FilterResult{
		Data:           domain.JoinRows(out),
		Rows:           len(out),
		RemainingFiles: files[scanned:],
	}
	e.log.Debug("filtered files",
		"scanned", scanned,
		"raw_rows", totalRows,
		"rows", res.Rows,
		"remaining", len(res.RemainingFiles),
		"range", q.Range.String(),
		"symbol", q.Symbol,
	)
	return res, nil
}

func (e *Engine) keepRow(path string, n int, row string, bobIdx, symIdx int, q FilterQuery, parse func(string) (time.Time, error)) bool {
	fields := store.SplitFields(row)

	if symIdx >= 0 {
		if symIdx >= len(fields) {
			e.dropRow(path, n, fmt.Sprintf("short row: %d fields, symbol at %d", len(fields), symIdx))
			return false
		}
		if fields[symIdx] != q.Symbol {
			return false
		}
	}

	if bobIdx < 0 {
		return true
	}
	if bobIdx+1 >= len(fields) {
		e.dropRow(path, n, fmt.Sprintf("short row: %d fields, bob/eob at %d", len(fields), bobIdx))
		return false
	}
	bob, err := parse(fields[bobIdx])
	if err != nil {
		e.dropRow(path, n, fmt.Sprintf("bad bob %q: %v", fields[bobIdx], err))
		return false
	}
	eob, err := parse(fields[bobIdx+1])
	if err != nil {
		e.dropRow(path, n, fmt.Sprintf("bad eob %q: %v", fields[bobIdx+1], err))
		return false
	}
	return q.Range.Overlaps(bob, eob)
}

func (e *Engine) dropRow(path string, n int, reason string) {
	e.log.Error("dropping row", "error", &store.ParseError{Path: path, Row: n, Reason: reason})
}

// FilterDays filters day-bar files by calendar date and symbol.
func (e *Engine) FilterDays(ctx context.Context, files []string, rng TimeRange, symbol string) (domain.FilterResult, error) {
	return e.FilterByTime(ctx, files, FilterQuery{
		Range:       rng,
		Symbol:      symbol,
		Granularity: GranularityDay,
		Cap:         CapDay,
	})
}

// FilterMinutes filters minute-bar files by timestamp.
func (e *Engine) FilterMinutes(ctx context.Context, files []string, rng TimeRange) (domain.FilterResult, error) {
	return e.FilterByTime(ctx, files, FilterQuery{Range: rng, Granularity: GranularityMinute, Cap: CapMinute})
}

// FilterMinutesHalf is FilterMinutes with the half-size cap.
func (e *Engine) FilterMinutesHalf(ctx context.Context, files []string, rng TimeRange) (domain.FilterResult, error) {
	return e.FilterByTime(ctx, files, FilterQuery{Range: rng, Granularity: GranularityMinute, Cap: CapMinuteHalf})
}
