// Package api exposes the file windowing operations over HTTP and gRPC.
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mdwindow/internal/domain"
	"mdwindow/internal/live"
	"mdwindow/internal/metrics"
	"mdwindow/internal/store"
	"mdwindow/internal/window"
)

// Operation names, used as metric labels, audit ops and RPC method names.
const (
	OpPaths          = "paths"
	OpCount          = "count"
	OpMinuteData     = "minute_data"
	OpMinuteHalfData = "minute_half_data"
	OpMinutePage     = "minute_page"
	OpDayData        = "day_data"
	OpTickData       = "tick_data"
	OpLiveBars       = "live_bars"
	OpLiveTrades     = "live_trades"
	OpLiveHistory    = "live_history"
	OpSymbolCount    = "symbol_count"
	OpSymbols        = "symbols"
)

// Where a symbol list came from.
const (
	SymbolSourceLive  = "live"
	SymbolSourceLocal = "local"
)

// defaultSymbolBatch is the slice size when a symbols request gives no end.
const defaultSymbolBatch = 1000

// Deps wires a Service. Live, Audit and Metrics are optional.
type Deps struct {
	Root      string
	Source    store.RowSource
	Estimator *store.Estimator
	Live      *live.Client
	Audit     store.AuditLog
	Metrics   *metrics.Recorder
	Log       *slog.Logger
}

// Service implements every operation. It holds no per-caller state: all
// resumption state travels in requests and responses.
type Service struct {
	root      string
	engine    *window.Engine
	estimator *store.Estimator
	live      *live.Client
	audit     store.AuditLog
	metrics   *metrics.Recorder
	log       *slog.Logger
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	if d.Source == nil {
		d.Source = store.NewCSVSource()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Estimator == nil {
		d.Estimator = store.NewEstimator(0, 0, d.Source, d.Log)
	}
	return &Service{
		root:      d.Root,
		engine:    window.NewEngine(d.Source, d.Log),
		estimator: d.Estimator,
		live:      d.Live,
		audit:     d.Audit,
		metrics:   d.Metrics,
		log:       d.Log,
	}
}

type outcome struct {
	rows      int
	remaining int
	cursor    int
}

// run executes one operation with metrics and audit recording.
func (s *Service) run(ctx context.Context, op string, files int, fn func() (outcome, error)) error {
	done := s.metrics.Begin(op, files)
	start := time.Now()

	out, err := fn()

	code := codeOf(err)
	done(code, out.rows)
	if err != nil && code == "internal" {
		s.log.Error("operation failed", "op", op, "error", err)
	}

	if s.audit != nil {
		ev := store.QueryEvent{
			Op:        op,
			Files:     files,
			Rows:      out.rows,
			Remaining: out.remaining,
			Cursor:    out.cursor,
			Duration:  time.Since(start),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		if aerr := s.audit.Record(context.WithoutCancel(ctx), ev); aerr != nil {
			s.metrics.AuditError()
			s.log.Warn("recording audit event", "op", op, "error", aerr)
		}
	}
	return err
}

func windowOutcome(w domain.Window) outcome {
	return outcome{rows: w.Rows, remaining: len(w.RemainingFiles), cursor: w.NextCursor}
}

func filterOutcome(r domain.FilterResult) outcome {
	return outcome{rows: r.Rows, remaining: len(r.RemainingFiles)}
}

// timestampRange parses a range and fails open on bad input.
func (s *Service) timestampRange(op, start, end string) window.TimeRange {
	rng, err := window.ParseTimestampRange(start, end)
	if err != nil {
		s.log.Warn("ignoring unparsable time range", "op", op, "error", err)
	}
	return rng
}

func (s *Service) dateRange(op, start, end string) window.TimeRange {
	rng, err := window.ParseDateRange(start, end)
	if err != nil {
		s.log.Warn("ignoring unparsable date range", "op", op, "error", err)
	}
	return rng
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Paths lists the day files matching req in ascending day order.
func (s *Service) Paths(ctx context.Context, req PathsRequest) (PathsResponse, error) {
	var resp PathsResponse
	err := s.run(ctx, OpPaths, 0, func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		if req.Start != "" && req.End != "" && req.Start > req.End {
			return outcome{}, invalid("start %s is after end %s", req.Start, req.End)
		}
		paths, err := store.Discover(s.root, store.DiscoverQuery{
			Product: domain.ProductType(req.Product),
			Dataset: parseDataset(req.Dataset),
			Start:   req.Start,
			End:     req.End,
			Symbol:  req.Symbol,
		})
		if err != nil {
			return outcome{}, err
		}
		if paths == nil {
			paths = []string{}
		}
		resp.Paths = paths
		return outcome{remaining: len(paths)}, nil
	})
	return resp, err
}

// Count returns the row count of req.Files: exact for day bars, estimated
// from file sizes otherwise.
func (s *Service) Count(ctx context.Context, req CountRequest) (CountResponse, error) {
	var resp CountResponse
	err := s.run(ctx, OpCount, len(req.Files), func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		ds := parseDataset(req.Dataset)
		resp.Bytes = s.estimator.TotalSize(req.Files)
		resp.Size = store.FormatSize(resp.Bytes)
		resp.Rows = s.estimator.EstimateRows(req.Files, ds, req.Symbol)
		resp.Estimated = ds != domain.DatasetDay
		return outcome{rows: resp.Rows}, nil
	})
	return resp, err
}

// MinuteData returns minute bars overlapping the range, up to the minute cap
// of raw rows per call.
func (s *Service) MinuteData(ctx context.Context, req MinuteDataRequest) (domain.FilterResult, error) {
	return s.minuteData(ctx, OpMinuteData, window.CapMinute, req)
}

// MinuteHalfData is MinuteData with the half-size cap.
func (s *Service) MinuteHalfData(ctx context.Context, req MinuteDataRequest) (domain.FilterResult, error) {
	return s.minuteData(ctx, OpMinuteHalfData, window.CapMinuteHalf, req)
}

func (s *Service) minuteData(ctx context.Context, op string, kind window.CapKind, req MinuteDataRequest) (domain.FilterResult, error) {
	var res domain.FilterResult
	err := s.run(ctx, op, len(req.Files), func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		var err error
		res, err = s.engine.FilterByTime(ctx, req.Files, window.FilterQuery{
			Range:       s.timestampRange(op, req.Start, req.End),
			Granularity: window.GranularityMinute,
			Cap:         kind,
		})
		return filterOutcome(res), err
	})
	return res, err
}

// MinutePage returns the next window of minute-bar rows.
func (s *Service) MinutePage(ctx context.Context, req MinutePageRequest) (domain.Window, error) {
	var w domain.Window
	err := s.run(ctx, OpMinutePage, len(req.Files), func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		kind := window.CapMinute
		if req.Half {
			kind = window.CapMinuteHalf
		}
		var err error
		w, err = s.engine.Page(ctx, domain.Position{Cursor: req.Cursor, Files: req.Files}, req.Count, kind)
		return windowOutcome(w), err
	})
	return w, err
}

// DayData returns day bars overlapping the date range, optionally for one
// symbol.
func (s *Service) DayData(ctx context.Context, req DayDataRequest) (domain.FilterResult, error) {
	var res domain.FilterResult
	err := s.run(ctx, OpDayData, len(req.Files), func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		var err error
		res, err = s.engine.FilterDays(ctx, req.Files, s.dateRange(OpDayData, req.Start, req.End), req.Symbol)
		return filterOutcome(res), err
	})
	return res, err
}

// TickData returns the next window of tick rows inside the range.
func (s *Service) TickData(ctx context.Context, req TickDataRequest) (domain.Window, error) {
	var w domain.Window
	err := s.run(ctx, OpTickData, len(req.Files), func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		var err error
		w, err = s.engine.PageTicks(ctx, domain.Position{Cursor: req.Cursor, Files: req.Files}, req.Count,
			s.timestampRange(OpTickData, req.Start, req.End))
		return windowOutcome(w), err
	})
	return w, err
}

// LiveBars returns the latest minute bar of each symbol as CSV.
func (s *Service) LiveBars(ctx context.Context, req LiveRequest) (LiveResponse, error) {
	var resp LiveResponse
	err := s.run(ctx, OpLiveBars, 0, func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		data, err := s.live.LatestBars(ctx, req.Symbols)
		resp.Data = data
		return outcome{rows: csvRows(data)}, err
	})
	return resp, err
}

// LiveTrades returns the latest trade of each symbol as CSV.
func (s *Service) LiveTrades(ctx context.Context, req LiveRequest) (LiveResponse, error) {
	var resp LiveResponse
	err := s.run(ctx, OpLiveTrades, 0, func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		data, err := s.live.LatestTrades(ctx, req.Symbols)
		resp.Data = data
		return outcome{rows: csvRows(data)}, err
	})
	return resp, err
}

// LiveHistory returns recent bars of one symbol as CSV.
func (s *Service) LiveHistory(ctx context.Context, req LiveHistoryRequest) (LiveResponse, error) {
	var resp LiveResponse
	err := s.run(ctx, OpLiveHistory, 0, func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		start, err := parseInstant(req.Start)
		if err != nil {
			return outcome{}, invalid("start: %v", err)
		}
		var end time.Time
		if req.End != "" {
			if end, err = parseInstant(req.End); err != nil {
				return outcome{}, invalid("end: %v", err)
			}
		}
		data, err := s.live.Bars(ctx, live.BarsQuery{
			Symbol:  req.Symbol,
			Dataset: parseDataset(req.Dataset),
			Start:   start,
			End:     end,
			Limit:   req.Limit,
		})
		resp.Data = data
		return outcome{rows: csvRows(data)}, err
	})
	return resp, err
}

// SymbolCount returns how many symbols of req.Product are active today.
func (s *Service) SymbolCount(ctx context.Context, req SymbolsRequest) (SymbolCountResponse, error) {
	var resp SymbolCountResponse
	err := s.run(ctx, OpSymbolCount, 0, func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		symbols, source, err := s.activeSymbols(ctx, domain.ProductType(req.Product))
		if err != nil {
			return outcome{}, err
		}
		resp = SymbolCountResponse{Count: len(symbols), Source: source}
		return outcome{rows: len(symbols)}, nil
	})
	return resp, err
}

// Symbols returns the sorted active symbols of req.Product in [Start, End).
func (s *Service) Symbols(ctx context.Context, req SymbolsRequest) (SymbolsResponse, error) {
	resp := SymbolsResponse{Symbols: []string{}}
	err := s.run(ctx, OpSymbols, 0, func() (outcome, error) {
		if err := prepare(ctx, &req); err != nil {
			return outcome{}, err
		}
		if req.End == 0 {
			req.End = req.Start + defaultSymbolBatch
		}
		if req.End < req.Start {
			return outcome{}, invalid("end %d is before start %d", req.End, req.Start)
		}
		symbols, source, err := s.activeSymbols(ctx, domain.ProductType(req.Product))
		if err != nil {
			return outcome{}, err
		}
		start, end := min(req.Start, len(symbols)), min(req.End, len(symbols))
		resp.Symbols = append(resp.Symbols, symbols[start:end]...)
		resp.Total = len(symbols)
		resp.Source = source
		return outcome{rows: len(resp.Symbols), remaining: len(symbols) - end}, nil
	})
	return resp, err
}

// activeSymbols asks the live asset list first and falls back to the stems
// of the latest stored day when live data does not cover the product.
func (s *Service) activeSymbols(ctx context.Context, product domain.ProductType) ([]string, string, error) {
	symbols, err := s.live.Symbols(ctx, product)
	switch {
	case err == nil:
		return symbols, SymbolSourceLive, nil
	case errors.Is(err, live.ErrNotConfigured), errors.Is(err, live.ErrUnsupportedProduct):
		s.log.Debug("listing symbols from stored files", "product", product, "reason", err)
		local, err := store.LatestSymbols(s.root, product)
		return local, SymbolSourceLocal, err
	}
	return nil, "", err
}

// Audit returns the most recent audit events.
func (s *Service) Audit(ctx context.Context, req AuditRequest) (AuditResponse, error) {
	resp := AuditResponse{Events: []AuditEvent{}}
	if err := prepare(ctx, &req); err != nil {
		return resp, err
	}
	if s.audit == nil {
		return resp, nil
	}
	events, err := s.audit.Recent(ctx, req.Limit)
	if err != nil {
		return resp, err
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, AuditEvent{
			ID:         ev.ID,
			Op:         ev.Op,
			Files:      ev.Files,
			Rows:       ev.Rows,
			Remaining:  ev.Remaining,
			Cursor:     ev.Cursor,
			DurationMs: ev.Duration.Milliseconds(),
			Error:      ev.Error,
			CreatedAt:  ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return resp, nil
}

func parseInstant(s string) (time.Time, error) {
	if t, err := window.ParseTimestamp(s); err == nil {
		return t, nil
	}
	return window.ParseDate(s)
}

// csvRows counts the data rows of CSV text with a header line.
func csvRows(data string) int {
	n := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			n++
		}
	}
	if n > 0 {
		n--
	}
	return n
}
