// Package live fetches current market snapshots from the Alpaca market data
// API and renders them in the day-file CSV layout, so live rows can be read
// with the same tooling as stored ones.
package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"mdwindow/internal/config"
	"mdwindow/internal/domain"
	"mdwindow/internal/store"
	"mdwindow/internal/util"
)

// ErrNotConfigured is returned when no live data source is available.
var ErrNotConfigured = errors.New("live market data is not configured")

// Source is the subset of the Alpaca market data client used here.
type Source interface {
	GetLatestBars(symbols []string, req marketdata.GetLatestBarRequest) (map[string]marketdata.Bar, error)
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Compile-time interface check.
var _ Source = (*marketdata.Client)(nil)

const (
	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
	limiterBurst  = 10
)

// Client serves live snapshots. All upstream calls share one rate limiter
// and are retried with backoff.
type Client struct {
	src     Source
	assets  AssetSource
	feed    string
	limiter *util.RateLimiter
	delay   time.Duration
	log     *slog.Logger
}

// NewClient creates a Client backed by the Alpaca market data API.
func NewClient(cfg config.Alpaca, log *slog.Logger) *Client {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	c := NewClientWithSource(marketdata.NewClient(opts), cfg.Feed, cfg.RateLimitPerMin, log)
	c.assets = alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return c
}

// NewClientWithSource creates a Client over an arbitrary Source.
func NewClientWithSource(src Source, feed string, rateLimitPerMin int, log *slog.Logger) *Client {
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}
	return &Client{
		src:     src,
		feed:    feed,
		limiter: util.NewBurstLimiter(rateLimitPerMin, limiterBurst),
		delay:   retryDelay,
		log:     log.With("component", "live"),
	}
}

// ready reports ErrNotConfigured when there is no market data source.
func (c *Client) ready() error {
	if c == nil || c.src == nil {
		return ErrNotConfigured
	}
	return nil
}

// call waits for a rate-limit token and runs fn with retries.
func (c *Client) call(ctx context.Context, what string, fn func() error) error {
	if c == nil {
		return ErrNotConfigured
	}
	start := time.Now()
	err := util.Retry(ctx, retryAttempts, c.delay, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return fn()
	})
	if err != nil {
		c.log.Warn("live request failed", "request", what, "error", err)
		return fmt.Errorf("%s: %w", what, err)
	}
	c.log.Debug("live request", "request", what, "elapsed", time.Since(start))
	return nil
}

// LatestBars returns the latest minute bar of each symbol as CSV, sorted by
// symbol.
func (c *Client) LatestBars(ctx context.Context, symbols []string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	symbols = normalizeSymbols(symbols)
	var bars map[string]marketdata.Bar
	err := c.call(ctx, "latest bars", func() (err error) {
		bars, err = c.src.GetLatestBars(symbols, marketdata.GetLatestBarRequest{Feed: marketdata.Feed(c.feed)})
		return err
	})
	if err != nil {
		return "", err
	}

	recs := make([]store.BarRecord, 0, len(bars))
	for _, sym := range sortedSymbols(bars) {
		recs = append(recs, barRecord(sym, bars[sym]))
	}
	return encode(func(b *bytes.Buffer) error { return store.EncodeBars(b, domain.DatasetMinute, recs) })
}

// LatestTrades returns the latest trade of each symbol as CSV, sorted by
// symbol.
func (c *Client) LatestTrades(ctx context.Context, symbols []string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	symbols = normalizeSymbols(symbols)
	var trades map[string]marketdata.Trade
	err := c.call(ctx, "latest trades", func() (err error) {
		trades, err = c.src.GetLatestTrades(symbols, marketdata.GetLatestTradeRequest{Feed: marketdata.Feed(c.feed)})
		return err
	})
	if err != nil {
		return "", err
	}

	recs := make([]store.TradeRecord, 0, len(trades))
	for _, sym := range sortedSymbols(trades) {
		recs = append(recs, tradeRecord(sym, trades[sym]))
	}
	return encode(func(b *bytes.Buffer) error { return store.EncodeTrades(b, recs) })
}

// BarsQuery selects historical bars for one symbol.
type BarsQuery struct {
	Symbol  string
	Dataset domain.Dataset
	Start   time.Time
	End     time.Time
	Limit   int // 0 means no limit
}

// Bars returns historical bars for q as CSV, oldest first.
func (c *Client) Bars(ctx context.Context, q BarsQuery) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	tf, err := timeFrame(q.Dataset)
	if err != nil {
		return "", err
	}
	symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))

	var bars []marketdata.Bar
	err = c.call(ctx, "bars "+symbol, func() (err error) {
		bars, err = c.src.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Start:      q.Start,
			End:        q.End,
			TotalLimit: q.Limit,
			Feed:       marketdata.Feed(c.feed),
		})
		return err
	})
	if err != nil {
		return "", err
	}

	recs := make([]store.BarRecord, len(bars))
	for i, b := range bars {
		recs[i] = barRecord(symbol, b)
	}
	return encode(func(b *bytes.Buffer) error { return store.EncodeBars(b, q.Dataset, recs) })
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func timeFrame(ds domain.Dataset) (marketdata.TimeFrame, error) {
	switch ds {
	case domain.DatasetDay:
		return marketdata.OneDay, nil
	case domain.DatasetMinute:
		return marketdata.OneMin, nil
	case domain.DatasetMinute15:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("dataset %q has no bar time frame", ds)
}

func barRecord(symbol string, b marketdata.Bar) store.BarRecord {
	return store.BarRecord{
		Symbol:     strings.ToUpper(symbol),
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     int64(b.Volume),
		TradeCount: int64(b.TradeCount),
		VWAP:       b.VWAP,
	}
}

func tradeRecord(symbol string, t marketdata.Trade) store.TradeRecord {
	return store.TradeRecord{
		Symbol:    strings.ToUpper(symbol),
		Timestamp: t.Timestamp.UnixMilli(),
		Price:     t.Price,
		Size:      int64(t.Size),
		Exchange:  t.Exchange,
		ID:        strconv.FormatInt(t.ID, 10),
	}
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sortedSymbols[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func encode(fn func(*bytes.Buffer) error) (string, error) {
	var b bytes.Buffer
	if err := fn(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}
