// Package mdwindow is a Go SDK for the mdwindow-server HTTP API.
//
// Paging calls return a cursor and the files still to scan. Callers thread
// them back unchanged until no files remain; Drain and DrainFilter do that
// loop for you.
package mdwindow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Window is one page of rows.
type Window struct {
	Data           string   `json:"data"`
	Rows           int      `json:"rows"`
	NextCursor     int      `json:"nextCursor"`
	RemainingFiles []string `json:"remainingFiles"`
}

// FilterResult is one batch of time-filtered rows.
type FilterResult struct {
	Data           string   `json:"data"`
	Rows           int      `json:"rows"`
	RemainingFiles []string `json:"remainingFiles"`
}

// Position is where the next page starts.
type Position struct {
	Cursor int
	Files  []string
}

// Next returns the Position following w.
func (w Window) Next() Position {
	return Position{Cursor: w.NextCursor, Files: w.RemainingFiles}
}

// PathsQuery selects day files. Start and End are yyyyMMdd.
type PathsQuery struct {
	Product string `json:"product"`
	Dataset string `json:"dataset"`
	Symbol  string `json:"symbol,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

// Count is the size summary of a file set.
type Count struct {
	Rows      int    `json:"rows"`
	Bytes     int64  `json:"bytes"`
	Size      string `json:"size"`
	Estimated bool   `json:"estimated"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("mdwindow: %d: %s", e.Status, e.Message)
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("mdwindow: %d: %s", e.Status, strings.Join(parts, "; "))
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client provides a Go SDK for interacting with the mdwindow-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new mdwindow API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Paths lists the day files matching q in ascending day order.
func (c *Client) Paths(ctx context.Context, q PathsQuery) ([]string, error) {
	var resp struct {
		Paths []string `json:"paths"`
	}
	if err := c.post(ctx, "/api/paths", q, &resp); err != nil {
		return nil, err
	}
	return resp.Paths, nil
}

// Count summarizes files. Only day-bar counts are exact.
func (c *Client) Count(ctx context.Context, files []string, dataset, symbol string) (Count, error) {
	var resp Count
	err := c.post(ctx, "/api/count", map[string]any{
		"files":   files,
		"dataset": dataset,
		"symbol":  symbol,
	}, &resp)
	return resp, err
}

// MinutePage returns the next count minute-bar rows from pos. A count of 0
// asks for the server cap.
func (c *Client) MinutePage(ctx context.Context, pos Position, count int, half bool) (Window, error) {
	var w Window
	err := c.post(ctx, "/api/minute-page", map[string]any{
		"files":  pos.Files,
		"cursor": pos.Cursor,
		"count":  count,
		"half":   half,
	}, &w)
	return w, err
}

// Ticks returns the next count tick rows inside [start, end] from pos.
func (c *Client) Ticks(ctx context.Context, pos Position, count int, start, end string) (Window, error) {
	var w Window
	err := c.post(ctx, "/api/tick", map[string]any{
		"files":  pos.Files,
		"cursor": pos.Cursor,
		"count":  count,
		"start":  start,
		"end":    end,
	}, &w)
	return w, err
}

// Minutes returns minute bars overlapping [start, end].
func (c *Client) Minutes(ctx context.Context, files []string, start, end string, half bool) (FilterResult, error) {
	path := "/api/minute"
	if half {
		path = "/api/minute-half"
	}
	var r FilterResult
	err := c.post(ctx, path, map[string]any{"files": files, "start": start, "end": end}, &r)
	return r, err
}

// Days returns day bars overlapping [start, end], optionally for one symbol.
func (c *Client) Days(ctx context.Context, files []string, symbol, start, end string) (FilterResult, error) {
	var r FilterResult
	err := c.post(ctx, "/api/day", map[string]any{
		"files":  files,
		"symbol": symbol,
		"start":  start,
		"end":    end,
	}, &r)
	return r, err
}

// Symbols is one slice of a product's active symbols.
type Symbols struct {
	Symbols []string `json:"symbols"`
	Total   int      `json:"total"`
	Source  string   `json:"source"`
}

// SymbolCount returns the number of active symbols of product.
func (c *Client) SymbolCount(ctx context.Context, product string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	err := c.post(ctx, "/api/symbols/count", map[string]any{"product": product}, &resp)
	return resp.Count, err
}

// Symbols returns the active symbols of product in [start, end) of the
// sorted list. An end of 0 asks for the server's default batch.
func (c *Client) Symbols(ctx context.Context, product string, start, end int) (Symbols, error) {
	var resp Symbols
	err := c.post(ctx, "/api/symbols", map[string]any{
		"product": product,
		"start":   start,
		"end":     end,
	}, &resp)
	return resp, err
}

// Drain pages from the start of files until no files remain, passing each
// non-empty page to fn.
func Drain(ctx context.Context, files []string, page func(context.Context, Position) (Window, error), fn func(Window) error) error {
	pos := Position{Files: files}
	for len(pos.Files) > 0 {
		w, err := page(ctx, pos)
		if err != nil {
			return err
		}
		if w.Rows > 0 {
			if err := fn(w); err != nil {
				return err
			}
		}
		next := w.Next()
		if next.Cursor == pos.Cursor && sameFiles(next.Files, pos.Files) {
			return fmt.Errorf("mdwindow: paging stalled at cursor %d", pos.Cursor)
		}
		pos = next
	}
	return nil
}

// DrainFilter repeats a filter call over the remaining files until none are
// left, passing each non-empty batch to fn.
func DrainFilter(ctx context.Context, files []string, filter func(context.Context, []string) (FilterResult, error), fn func(FilterResult) error) error {
	for len(files) > 0 {
		r, err := filter(ctx, files)
		if err != nil {
			return err
		}
		if r.Rows > 0 {
			if err := fn(r); err != nil {
				return err
			}
		}
		if sameFiles(r.RemainingFiles, files) {
			return fmt.Errorf("mdwindow: filter made no progress over %d files", len(files))
		}
		files = r.RemainingFiles
	}
	return nil
}

func sameFiles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error  string       `json:"error"`
			Fields []FieldError `json:"fields"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Message, apiErr.Fields = body.Error, body.Fields
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
