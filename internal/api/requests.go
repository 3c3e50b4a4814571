package api

import (
	"context"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"mdwindow/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// prepare applies defaults to req and validates it.
func prepare(ctx context.Context, req any) error {
	if err := defaults.Set(req); err != nil {
		return invalid("%v", err)
	}
	if err := validate.StructCtx(ctx, req); err != nil {
		return validationError(err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// PathsRequest selects day files by product, dataset, day range and symbol.
type PathsRequest struct {
	Product string `json:"product" validate:"required,oneof=11 12 14 16 21 22 31"`
	Dataset string `json:"dataset" validate:"required,oneof=1d 1m 15m tick"`
	Symbol  string `json:"symbol"`
	Start   string `json:"start" validate:"omitempty,len=8,numeric"` // yyyyMMdd
	End     string `json:"end" validate:"omitempty,len=8,numeric"`   // yyyyMMdd
}

// CountRequest estimates the rows held by files.
type CountRequest struct {
	Files   []string `json:"files" validate:"required,min=1,dive,required"`
	Dataset string   `json:"dataset" validate:"required,oneof=1d 1m 15m tick"`
	Symbol  string   `json:"symbol"` // day bars only
}

// MinuteDataRequest filters minute-bar files by timestamp range
// (yyyy-MM-dd HH:mm:ss; empty bounds are open).
type MinuteDataRequest struct {
	Files []string `json:"files" validate:"required,min=1,dive,required"`
	Start string   `json:"start"`
	End   string   `json:"end"`
}

// MinutePageRequest pages minute-bar rows by count.
type MinutePageRequest struct {
	Files  []string `json:"files" validate:"required,min=1,dive,required"`
	Cursor int      `json:"cursor" validate:"gte=0"`
	Count  int      `json:"count" default:"1000" validate:"gte=0"`
	Half   bool     `json:"half"`
}

// DayDataRequest filters day-bar files by date range (yyyy-MM-dd) and symbol.
type DayDataRequest struct {
	Files  []string `json:"files" validate:"required,min=1,dive,required"`
	Symbol string   `json:"symbol"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
}

// TickDataRequest pages tick rows inside a timestamp range.
type TickDataRequest struct {
	Files  []string `json:"files" validate:"required,min=1,dive,required"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
	Cursor int      `json:"cursor" validate:"gte=0"`
	Count  int      `json:"count" default:"180" validate:"gte=0"`
}

// LiveRequest asks for the latest bar or trade of each symbol.
type LiveRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=200,dive,required"`
}

// LiveHistoryRequest asks for recent historical bars of one symbol.
type LiveHistoryRequest struct {
	Symbol  string `json:"symbol" validate:"required"`
	Dataset string `json:"dataset" default:"1m" validate:"oneof=1d 1m 15m"`
	Start   string `json:"start" validate:"required"`
	End     string `json:"end"`
	Limit   int    `json:"limit" default:"1000" validate:"gte=0,max=10000"`
}

// SymbolsRequest selects the active symbols of a product type. Start and
// End slice the sorted list as [Start, End); End 0 means Start plus the
// default batch.
type SymbolsRequest struct {
	Product string `json:"product" validate:"required,oneof=11 12 14 16 21 22 31"`
	Start   int    `json:"start" validate:"gte=0"`
	End     int    `json:"end" validate:"gte=0"`
}

// AuditRequest lists recent audit events.
type AuditRequest struct {
	Limit int `json:"limit" default:"50" validate:"gte=1,max=1000"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SymbolCountResponse is the number of active symbols of a product type.
// Source is "live" for the vendor asset list, "local" for stored day files.
type SymbolCountResponse struct {
	Count  int    `json:"count"`
	Source string `json:"source"`
}

// SymbolsResponse is one slice of the active symbols.
type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
	Total   int      `json:"total"`
	Source  string   `json:"source"`
}

// PathsResponse lists matching day files in ascending day order.
type PathsResponse struct {
	Paths []string `json:"paths"`
}

// CountResponse reports an exact (day bars) or estimated row count.
type CountResponse struct {
	Rows      int    `json:"rows"`
	Bytes     int64  `json:"bytes"`
	Size      string `json:"size"`
	Estimated bool   `json:"estimated"`
}

// LiveResponse carries CSV text from the live data source.
type LiveResponse struct {
	Data string `json:"data"`
}

// AuditResponse lists recent audit events, newest first.
type AuditResponse struct {
	Events []AuditEvent `json:"events"`
}

// AuditEvent is the wire form of store.QueryEvent.
type AuditEvent struct {
	ID         string `json:"id"`
	Op         string `json:"op"`
	Files      int    `json:"files"`
	Rows       int    `json:"rows"`
	Remaining  int    `json:"remaining"`
	Cursor     int    `json:"cursor"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// parseDataset is only reached after validation.
func parseDataset(s string) domain.Dataset {
	ds, _ := domain.ParseDataset(s)
	return ds
}
