package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// maxBodyBytes bounds request bodies; file lists can be long.
const maxBodyBytes = 8 << 20

// RegisterRoutes registers all API routes on the given mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/paths", handle(s.Paths))
	mux.HandleFunc("POST /api/count", handle(s.Count))
	mux.HandleFunc("POST /api/minute", handle(s.MinuteData))
	mux.HandleFunc("POST /api/minute-half", handle(s.MinuteHalfData))
	mux.HandleFunc("POST /api/minute-page", handle(s.MinutePage))
	mux.HandleFunc("POST /api/day", handle(s.DayData))
	mux.HandleFunc("POST /api/tick", handle(s.TickData))
	mux.HandleFunc("POST /api/live/bars", handle(s.LiveBars))
	mux.HandleFunc("POST /api/live/trades", handle(s.LiveTrades))
	mux.HandleFunc("POST /api/live/history", handle(s.LiveHistory))
	mux.HandleFunc("POST /api/symbols/count", handle(s.SymbolCount))
	mux.HandleFunc("POST /api/symbols", handle(s.Symbols))
	mux.HandleFunc("GET /api/audit", s.handleAudit)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
}

// Handler returns an http.Handler with CORS middleware. Metrics are served
// on /metrics when a recorder is configured.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return corsMiddleware(mux)
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req AuditRequest
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	resp, err := s.Audit(r.Context(), req)
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, resp)
}

// handle adapts a Service operation to a JSON-in, JSON-out handler.
func handle[Req, Resp any](op func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "decoding request: "+err.Error())
			return
		}

		resp, err := op(r.Context(), req)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, resp)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeFailure writes err with its status; validation failures list fields.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": verr.Error(), "fields": verr.Fields})
		return
	}
	writeError(w, httpStatus(err), err.Error())
}
