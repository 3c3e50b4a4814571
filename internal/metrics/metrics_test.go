package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBeginRecordsOutcome(t *testing.T) {
	r := New()

	done := r.Begin("minute_page", 3)
	if got := testutil.ToFloat64(r.inFlight.WithLabelValues("minute_page")); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	done("ok", 120)

	if got := testutil.ToFloat64(r.inFlight.WithLabelValues("minute_page")); got != 0 {
		t.Errorf("in flight after done = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("minute_page", "ok")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.rows.WithLabelValues("minute_page")); got != 120 {
		t.Errorf("rows = %v, want 120", got)
	}

	r.AuditError()
	if got := testutil.ToFloat64(r.audit); got != 1 {
		t.Errorf("audit errors = %v, want 1", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Begin("day_data", 1)("ok", 1)
	r.AuditError()
}

func TestHandler(t *testing.T) {
	r := New()
	r.Begin("tick_data", 1)("invalid_argument", 0)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `mdwindow_requests_total{code="invalid_argument",op="tick_data"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}
