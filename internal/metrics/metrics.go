// Package metrics records request metrics with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the service metrics on its own registry.
type Recorder struct {
	reg *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	rows     *prometheus.CounterVec
	files    *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	audit    prometheus.Counter
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdwindow_requests_total",
				Help: "Total number of operations served, by outcome",
			},
			[]string{"op", "code"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdwindow_request_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		rows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdwindow_rows_returned_total",
				Help: "Total number of data rows returned",
			},
			[]string{"op"},
		),
		files: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdwindow_request_files",
				Help:    "Number of files passed in per operation",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
			},
			[]string{"op"},
		),
		inFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mdwindow_in_flight_requests",
				Help: "Current number of in-flight operations",
			},
			[]string{"op"},
		),
		audit: f.NewCounter(prometheus.CounterOpts{
			Name: "mdwindow_audit_errors_total",
			Help: "Total number of audit records that could not be written",
		}),
	}
}

// Begin marks op in flight and returns a func that records its outcome.
func (r *Recorder) Begin(op string, files int) func(code string, rows int) {
	if r == nil {
		return func(string, int) {}
	}
	start := time.Now()
	r.inFlight.WithLabelValues(op).Inc()
	r.files.WithLabelValues(op).Observe(float64(files))

	return func(code string, rows int) {
		r.inFlight.WithLabelValues(op).Dec()
		r.requests.WithLabelValues(op, code).Inc()
		r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		r.rows.WithLabelValues(op).Add(float64(rows))
	}
}

// AuditError counts a failed audit write.
func (r *Recorder) AuditError() {
	if r != nil {
		r.audit.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
