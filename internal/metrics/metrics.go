// Package metrics exposes prometheus collectors for scan processing and
// API traffic on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/gradewizard/internal/model"
)

// Recorder holds the collectors. The zero value is not usable; a nil
// *Recorder ignores every observation.
type Recorder struct {
	registry        *prometheus.Registry
	handler         http.Handler
	attempts        *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradewizard_scan_attempts_total",
		Help: "Extraction attempts, including retries",
	}, []string{"upload_type"})

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradewizard_scan_outcomes_total",
		Help: "Finished scan runs by outcome (success or error class)",
	}, []string{"upload_type", "outcome"})

	processDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gradewizard_scan_duration_seconds",
		Help:    "Wall time of a scan run including retries",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"upload_type"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	registry.MustRegister(attempts, outcomes, processDuration, requestDuration, requestTotal)

	return &Recorder{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		attempts:        attempts,
		outcomes:        outcomes,
		processDuration: processDuration,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Recorder) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveAttempt counts one extraction attempt.
func (m *Recorder) ObserveAttempt(kind model.UploadType) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(kind)).Inc()
}

// ObserveOutcome records how a scan run ended and how long it took.
func (m *Recorder) ObserveOutcome(kind model.UploadType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(kind), outcome).Inc()
	m.processDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records one API request.
func (m *Recorder) ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestTotal.WithLabelValues(method, path, code).Inc()
	m.requestDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

// Middleware records every request under its chi route pattern, so path
// parameters do not explode label cardinality.
func (m *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveHTTPRequest(r.Method, path, status, time.Since(start))
	})
}
