package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPServerMetrics holds the API process collectors: transport-level
// request metrics plus the RAG query outcomes recorded by ObserveQuery.
type HTTPServerMetrics struct {
	registry registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	rejected *prometheus.CounterVec

	rag ragCollectors
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	r := newRegistry(service)
	return &HTTPServerMetrics{
		registry: r,
		requests: r.counter("http", "requests_total", "Total HTTP requests processed.", "method", "path", "status"),
		latency:  r.histogram("http", "request_duration_seconds", "HTTP request duration in seconds.", prometheus.DefBuckets, "method", "path"),
		inFlight: r.gauge("http", "in_flight_requests", "Number of in-flight HTTP requests."),
		rejected: r.counter("http", "rejected_total", "Requests rejected by traffic control, by reason.", "reason"),
		rag:      newRAGCollectors(r),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return m.registry.handler()
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.inFlight.Inc()
		defer m.inFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routeLabel(r)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.latency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordRejected counts requests turned away by rate limiting or
// backpressure.
func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// routeLabel keeps path cardinality bounded. The mux pattern is used when
// the request was routed; session paths are folded by hand otherwise.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	path := r.URL.Path
	rest, ok := strings.CutPrefix(path, "/v1/sessions/")
	if !ok {
		return path
	}
	if _, action, found := strings.Cut(rest, "/"); found {
		return "/v1/sessions/{session_id}/" + action
	}
	return "/v1/sessions/{session_id}"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
