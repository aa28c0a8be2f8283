package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// WorkerMetrics tracks index rebuilds performed by the worker process.
type WorkerMetrics struct {
	registry registry

	rebuilds        *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec
	running         prometheus.Gauge
	queueLag        prometheus.Observer
	passages        prometheus.Gauge
	reports         prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	r := newRegistry(service)
	return &WorkerMetrics{
		registry: r,
		rebuilds: r.counter("worker", "reindex_total", "Total index rebuilds by status.", "status"),
		rebuildDuration: r.histogram("worker", "reindex_duration_seconds", "Index rebuild duration in seconds by status.",
			[]float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}, "status"),
		running: r.gauge("worker", "reindex_in_flight", "Number of running index rebuilds."),
		queueLag: r.histogram("worker", "queue_lag_seconds", "Delay between a reindex request and the start of the rebuild.",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}).WithLabelValues(),
		passages: r.gauge("index", "passages", "Passages in the index after the last successful rebuild."),
		reports:  r.gauge("index", "reports", "Reports in the index after the last successful rebuild."),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return m.registry.handler()
}

func (m *WorkerMetrics) StartReindex() {
	m.running.Inc()
}

func (m *WorkerMetrics) FinishReindex(duration time.Duration, stats domain.IndexStats, err error) {
	m.running.Dec()

	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.passages.Set(float64(stats.Passages))
		m.reports.Set(float64(stats.Documents))
	}
	m.rebuilds.WithLabelValues(status).Inc()
	m.rebuildDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
