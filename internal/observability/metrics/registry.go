package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autorag"

// registry is a private Prometheus registry whose collectors all carry the
// owning service as a constant label.
type registry struct {
	reg     *prometheus.Registry
	factory promauto.Factory
	service prometheus.Labels
}

func newRegistry(service string) registry {
	reg := prometheus.NewRegistry()
	return registry{
		reg:     reg,
		factory: promauto.With(reg),
		service: prometheus.Labels{"service": service},
	}
}

func (r registry) handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r registry) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return r.factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: r.service,
	}, labels)
}

func (r registry) histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return r.factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: r.service,
	}, labels)
}

func (r registry) gauge(subsystem, name, help string) prometheus.Gauge {
	return r.factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: r.service,
	})
}
