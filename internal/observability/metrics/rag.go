package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

type ragCollectors struct {
	queries      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	insufficient *prometheus.CounterVec
	inherited    *prometheus.CounterVec
	cited        *prometheus.HistogramVec
	duration     *prometheus.HistogramVec
}

func newRAGCollectors(r registry) ragCollectors {
	return ragCollectors{
		queries:      r.counter("rag", "queries_total", "Total RAG queries by answer template and status.", "template", "status"),
		failures:     r.counter("rag", "failures_total", "Total failed RAG queries by error kind.", "kind"),
		insufficient: r.counter("rag", "insufficient_total", "Total answers returned without any retrieved passage."),
		inherited:    r.counter("rag", "inherited_plans_total", "Total query plans that inherited filters from the previous turn."),
		cited: r.histogram("rag", "cited_passages", "Distribution of cited passages per successful query.",
			[]float64{0, 1, 2, 3, 5, 8, 13, 21}, "template"),
		duration: r.histogram("rag", "duration_seconds", "RAG query duration in seconds.",
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120}, "template"),
	}
}

// ObserveQuery records one finished RAG query.
func (m *HTTPServerMetrics) ObserveQuery(plan domain.QueryPlan, answer *domain.Answer, err error, elapsedSeconds float64) {
	template := string(plan.Template)
	if template == "" {
		template = "unknown"
	}
	c := m.rag
	if err != nil {
		c.queries.WithLabelValues(template, "error").Inc()
		c.failures.WithLabelValues(FailureKind(err)).Inc()
		return
	}

	c.queries.WithLabelValues(template, "success").Inc()
	c.duration.WithLabelValues(template).Observe(elapsedSeconds)
	if plan.Inherited {
		c.inherited.WithLabelValues().Inc()
	}
	if answer == nil {
		return
	}
	c.cited.WithLabelValues(template).Observe(float64(len(answer.Citations)))
	if answer.Insufficient {
		c.insufficient.WithLabelValues().Inc()
	}
}

var failureKinds = []struct {
	kind  error
	label string
}{
	{domain.ErrUnauthorized, "unauthorized"},
	{domain.ErrGenerationTimeout, "generation_timeout"},
	{domain.ErrGatewayTimeout, "gateway_timeout"},
	{domain.ErrEmbeddingUnavailable, "embedding_unavailable"},
	{domain.ErrGenerationUnavailable, "generation_unavailable"},
	{domain.ErrNoDocumentsIndexed, "no_documents"},
	{domain.ErrInvalidInput, "invalid_input"},
	{context.Canceled, "canceled"},
}

// FailureKind names the error kind used as a metric label. The first match
// wins, so more specific kinds come first.
func FailureKind(err error) string {
	for _, k := range failureKinds {
		if errors.Is(err, k.kind) {
			return k.label
		}
	}
	return "internal"
}
