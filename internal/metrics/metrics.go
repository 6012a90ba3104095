// Package metrics exposes the pipeline's Prometheus counters, the way the
// example pack's telemetry providers register a fixed metric set against a
// registry and hand back an HTTP handler rather than letting callers poke
// at global state directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/gauge the ingestion and delivery layers
// report against, registered once at startup against a private registry.
type Metrics struct {
	EventsIngested   prometheus.Counter
	EventsDeduped    prometheus.Counter
	EnrichmentFetches prometheus.Counter
	EnrichmentFailures prometheus.Counter

	DecisionsByTier *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
	PartialDeliveries *prometheus.CounterVec
	DigestFlushes   *prometheus.CounterVec

	handler http.Handler
}

// New builds and registers the metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "killwatch_events_ingested_total",
			Help: "Raw events accepted from the relay, before dedup.",
		}),
		EventsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "killwatch_events_deduped_total",
			Help: "Events dropped as duplicate kill ids.",
		}),
		EnrichmentFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "killwatch_enrichment_fetches_total",
			Help: "Enrichment fetches issued by the prefetch gate.",
		}),
		EnrichmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "killwatch_enrichment_failures_total",
			Help: "Enrichment fetches that returned an error.",
		}),
		DecisionsByTier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killwatch_decisions_total",
			Help: "Decisions routed, by profile and tier.",
		}, []string{"profile", "tier"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killwatch_rate_limited_total",
			Help: "Decisions suppressed by a profile's token bucket.",
		}, []string{"profile"}),
		PartialDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killwatch_partial_deliveries_total",
			Help: "Deliveries where at least one provider failed but not all.",
		}, []string{"profile"}),
		DigestFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "killwatch_digest_flushes_total",
			Help: "Digest batches flushed, by profile.",
		}, []string{"profile"}),
	}

	reg.MustRegister(
		m.EventsIngested, m.EventsDeduped, m.EnrichmentFetches, m.EnrichmentFailures,
		m.DecisionsByTier, m.RateLimited, m.PartialDeliveries, m.DigestFlushes,
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registered metrics for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}
