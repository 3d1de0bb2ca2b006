// Package metrics exposes prometheus collectors for the facade and the
// page cache on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps prometheus collectors for pulsar metrics
type Metrics struct {
	registry *prometheus.Registry

	StoreOps    prometheus.Counter
	PageHits    prometheus.Counter
	PageMisses  prometheus.Counter
	Fetches     prometheus.Counter
	FetchErrors prometheus.Counter
}

// New creates a Metrics with all collectors registered under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		StoreOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of facade store operations",
		}),
		PageHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cache_hits_total",
			Help:      "Total number of page cache hits",
		}),
		PageMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cache_misses_total",
			Help:      "Total number of page cache misses",
		}),
		Fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetches_total",
			Help:      "Total number of successful page fetches",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetch_errors_total",
			Help:      "Total number of failed page fetches",
		}),
	}

	registry.MustRegister(
		m.StoreOps,
		m.PageHits,
		m.PageMisses,
		m.Fetches,
		m.FetchErrors,
	)

	return m
}

// Handler returns an HTTP handler serving the registry in the
// prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
