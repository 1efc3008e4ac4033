// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Mutations       *prometheus.CounterVec
	MirrorFailures  *prometheus.CounterVec
	SearchFallbacks *prometheus.CounterVec
	MirrorLatency   *prometheus.HistogramVec
	Reindexed       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pragrisk",
			Name:      "store_mutations_total",
			Help:      "Successful store mutations by entity kind and operation.",
		}, []string{"kind", "op"}),
		MirrorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pragrisk",
			Name:      "mirror_failures_total",
			Help:      "Search index propagations that failed after a successful store write.",
		}, []string{"kind", "op"}),
		SearchFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pragrisk",
			Name:      "search_fallbacks_total",
			Help:      "Searches answered by the store because the index failed.",
		}, []string{"kind"}),
		MirrorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pragrisk",
			Name:      "mirror_propagation_seconds",
			Help:      "Time spent propagating a store mutation to the search index.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		Reindexed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pragrisk",
			Name:      "reindexed_documents_total",
			Help:      "Documents written by reindex runs.",
		}, []string{"kind"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
