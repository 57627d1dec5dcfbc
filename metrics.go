package reactor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet is the Prometheus exposition of engine stats and cache
// metrics. It is created per engine and, when a Registerer is supplied via
// WithMetricsRegisterer, registered there; otherwise the collectors exist
// but are never scraped, which keeps metrics optional without branching
// on nil throughout the engine.
type metricsSet struct {
	computeTotal      *prometheus.CounterVec
	errorTotal        *prometheus.CounterVec
	activeNodes       prometheus.Gauge
	pendingSkipHooks  prometheus.Gauge
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	cacheEntries      *prometheus.GaugeVec
}

func newMetricsSet(engineID string) *metricsSet {
	return &metricsSet{
		computeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "compute_total",
			Help:      "Total number of node compute invocations.",
		}, []string{"engine_id", "node_id"}),
		errorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "compute_errors_total",
			Help:      "Total number of node compute errors.",
		}, []string{"engine_id", "node_id"}),
		activeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "active_nodes",
			Help:      "Number of nodes whose pipeline has not yet produced a terminal event.",
			ConstLabels: prometheus.Labels{"engine_id": engineID},
		}),
		pendingSkipHooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "pending_skip_hooks",
			Help:      "Number of NODE_SKIP_COMPUTATION emissions deferred until stabilisation.",
			ConstLabels: prometheus.Labels{"engine_id": engineID},
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "cache_hits_total",
			Help:      "Total cache hits by node.",
		}, []string{"engine_id", "node_id"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reactor",
			Name:      "cache_misses_total",
			Help:      "Total cache misses by node.",
		}, []string{"engine_id", "node_id"}),
		cacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reactor",
			Name:      "cache_entries",
			Help:      "Current number of cache entries by node.",
		}, []string{"engine_id", "node_id"}),
	}
}

func (m *metricsSet) register(reg prometheus.Registerer) {
	if reg == nil || m == nil {
		return
	}
	collectors := []prometheus.Collector{
		m.computeTotal, m.errorTotal, m.activeNodes, m.pendingSkipHooks,
		m.cacheHits, m.cacheMisses, m.cacheEntries,
	}
	for _, c := range collectors {
		_ = reg.Register(c) // best-effort: a re-registration conflict never blocks startup
	}
}
