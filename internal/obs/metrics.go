package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one index.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Inserts      prometheus.Counter
	InsertErrors prometheus.Counter
	Searches     prometheus.Counter

	InsertLatency prometheus.Histogram
	SearchLatency prometheus.Histogram

	Nodes    prometheus.Gauge
	MaxLevel prometheus.Gauge

	RebuildBatches      prometheus.Counter
	RebuildEdgesAdded   prometheus.Counter
	RebuildEdgesRemoved prometheus.Counter
	RebuildRunning      prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Inserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickhnsw_inserts_total",
			Help: "Total vector insertions",
		}),
		InsertErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickhnsw_insert_errors_total",
			Help: "Total failed vector insertions",
		}),
		Searches: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickhnsw_searches_total",
			Help: "Total search queries",
		}),
		InsertLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quickhnsw_insert_latency_seconds",
			Help:    "Insert latency",
			Buckets: prometheus.DefBuckets,
		}),
		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quickhnsw_search_latency_seconds",
			Help:    "Search latency",
			Buckets: prometheus.DefBuckets,
		}),
		Nodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quickhnsw_nodes",
			Help: "Number of indexed vectors",
		}),
		MaxLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quickhnsw_max_level",
			Help: "Highest occupied graph layer",
		}),
		RebuildBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickhnsw_rebuild_batches_total",
			Help: "Rebuild batches applied",
		}),
		RebuildEdgesAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickhnsw_rebuild_edges_added_total",
			Help: "Layer-0 edges added by rebuilds",
		}),
		RebuildEdgesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickhnsw_rebuild_edges_removed_total",
			Help: "Layer-0 edges removed by rebuilds",
		}),
		RebuildRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quickhnsw_rebuild_running",
			Help: "1 while a rebuild is in progress",
		}),
		registry: registry,
	}
}

// Registry returns the registry the collectors are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveInsert records one insertion attempt
func (m *Metrics) ObserveInsert(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.InsertErrors.Inc()
		return
	}
	m.Inserts.Inc()
	m.InsertLatency.Observe(elapsed.Seconds())
}

// ObserveSearch records one query
func (m *Metrics) ObserveSearch(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Searches.Inc()
	m.SearchLatency.Observe(elapsed.Seconds())
}

// SetGraphShape updates the node count and layer gauges
func (m *Metrics) SetGraphShape(nodes, maxLevel int) {
	if m == nil {
		return
	}
	m.Nodes.Set(float64(nodes))
	m.MaxLevel.Set(float64(maxLevel))
}

// ObserveRebuildBatch records the edge churn of one rebuild batch
func (m *Metrics) ObserveRebuildBatch(added, removed uint64) {
	if m == nil {
		return
	}
	m.RebuildBatches.Inc()
	m.RebuildEdgesAdded.Add(float64(added))
	m.RebuildEdgesRemoved.Add(float64(removed))
}

func (m *Metrics) SetRebuildRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.RebuildRunning.Set(1)
	} else {
		m.RebuildRunning.Set(0)
	}
}
