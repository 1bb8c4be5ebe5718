package kv

import (
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Manager)(nil)

const (
	namespace        = "riakpersist"
	managerSubsystem = "manager"
)

type metrics struct {
	// labels: bucket
	loads      *prometheus.CounterVec
	loadMisses *prometheus.CounterVec
	stores     *prometheus.CounterVec
	deletes    *prometheus.CounterVec
	migrations *prometheus.CounterVec
	purged     *prometheus.CounterVec

	mapReduceDuration prometheus.Histogram
}

func newMetrics() *metrics {
	labels := []string{"bucket"}
	return &metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: managerSubsystem,
			Name:      "loads_total",
			Help:      "Number of objects fetched for loading",
		}, labels),
		loadMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: managerSubsystem,
			Name:      "load_misses_total",
			Help:      "Number of loads of absent keys",
		}, labels),
		stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: managerSubsystem,
			Name:      "stores_total",
			Help:      "Number of objects written",
		}, labels),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: managerSubsystem,
			Name:      "deletes_total",
			Help:      "Number of objects deleted",
		}, labels),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: managerSubsystem,
			Name:      "migration_steps_total",
			Help:      "Number of migration steps applied while loading",
		}, labels),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: managerSubsystem,
			Name:      "purged_keys_total",
			Help:      "Number of keys deleted by purges",
		}, labels),
		mapReduceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: managerSubsystem,
			Name:      "mapreduce_duration_seconds",
			Help:      "Time spent waiting for map-reduce results",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 240},
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.loads,
		m.loadMisses,
		m.stores,
		m.deletes,
		m.migrations,
		m.purged,
		m.mapReduceDuration,
	}
}

// Describe returns all descriptions of the collector.
func (m *Manager) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.metrics.collectors() {
		c.Describe(ch)
	}
}

// Collect returns the current state of all metrics of the collector.
func (m *Manager) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.metrics.collectors() {
		c.Collect(ch)
	}
}
