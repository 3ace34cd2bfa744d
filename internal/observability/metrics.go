package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "template_trim"

// Metrics holds the Prometheus counters, histograms, and gauges for a
// template extraction run.
type Metrics struct {
	TemplatesWritten prometheus.Counter
	UnitsSkipped     *prometheus.CounterVec // labels: stage
	DayStreamsLoaded prometheus.Counter
	EventsAssociated prometheus.Counter
	RunActive        prometheus.Gauge

	// Per (station, day) unit timing.
	UnitDuration prometheus.Histogram

	// Inventory metrics.
	InventoryLookups *prometheus.CounterVec // labels: source, result={found,missing,error}
	InventoryCache   *prometheus.CounterVec // labels: result={hit,miss}

	// Sink metrics.
	SinkWrites *prometheus.CounterVec // labels: sink={dir,s3,kafka,sqlite}, outcome={success,error}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TemplatesWritten,
		m.UnitsSkipped,
		m.DayStreamsLoaded,
		m.EventsAssociated,
		m.RunActive,
		m.UnitDuration,
		m.InventoryLookups,
		m.InventoryCache,
		m.SinkWrites,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TemplatesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "templates_written_total",
			Help:      "Templates trimmed and persisted.",
		}),
		UnitsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_skipped_total",
			Help:      "Abandoned extractions by the stage that failed.",
		}, []string{"stage"}),
		DayStreamsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_streams_loaded_total",
			Help:      "Continuous day streams read, merged and filtered.",
		}),
		EventsAssociated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_associated_total",
			Help:      "Catalog events matched to a (station, day) unit.",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_active",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time spent on one (station, day) unit.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		InventoryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_lookups_total",
			Help:      "Station lookups by inventory source and result.",
		}, []string{"source", "result"}),
		InventoryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_cache_total",
			Help:      "Coordinate cache lookups by result.",
		}, []string{"result"}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Template writes by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}
}
