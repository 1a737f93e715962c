package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "case_qc"

// Metrics holds the Prometheus counters, histograms, and gauges for the check service.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: dataset, outcome={success,error}
	RunDuration     *prometheus.HistogramVec
	RegionsChecked  prometheus.Counter
	RegionErrors    prometheus.Counter
	MessagesLogged  *prometheus.CounterVec // labels: category
	FitFailures     prometheus.Counter
	SchedulerActive prometheus.Gauge

	// Snapshot cache metrics.
	SnapshotCache *prometheus.CounterVec // labels: result={hit,miss}

	// County rollup source metrics.
	CountyRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	CountyCache       *prometheus.CounterVec // labels: result={hit,miss}
	CountyAPIDuration prometheus.Histogram

	// Findings publishing.
	FindingsPublished prometheus.Counter
	PublishErrors     prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Check passes by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete check pass.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"dataset"}),
		RegionsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_checked_total",
			Help:      "Total regions evaluated.",
		}),
		RegionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_errors_total",
			Help:      "Regions whose checks failed and were logged as internal errors.",
		}),
		MessagesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Findings recorded by category.",
		}, []string{"category"}),
		FitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_fit_failures_total",
			Help:      "Trend fits that failed or projected unusable values.",
		}),
		SchedulerActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_active",
			Help:      "1 when the refresh scheduler is running, 0 otherwise.",
		}),
		SnapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Result snapshot lookups by result.",
		}, []string{"result"}),
		CountyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "county_requests_total",
			Help:      "County rollup API requests by outcome.",
		}, []string{"outcome"}),
		CountyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "county_cache_total",
			Help:      "County rollup cache lookups by result.",
		}, []string{"result"}),
		CountyAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "county_api_duration_seconds",
			Help:      "County rollup API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		FindingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_published_total",
			Help:      "Findings written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish findings.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.RunDuration,
		m.RegionsChecked,
		m.RegionErrors,
		m.MessagesLogged,
		m.FitFailures,
		m.SchedulerActive,
		m.SnapshotCache,
		m.CountyRequests,
		m.CountyCache,
		m.CountyAPIDuration,
		m.FindingsPublished,
		m.PublishErrors,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
