package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "egms_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for downloads and enrichment.
type Metrics struct {
	// Archive download metrics.
	DownloadOutcomes *prometheus.CounterVec // labels: status
	DownloadAttempts prometheus.Counter
	DownloadDuration prometheus.Histogram
	DownloadBytes    prometheus.Counter

	// Enrichment metrics.
	RowsEnriched       *prometheus.CounterVec // labels: result={resolved,unknown,error}
	EnrichmentDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: provider, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: layer={memory,sqlite}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: provider

	RateLimitWait *prometheus.HistogramVec // labels: service

	JobsRunning     prometheus.Gauge
	JobsCompleted   *prometheus.CounterVec // labels: kind, state
	EventsPublished prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DownloadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_outcomes_total",
			Help:      "Finished download tasks by status.",
		}, []string{"status"}),
		DownloadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_attempts_total",
			Help:      "Archive requests issued, including retries.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of a single archive request and extraction.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes of CSV extracted from archives.",
		}),
		RowsEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_enriched_total",
			Help:      "Enriched point rows by location result.",
		}, []string{"result"}),
		EnrichmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Duration of a complete file enrichment.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Reverse geocoding request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		RateLimitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a rate limiter slot.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}, []string{"service"}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "1 while a background job is executing, 0 otherwise.",
		}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Finished background jobs by kind and final state.",
		}, []string{"kind", "state"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Outcome events written to Kafka.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DownloadOutcomes,
		m.DownloadAttempts,
		m.DownloadDuration,
		m.DownloadBytes,
		m.RowsEnriched,
		m.EnrichmentDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.RateLimitWait,
		m.JobsRunning,
		m.JobsCompleted,
		m.EventsPublished,
	}
}
