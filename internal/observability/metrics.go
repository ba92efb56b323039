package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sarida"

// Metrics holds the Prometheus counters and histograms for the dashboard backend.
type Metrics struct {
	// Input cache lookups. labels: kind={dataset,reanalysis,probability,analysis}, result={hit,miss}
	CacheLookups *prometheus.CounterVec

	// Index pipeline runs and their duration.
	PipelineRuns     *prometheus.CounterVec // labels: outcome={success,error}
	PipelineDuration prometheus.Histogram

	// Classifier playground. labels: outcome={success,error,invalid}
	Predictions *prometheus.CounterVec

	// Chat assistant calls. labels: outcome={success,fallback}
	ChatRequests *prometheus.CounterVec
	ChatDuration prometheus.Histogram

	// Report log submissions and mirror failures.
	ReportsSubmitted prometheus.Counter
	MirrorErrors     *prometheus.CounterVec // labels: mirror={repository,kafka}

	// Asset downloads. labels: source={http,s3}, outcome={success,error}
	AssetFetches *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheLookups,
		m.PipelineRuns,
		m.PipelineDuration,
		m.Predictions,
		m.ChatRequests,
		m.ChatDuration,
		m.ReportsSubmitted,
		m.MirrorErrors,
		m.AssetFetches,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Input cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Index pipeline executions by outcome.",
		}, []string{"outcome"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a full load-convert-index-trend run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Classifier playground predictions by outcome.",
		}, []string{"outcome"}),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat assistant requests by outcome.",
		}, []string{"outcome"}),
		ChatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_duration_seconds",
			Help:      "Language model call duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		ReportsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Field reports appended to the report log.",
		}),
		MirrorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_mirror_errors_total",
			Help:      "Failures mirroring a report to a secondary store.",
		}, []string{"mirror"}),
		AssetFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_fetches_total",
			Help:      "Remote asset downloads by source and outcome.",
		}, []string{"source", "outcome"}),
	}
}
