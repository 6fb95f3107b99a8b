package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_incidents"

// Metrics holds the Prometheus counters, histograms, and gauges for the incident pipeline.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	IncidentsEmitted prometheus.Counter
	BatchErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchReports            prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
	ReportsRejected         prometheus.Counter
	ReportsUnclusterable    prometheus.Counter

	// Clustering metrics.
	ClustersRefined        prometheus.Counter
	KMeansConvergenceLimit prometheus.Counter
	IncidentChanges        *prometheus.CounterVec // labels: change={created,updated}
	IncidentsTracked       prometheus.Gauge

	// Scoring metrics.
	ScoreCache        *prometheus.CounterVec // labels: result={hit,miss}
	ScoringDuration   prometheus.Histogram
	CorpusUnavailable prometheus.Counter
	CorpusRefreshes   *prometheus.CounterVec // labels: outcome={success,error}
	CorpusItems       prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total report batch messages read from the source topic.",
		}),
		IncidentsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_emitted_total",
			Help:      "Total incident records written to the sink topic.",
		}),
		BatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_errors_total",
			Help:      "Total batch messages skipped because they could not be decoded or processed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchReports: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_reports",
			Help:      "Number of reports per processed batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete incident formation run for one batch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ReportsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_rejected_total",
			Help:      "Reports dropped at ingestion for failing validation.",
		}),
		ReportsUnclusterable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_unclusterable_total",
			Help:      "Reports scored but excluded from clustering for invalid coordinates.",
		}),
		ClustersRefined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_refined_total",
			Help:      "Provisional clusters split with K-Means.",
		}),
		KMeansConvergenceLimit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kmeans_convergence_limit_total",
			Help:      "K-Means runs that stopped at the iteration cap.",
		}),
		IncidentChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_changes_total",
			Help:      "Incidents created or updated by a pipeline run.",
		}, []string{"change"}),
		IncidentsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incidents_tracked",
			Help:      "Number of incidents in the persisted state after the last run.",
		}),
		ScoreCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_total",
			Help:      "Authenticity score cache lookups by result.",
		}, []string{"result"}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Duration of scoring all reports of one batch.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		CorpusUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_unavailable_total",
			Help:      "Scoring runs that fell back to zero scores because the reference corpus was unavailable.",
		}),
		CorpusRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_refreshes_total",
			Help:      "Reference corpus refresh attempts by outcome.",
		}, []string{"outcome"}),
		CorpusItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_items",
			Help:      "Number of reference news items currently served.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.IncidentsEmitted,
		m.BatchErrors,
		m.PipelineRunning,
		m.BatchReports,
		m.BatchProcessingDuration,
		m.ReportsRejected,
		m.ReportsUnclusterable,
		m.ClustersRefined,
		m.KMeansConvergenceLimit,
		m.IncidentChanges,
		m.IncidentsTracked,
		m.ScoreCache,
		m.ScoringDuration,
		m.CorpusUnavailable,
		m.CorpusRefreshes,
		m.CorpusItems,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
