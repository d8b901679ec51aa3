package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the execution pipeline.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	SubmissionsTotal   *prometheus.CounterVec
	ActiveJobs         prometheus.Gauge
	RequestsInFlight   prometheus.Gauge
	CodeSizeBytes      prometheus.Histogram
	FinalUpdateRetries prometheus.Counter
	FinalUpdateDrops   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coderunner",
				Name:      "executions_total",
				Help:      "Total executions processed by the worker, by language and terminal status.",
			},
			[]string{"language", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coderunner",
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock duration of code executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"language"},
		),

		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coderunner",
				Name:      "submissions_total",
				Help:      "Total run requests accepted by the submission path, by language.",
			},
			[]string{"language"},
		),

		ActiveJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "coderunner",
				Name:      "active_jobs",
				Help:      "Number of jobs currently being processed.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "coderunner",
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "coderunner",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code snippets in bytes.",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
		),

		FinalUpdateRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "coderunner",
				Name:      "final_update_retries_total",
				Help:      "Retries of the worker's terminal record update.",
			},
		),

		FinalUpdateDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "coderunner",
				Name:      "final_update_drops_total",
				Help:      "Terminal record updates dropped after exhausting retries.",
			},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.SubmissionsTotal,
		m.ActiveJobs,
		m.RequestsInFlight,
		m.CodeSizeBytes,
		m.FinalUpdateRetries,
		m.FinalUpdateDrops,
	)

	return m
}

// RecordExecution records metrics for a processed job.
func (m *Metrics) RecordExecution(language, status string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(language, status).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(durationSec)
}

// RecordSubmission records an accepted run request.
func (m *Metrics) RecordSubmission(language string, codeSize int) {
	m.SubmissionsTotal.WithLabelValues(language).Inc()
	m.CodeSizeBytes.Observe(float64(codeSize))
}
