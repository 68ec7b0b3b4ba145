// Package metrics exposes Prometheus instrumentation for the evaluation
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects counters and histograms for evaluation runs.
//
// Tracked series:
//   - model fetch volume and latency, by model and status
//   - scoring volume, by status and badcase verdict
//   - evaluation runs, by strategy and outcome
//   - report store operations
type Metrics struct {
	// ItemsFetched counts phase 1 completions.
	// Labels: model, status (success|error)
	ItemsFetched *prometheus.CounterVec

	// FetchDuration measures model call latency in seconds.
	// Labels: model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	FetchDuration *prometheus.HistogramVec

	// ItemsScored counts phase 2 completions.
	// Labels: status (success|error), badcase (true|false)
	ItemsScored *prometheus.CounterVec

	// RunsCompleted counts whole evaluation runs.
	// Labels: strategy, status (success|error)
	RunsCompleted *prometheus.CounterVec

	// RunDuration measures whole-run latency in seconds.
	// Labels: strategy
	// Buckets: 1s, 5s, 30s, 60s, 300s, 600s, 1800s, 3600s
	RunDuration *prometheus.HistogramVec

	// ReportStoreOps counts report persistence operations.
	// Labels: operation (save|get|list), status (success|error)
	ReportStoreOps *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass nil to register with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ItemsFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_items_fetched_total",
				Help: "Total number of model outputs fetched by model and status",
			},
			[]string{"model", "status"},
		),

		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verdict_fetch_duration_seconds",
				Help:    "Duration of model inference calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),

		ItemsScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_items_scored_total",
				Help: "Total number of items scored by status and badcase verdict",
			},
			[]string{"status", "badcase"},
		),

		RunsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_runs_total",
				Help: "Total number of evaluation runs by strategy and status",
			},
			[]string{"strategy", "status"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verdict_run_duration_seconds",
				Help:    "Duration of evaluation runs in seconds",
				Buckets: []float64{1, 5, 30, 60, 300, 600, 1800, 3600},
			},
			[]string{"strategy"},
		),

		ReportStoreOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_report_store_operations_total",
				Help: "Total number of report store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
	}
}

// ItemFetched records one phase 1 completion.
func (m *Metrics) ItemFetched(model, status string, elapsed time.Duration) {
	m.ItemsFetched.WithLabelValues(model, status).Inc()
	m.FetchDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ItemScored records one phase 2 completion.
func (m *Metrics) ItemScored(status string, badcase bool) {
	label := "false"
	if badcase {
		label = "true"
	}
	m.ItemsScored.WithLabelValues(status, label).Inc()
}

// RunCompleted records one finished evaluation run.
func (m *Metrics) RunCompleted(strategy, status string, elapsed time.Duration) {
	m.RunsCompleted.WithLabelValues(strategy, status).Inc()
	m.RunDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ReportStoreOp records one report persistence operation.
func (m *Metrics) ReportStoreOp(operation, status string) {
	m.ReportStoreOps.WithLabelValues(operation, status).Inc()
}
