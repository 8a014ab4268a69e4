package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	stageDuration  *prometheus.HistogramVec
	reviewAttempts *prometheus.HistogramVec
	reports        *prometheus.CounterVec
	runs           *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consultd_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage", "status"}),
		reviewAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consultd_review_attempts",
			Help:    "Write-review attempts per generated report.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, []string{"report_type"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consultd_reports_total",
			Help: "Reports persisted, by type and review outcome.",
		}, []string{"report_type", "passed"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consultd_pipeline_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.stageDuration, m.reviewAttempts, m.reports, m.runs)
	}
	return m
}
