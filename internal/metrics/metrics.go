// Package metrics holds the Prometheus instrumentation for the analysis
// pipeline and the artifacts server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all pipeline metrics.
type Registry struct {
	// StageDuration tracks how long each analysis stage takes.
	StageDuration *prometheus.HistogramVec

	// StagesTotal counts stage executions by outcome.
	StagesTotal *prometheus.CounterVec

	// FrameRows records how many rows each input frame yielded.
	FrameRows *prometheus.GaugeVec

	// PatternsDetected counts detected patterns by rule and severity.
	PatternsDetected *prometheus.CounterVec

	// AlertsEmitted counts payload alerts by id and severity.
	AlertsEmitted *prometheus.CounterVec

	// AnalystRequests counts LLM briefing calls by result.
	AnalystRequests *prometheus.CounterVec

	// RunsTotal counts full pipeline executions.
	RunsTotal prometheus.Counter
}

// NewRegistry creates the pipeline metrics.
func NewRegistry() *Registry {
	return &Registry{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitalrun_stage_duration_seconds",
				Help:    "Duration of each analysis stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"stage"},
		),
		StagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalrun_stages_total",
				Help: "Total analysis stage executions by status",
			},
			[]string{"stage", "status"},
		),
		FrameRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vitalrun_frame_rows",
				Help: "Rows loaded per input frame in the last run",
			},
			[]string{"frame"},
		),
		PatternsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalrun_patterns_detected_total",
				Help: "Detected multi-day patterns by rule and severity",
			},
			[]string{"pattern", "severity"},
		),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalrun_alerts_emitted_total",
				Help: "Payload alerts by id and severity",
			},
			[]string{"id", "severity"},
		),
		AnalystRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalrun_analyst_requests_total",
				Help: "LLM analyst briefing calls by result",
			},
			[]string{"result"},
		),
		RunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vitalrun_runs_total",
				Help: "Total full analysis runs",
			},
		),
	}
}

// Register adds all metrics to a Prometheus registerer.
func (r *Registry) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		r.StageDuration,
		r.StagesTotal,
		r.FrameRows,
		r.PatternsDetected,
		r.AlertsEmitted,
		r.AnalystRequests,
		r.RunsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
