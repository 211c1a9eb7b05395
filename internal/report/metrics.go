package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uitester",
			Name:      "report_stage_duration_seconds",
			Help:      "Duration of the report pipeline stages.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"stage", "status"},
	)

	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uitester",
			Name:      "report_pipeline_runs_total",
			Help:      "Report pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
)
