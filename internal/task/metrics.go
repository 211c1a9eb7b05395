package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uitester",
			Name:      "tasks_started_total",
			Help:      "Number of accepted task start requests.",
		},
	)

	tasksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uitester",
			Name:      "tasks_finished_total",
			Help:      "Number of finished tasks by terminal state.",
		},
		[]string{"state"},
	)

	tasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uitester",
			Name:      "tasks_running",
			Help:      "Number of tasks currently executing.",
		},
	)

	tasksEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uitester",
			Name:      "tasks_evicted_total",
			Help:      "Number of terminal task records evicted from memory.",
		},
	)
)
