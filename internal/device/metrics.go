package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bringUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uitester",
			Name:      "device_bringups_total",
			Help:      "Device bring-ups by outcome (success or failed step).",
		},
		[]string{"result"},
	)

	cachedHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uitester",
			Name:      "device_cached_handles",
			Help:      "Number of device handles currently cached.",
		},
	)
)
