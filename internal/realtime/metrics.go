package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_active_connections",
			Help: "Live websocket connections per registry",
		},
		[]string{"registry"},
	)

	pushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_push_total",
			Help: "Push attempts per registry and outcome",
		},
		[]string{"registry", "result"},
	)
)
