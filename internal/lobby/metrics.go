package lobby

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lobby_events_total",
			Help: "Total number of lobby events opened",
		},
	)

	pairsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lobby_pairs_total",
			Help: "Total number of pairs produced by lobby passes",
		},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lobby_pass_duration_seconds",
			Help:    "Duration of lobby matching passes",
			Buckets: prometheus.DefBuckets,
		},
	)
)
