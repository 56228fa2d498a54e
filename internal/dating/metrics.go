package dating

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	swipesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dating_swipes_total",
			Help: "Total number of swipes recorded",
		},
		[]string{"direction"},
	)

	matchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dating_matches_total",
			Help: "Total number of matches created",
		},
		[]string{"source"},
	)
)

func RecordSwipe(liked bool) {
	direction := "left"
	if liked {
		direction = "right"
	}
	swipesTotal.WithLabelValues(direction).Inc()
}

// RecordMatch counts a persisted Match by source
func RecordMatch(source string) {
	matchesTotal.WithLabelValues(source).Inc()
}
