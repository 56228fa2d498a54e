package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "messaging_messages_total",
		Help: "Total number of chat frames accepted, by kind",
	},
	[]string{"kind"},
)
