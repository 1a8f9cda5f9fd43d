package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaypool_connect_attempts_total",
			Help: "Total number of relay connection attempts by result",
		},
		[]string{"result"},
	)

	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relaypool_connections_current",
			Help: "Current number of connected relays",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaypool_messages_sent_total",
			Help: "Total number of messages delivered to relays",
		},
	)

	Failovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaypool_failovers_total",
			Help: "Total number of unexpected relay disconnects",
		},
	)

	RelayHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relaypool_relay_health_score",
			Help: "Current health score per relay in [0,1]",
		},
		[]string{"relay"},
	)
)
