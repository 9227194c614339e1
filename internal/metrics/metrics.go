// Package metrics provides Prometheus instrumentation for the uni-slot chat
// backend: connection and room gauges, message outcome counters, and
// moderation latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slotchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the number of slot rooms with at least one member.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slotchat_active_rooms",
		Help: "Current number of slot rooms with at least one connected session",
	})

	// MessagesTotal counts submitted messages by outcome: "accepted",
	// "rejected", "failed", "invalid", or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slotchat_messages_total",
		Help: "Total number of submitted messages by outcome",
	}, []string{"outcome"})

	// VerdictsTotal counts moderation verdicts by the mechanism that decided
	// them: "remote" or "fallback".
	VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slotchat_verdicts_total",
		Help: "Total number of moderation verdicts by deciding mechanism",
	}, []string{"mechanism"})

	// ModerationLatency records end-to-end moderation decision latency in
	// seconds, dominated by the remote classifier call.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slotchat_moderation_latency_seconds",
		Help:    "Moderation decision latency in seconds",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ActiveRooms,
		MessagesTotal,
		VerdictsTotal,
		ModerationLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
