// Package observability provides metrics and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// PolicyDecisions counts authorization outcomes by operation.
	PolicyDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_policy_decisions_total",
		Help: "Authorization decisions by operation and outcome",
	}, []string{"operation", "outcome"})

	// CacheLookups counts cache-aside lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_cache_lookups_total",
		Help: "Cache-aside lookups by result",
	}, []string{"result"})

	// EventsPublished counts domain events handed to Redis pub/sub.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_events_published_total",
		Help: "Domain events published by type and outcome",
	}, []string{"event_type", "outcome"})

	// ActiveWebSockets tracks open notification sockets.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quill_websocket_connections_active",
		Help: "Open notification websocket connections",
	})

	// WebSocketDrops counts events not delivered to a socket, by reason.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_websocket_dropped_messages_total",
		Help: "Notification messages dropped before reaching a socket",
	}, []string{"reason"})
)

// RecordDecision records one authorization outcome.
func RecordDecision(operation string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	PolicyDecisions.WithLabelValues(operation, outcome).Inc()
}
