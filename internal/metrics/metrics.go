// Package metrics holds the Prometheus collectors for the tool surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ToolCalls.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
)

var (
	// ToolCalls counts searchLogs invocations by outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logsearch",
		Subsystem: "tool",
		Name:      "calls_total",
		Help:      "Number of searchLogs tool calls by outcome.",
	}, []string{"outcome"})

	// QueryDuration observes downstream query latency in seconds.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "logsearch",
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Latency of downstream log-analytics queries.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// OpenSessions tracks live network-transport sessions.
	OpenSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "logsearch",
		Subsystem: "http",
		Name:      "open_sessions",
		Help:      "Number of open MCP sessions on the network transport.",
	})
)

// NewQueryTimer starts a timer that records into QueryDuration when its
// ObserveDuration is called.
func NewQueryTimer() *prometheus.Timer {
	return prometheus.NewTimer(QueryDuration)
}
