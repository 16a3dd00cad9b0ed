// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// EventsProcessed counts events by type and outcome.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Conversation events handled, by type and outcome",
		},
		[]string{"event_type", "status"},
	)

	// EventDuration tracks handler latency per event type.
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_processing_duration_seconds",
			Help:    "Conversation event handler duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"event_type"},
	)

	// AgentSessions counts session lease decisions.
	AgentSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_sessions_total",
			Help: "Agent session lease decisions (reused, refreshed, created, terminated)",
		},
		[]string{"action"},
	)

	// AgentTokensTotal tracks tokens reported by the agent.
	AgentTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_tokens_total",
			Help: "Total tokens reported by the agent backend",
		},
	)

	// BusMessages counts messages consumed from the event bus.
	BusMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_bus_messages_total",
			Help: "Event bus messages consumed, by disposition",
		},
		[]string{"disposition"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordEvent records the outcome of one processed event.
func RecordEvent(eventType, status string, duration float64) {
	EventsProcessed.WithLabelValues(eventType, status).Inc()
	EventDuration.WithLabelValues(eventType).Observe(duration)
}

// RecordSession records a session lease decision.
func RecordSession(action string) {
	AgentSessions.WithLabelValues(action).Inc()
}

// RecordTokens adds agent token usage.
func RecordTokens(tokens int) {
	if tokens > 0 {
		AgentTokensTotal.Add(float64(tokens))
	}
}
