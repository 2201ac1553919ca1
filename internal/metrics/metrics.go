package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "leadchat_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	AgentLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadchat_agent_latency_seconds",
			Help:    "Completion call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
	)

	AgentFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadchat_agent_failures_total",
			Help: "Completion calls that failed and fell back to the canned reply",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadchat_active_sessions",
			Help: "Number of live chat sessions",
		},
	)

	FieldsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_fields_captured_total",
			Help: "Lead fields written into a record, by field and source",
		},
		[]string{"field", "source"},
	)

	SessionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_sessions_finalized_total",
			Help: "Sessions closed, by close reason",
		},
		[]string{"reason"},
	)

	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_notify_failures_total",
			Help: "Lead notifications that failed to deliver, by sink",
		},
		[]string{"sink"},
	)
)
