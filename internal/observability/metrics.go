package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeAPIError  = "api_error"
	OutcomeTransport = "transport_error"
)

var (
	// APIRequests counts calls to the remote API by operation and outcome.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armp_api_requests_total",
		Help: "Total number of remote API calls by operation and outcome",
	}, []string{"operation", "outcome"})

	// APIRequestDuration records remote API latency by operation.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "armp_api_request_duration_seconds",
		Help:    "Remote API call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// SessionEvents counts session transitions (login, logout, invalidated...).
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armp_session_events_total",
		Help: "Total session state transitions by event",
	}, []string{"event"})

	// ActiveSessions is the gauge of browser sessions held in memory.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "armp_active_sessions",
		Help: "Number of browser sessions currently held by the server",
	})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armp_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armp_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"resource"})
)

// ObserveAPICall records one remote API call.
func ObserveAPICall(operation, outcome string, elapsed time.Duration) {
	APIRequests.WithLabelValues(operation, outcome).Inc()
	APIRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordSessionEvent increments the session event counter.
func RecordSessionEvent(event string) {
	SessionEvents.WithLabelValues(event).Inc()
}
