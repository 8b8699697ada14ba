package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Mutation settlement latency, optimistic apply through settle (ms).
	MutationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habit_mutation_latency_ms",
			Help:    "Optimistic mutation latency from apply to settle in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"mutation", "outcome"},
	)

	// Remote document-store call latency (ms).
	RemoteCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_call_latency_ms",
			Help:    "Remote data service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
		},
		[]string{"operation", "status"},
	)

	// HTTP request latency (seconds).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Rollbacks after a remote failure.
	RollbackCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_rollback_count",
			Help: "Total number of optimistic mutations rolled back",
		},
		[]string{"mutation"},
	)

	// Milestone badges awarded through the toggle chain.
	BadgeAwardCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_badge_award_count",
			Help: "Total number of milestone badges awarded",
		},
		[]string{"milestone"},
	)

	// Full-collection refreshes after a mutation settles.
	StoreRefreshCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_store_refresh_count",
			Help: "Total number of store refreshes from the remote data service",
		},
		[]string{"status"},
	)
)

// RecordMutationLatency records one mutation settlement.
func RecordMutationLatency(mutation, outcome string, duration time.Duration) {
	MutationLatency.WithLabelValues(mutation, outcome).Observe(float64(duration.Milliseconds()))
}

// RecordRemoteCallLatency records one remote data service call.
func RecordRemoteCallLatency(operation, status string, duration time.Duration) {
	RemoteCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration records one inbound HTTP request.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementRollback counts a rollback for the given mutation kind.
func IncrementRollback(mutation string) {
	RollbackCount.WithLabelValues(mutation).Inc()
}

// IncrementBadgeAward counts an awarded milestone badge.
func IncrementBadgeAward(milestone string) {
	BadgeAwardCount.WithLabelValues(milestone).Inc()
}

// IncrementStoreRefresh counts a refresh attempt by status.
func IncrementStoreRefresh(status string) {
	StoreRefreshCount.WithLabelValues(status).Inc()
}
