// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts requests served by the Work API.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// DemandsPublishedTotal counts publish attempts by outcome (success/failed).
	DemandsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demands_published_total",
			Help: "Total number of work demands the producer tried to publish.",
		},
		[]string{"status"},
	)

	// DeliveriesTotal counts deliveries taken from the queue by outcome.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of queue deliveries handled, by outcome (acked, malformed, ack_failed).",
		},
		[]string{"outcome"},
	)

	// ConsumerRunsTotal counts consumer invocations by final state (done/failed).
	ConsumerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_runs_total",
			Help: "Total number of consumer invocations, by final state.",
		},
		[]string{"state"},
	)

	// ConsumerStepFailuresTotal counts failed consumer steps.
	ConsumerStepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_step_failures_total",
			Help: "Total number of consumer lifecycle steps that failed.",
		},
		[]string{"step"},
	)

	// ComputeDuration observes how long the simulated computation took.
	ComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compute_duration_seconds",
			Help:    "Duration of the simulated computation.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	// IsLeader reports whether this node currently runs the producer schedule.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
