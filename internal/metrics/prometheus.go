package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Submission metrics
	SubmissionsTotal    *prometheus.CounterVec
	SubmissionErrors    *prometheus.CounterVec
	RateLimitRejections prometheus.Counter
	IdempotencyHits     prometheus.Counter

	// Moderation metrics
	TransitionsTotal    *prometheus.CounterVec
	TransitionConflicts prometheus.Counter

	// Storage adapter metrics
	StoreOpsTotal    *prometheus.CounterVec
	StoreOpDuration  *prometheus.HistogramVec
	VersionConflicts prometheus.Counter
}

// NewMetrics creates Prometheus metrics registered on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates Prometheus metrics on the given registerer
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commentable_submissions_total",
				Help: "Total number of accepted comment submissions",
			},
			[]string{"status"},
		),

		SubmissionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commentable_submission_errors_total",
				Help: "Total number of rejected comment submissions",
			},
			[]string{"kind"},
		),

		RateLimitRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "commentable_ratelimit_rejections_total",
				Help: "Total number of submissions rejected by the rate limiter",
			},
		),

		IdempotencyHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "commentable_idempotency_hits_total",
				Help: "Total number of submissions resolved from an existing idempotency record",
			},
		),

		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commentable_moderation_transitions_total",
				Help: "Total number of applied moderation transitions",
			},
			[]string{"to"},
		),

		TransitionConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "commentable_moderation_conflicts_total",
				Help: "Total number of moderation version conflicts seen",
			},
		),

		StoreOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commentable_store_ops_total",
				Help: "Total number of storage adapter operations",
			},
			[]string{"op", "status"},
		),

		StoreOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commentable_store_op_duration_seconds",
				Help:    "Duration of storage adapter operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		VersionConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "commentable_store_version_conflicts_total",
				Help: "Total number of conditional writes that lost a race",
			},
		),
	}
}

// RecordSubmission records an accepted submission with its initial status
func (m *Metrics) RecordSubmission(status string) {
	m.SubmissionsTotal.WithLabelValues(status).Inc()
}

// RecordSubmissionError records a rejected submission by error kind
func (m *Metrics) RecordSubmissionError(kind string) {
	m.SubmissionErrors.WithLabelValues(kind).Inc()
}

// RecordTransition records an applied moderation transition
func (m *Metrics) RecordTransition(to string) {
	m.TransitionsTotal.WithLabelValues(to).Inc()
}

// RecordStoreOp records one storage adapter operation
func (m *Metrics) RecordStoreOp(op, status string, seconds float64) {
	m.StoreOpsTotal.WithLabelValues(op, status).Inc()
	m.StoreOpDuration.WithLabelValues(op).Observe(seconds)
}
