// Package observability provides Prometheus metrics instrumentation for the
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// MAILBOX METRICS
// =============================================================================

var (
	envelopesAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wyrmhall_envelopes_appended_total",
			Help: "Total number of envelopes appended to stage mailboxes",
		},
		[]string{"stage"},
	)

	envelopesClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wyrmhall_envelopes_claimed_total",
			Help: "Total number of envelopes claimed by workers",
		},
		[]string{"stage"},
	)

	envelopesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wyrmhall_envelopes_completed_total",
			Help: "Total number of envelopes driven to a terminal status",
		},
		[]string{"stage", "status"}, // status: done, error
	)
)

// =============================================================================
// INTERPRETATION METRICS
// =============================================================================

var (
	parseRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wyrmhall_parse_rejections_total",
			Help: "Total number of command texts bounced back for re-generation",
		},
		[]string{"reason"}, // reason: parse_error, resolve_error
	)

	autocorrectAcceptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wyrmhall_autocorrect_accepts_total",
			Help: "Total number of fuzzy reference corrections applied",
		},
	)

	degradedResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wyrmhall_degraded_results_total",
			Help: "Total number of best-effort results forwarded at the refinement limit",
		},
	)
)

// =============================================================================
// WORKER METRICS
// =============================================================================

var (
	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wyrmhall_stage_duration_seconds",
			Help:    "Stage handling duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	completionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wyrmhall_completion_calls_total",
			Help: "Total number of text-generation backend calls",
		},
		[]string{"model", "status"}, // status: success, error
	)

	completionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wyrmhall_completion_duration_seconds",
			Help:    "Text-generation call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	orphanedEnvelopesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wyrmhall_orphaned_envelopes_total",
			Help: "Total number of prior-session envelopes failed during recovery",
		},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordEnvelopeAppended records an append to a stage mailbox.
func RecordEnvelopeAppended(stage string) {
	envelopesAppendedTotal.WithLabelValues(stage).Inc()
}

// RecordEnvelopeClaimed records a worker claiming an envelope.
func RecordEnvelopeClaimed(stage string) {
	envelopesClaimedTotal.WithLabelValues(stage).Inc()
}

// RecordEnvelopeCompleted records an envelope reaching a terminal status,
// along with how long the stage held it.
func RecordEnvelopeCompleted(stage string, status string, durationMS int) {
	envelopesCompletedTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordParseRejection records a command text bounced back for another pass.
func RecordParseRejection(reason string) {
	parseRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordAutocorrectAccept records an applied fuzzy reference correction.
func RecordAutocorrectAccept() {
	autocorrectAcceptsTotal.Inc()
}

// RecordDegradedResult records a best-effort result forwarded at the limit.
func RecordDegradedResult() {
	degradedResultsTotal.Inc()
}

// RecordCompletionCall records a text-generation backend call.
func RecordCompletionCall(model string, status string, durationMS int) {
	completionCallsTotal.WithLabelValues(model, status).Inc()
	completionDurationSeconds.WithLabelValues(model).Observe(float64(durationMS) / 1000.0)
}

// RecordOrphanedEnvelope records a prior-session envelope failed by recovery.
func RecordOrphanedEnvelope() {
	orphanedEnvelopesTotal.Inc()
}
