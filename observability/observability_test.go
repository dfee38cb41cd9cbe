package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordMailboxMetrics(t *testing.T) {
	RecordEnvelopeAppended("interpreter")
	RecordEnvelopeClaimed("interpreter")
	RecordEnvelopeCompleted("interpreter", "done", 120)
	RecordEnvelopeCompleted("interpreter", "error", 40)

	assert.Greater(t, testutil.ToFloat64(envelopesAppendedTotal.WithLabelValues("interpreter")), 0.0)
	assert.Greater(t, testutil.ToFloat64(envelopesClaimedTotal.WithLabelValues("interpreter")), 0.0)
	assert.Greater(t, testutil.ToFloat64(envelopesCompletedTotal.WithLabelValues("interpreter", "done")), 0.0)
	assert.Greater(t, testutil.ToFloat64(envelopesCompletedTotal.WithLabelValues("interpreter", "error")), 0.0)
}

func TestRecordInterpretationMetrics(t *testing.T) {
	before := testutil.ToFloat64(autocorrectAcceptsTotal)
	RecordParseRejection("parse_error")
	RecordParseRejection("resolve_error")
	RecordAutocorrectAccept()
	RecordDegradedResult()

	assert.Greater(t, testutil.ToFloat64(parseRejectionsTotal.WithLabelValues("parse_error")), 0.0)
	assert.Greater(t, testutil.ToFloat64(parseRejectionsTotal.WithLabelValues("resolve_error")), 0.0)
	assert.Equal(t, before+1, testutil.ToFloat64(autocorrectAcceptsTotal))
	assert.Greater(t, testutil.ToFloat64(degradedResultsTotal), 0.0)
}

func TestRecordCompletionCall(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		status     string
		durationMS int
	}{
		{"successful call", "wyrm-large", "success", 2000},
		{"failed call", "wyrm-large", "error", 100},
		{"fast model", "wyrm-small", "success", 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordCompletionCall(tt.model, tt.status, tt.durationMS)
			count := testutil.ToFloat64(completionCallsTotal.WithLabelValues(tt.model, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestMetricsConcurrent(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	done := make(chan bool, goroutines)
	base := testutil.ToFloat64(envelopesCompletedTotal.WithLabelValues("concurrent", "done"))

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				RecordEnvelopeCompleted("concurrent", "done", 10)
				RecordCompletionCall("wyrm-large", "success", 100)
			}
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	count := testutil.ToFloat64(envelopesCompletedTotal.WithLabelValues("concurrent", "done"))
	assert.Equal(t, base+float64(goroutines*iterations), count)
}

// =============================================================================
// TRACING TESTS
// =============================================================================

func TestInitTracerRequiresEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracerConfig{ServiceName: "wyrmhall"})
	require.Error(t, err)
	assert.Nil(t, shutdown)
	assert.Contains(t, err.Error(), "collector endpoint")
}

func TestTracerConfigSampler(t *testing.T) {
	// Out-of-range ratios keep every trace.
	for _, ratio := range []float64{0, 1, -0.5, 2} {
		cfg := TracerConfig{SampleRatio: ratio}
		assert.Equal(t, "AlwaysOnSampler", cfg.sampler().Description(), "ratio %v", ratio)
	}
	cfg := TracerConfig{SampleRatio: 0.25}
	assert.Contains(t, cfg.sampler().Description(), "TraceIDRatioBased")
}
