// Package stage defines the pipeline stage contract and the two built-in
// stages: the broker, which turns player text into candidate command text,
// and the interpreter, which validates and resolves that text.
//
// A stage never touches mailbox files itself. It receives a claimed
// envelope and answers with an Outcome: envelopes to forward plus the
// terminal status for the original. The worker loop owns all mailbox I/O,
// so stages stay pure enough to test against fixtures.
package stage

import (
	"context"

	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

// Destination selects which mailbox a forwarded envelope lands in.
type Destination int

const (
	// DestinationPipeline keeps the envelope inside the stage pipeline
	// (broker and interpreter hops).
	DestinationPipeline Destination = iota
	// DestinationOutbound hands the envelope to downstream consumers.
	DestinationOutbound
)

// Forward is one envelope a stage wants appended after its work settles.
type Forward struct {
	Env *envelope.MessageEnvelope
	To  Destination
}

// Outcome is the result of processing one claimed envelope.
//
// Final must be terminal: done when the claim was discharged (even by
// answering with an error envelope), error only for truly unrecoverable
// input. The worker appends Forwards, then settles the original.
type Outcome struct {
	Forwards []Forward
	Final    envelope.Status
}

// Stage is one pipeline position a worker loop instantiates.
type Stage interface {
	// Name is the stage label used in logs, metrics and spans.
	Name() string

	// Match reports whether this stage consumes the envelope. The worker
	// has already checked status and session; Match looks only at the
	// stage label.
	Match(env *envelope.MessageEnvelope) bool

	// Process performs the stage's unit of work. The returned error is
	// infrastructure failure only (store unavailable); domain failures are
	// expressed through the Outcome per the refinement protocol.
	Process(ctx context.Context, env *envelope.MessageEnvelope) (*Outcome, error)
}

func forwardDone(forwards ...Forward) *Outcome {
	return &Outcome{Forwards: forwards, Final: envelope.StatusDone}
}

func terminalError() *Outcome {
	return &Outcome{Final: envelope.StatusError}
}
