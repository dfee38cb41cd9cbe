package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hearthloom/wyrmhall/completion"
	"github.com/hearthloom/wyrmhall/logging"
	"github.com/hearthloom/wyrmhall/observability"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

// Broker turns player text into candidate command text through the
// text-completion backend, and re-prompts when the interpreter bounces an
// error envelope back.
//
// Completion failures are recoverable under the refinement protocol: the
// broker addresses an error envelope to itself and retries next hop; at the
// iteration limit it forwards the raw player text as-is, flagged, so the
// thread still terminates.
type Broker struct {
	completer      completion.Completer
	model          string
	options        map[string]any
	iterationLimit int
	log            logging.Logger
}

var _ Stage = (*Broker)(nil)

// NewBroker creates a Broker using the given completion backend.
// iterationLimit <= 0 uses envelope.IterationLimit.
func NewBroker(completer completion.Completer, model string, iterationLimit int, log logging.Logger) *Broker {
	if iterationLimit <= 0 {
		iterationLimit = envelope.IterationLimit
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Broker{
		completer:      completer,
		model:          model,
		iterationLimit: iterationLimit,
		log:            log,
	}
}

// Name implements Stage.
func (s *Broker) Name() string { return "broker" }

// Match implements Stage.
func (s *Broker) Match(env *envelope.MessageEnvelope) bool {
	name := env.StageRef().Name
	return name == StageUserInput || name == StageBrokerError
}

// Process implements Stage.
func (s *Broker) Process(ctx context.Context, env *envelope.MessageEnvelope) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "broker.process", trace.WithAttributes(
		attribute.String("envelope.id", env.ID),
		attribute.String("envelope.stage", env.Stage)))
	defer span.End()

	if strings.TrimSpace(env.Content) == "" {
		s.log.Warn("empty player text", "envelope", env.ID)
		return terminalError(), nil
	}

	ref := env.StageRef().Clamped(s.iterationLimit)
	prompt := s.buildPrompt(env)

	started := time.Now()
	text, err := s.completer.Complete(ctx, s.model, prompt, s.options)
	durationMS := int(time.Since(started).Milliseconds())
	if err != nil {
		observability.RecordCompletionCall(s.model, "error", durationMS)
		s.log.Warn("completion failed", "envelope", env.ID, "error", err)
		return s.completionFailure(env, ref, err), nil
	}
	observability.RecordCompletionCall(s.model, "success", durationMS)

	// A fresh player request starts a new attempt; a bounced error already
	// names the attempt it wants (error_iteration), so the re-prompt keeps
	// the same iteration rather than skipping one.
	next := ref.Next(StageInterpreted, s.iterationLimit)
	if ref.Name == StageBrokerError {
		next = envelope.StageRef{Name: StageInterpreted, Iteration: ref.Iteration}.Clamped(s.iterationLimit)
	}
	out := envelope.New(s.Name(), strings.TrimSpace(text),
		next,
		envelope.WithType("candidate_command"),
		envelope.WithReplyTo(env.ID),
		envelope.WithCorrelationID(env.CorrelationID),
		envelope.WithConversation(env.ConversationID, env.TurnNumber, env.Role),
	)
	return forwardDone(Forward{Env: out, To: DestinationPipeline}), nil
}

// completionFailure bounces a self-addressed error envelope, or at the
// limit forwards the raw text to the interpreter as a last resort.
func (s *Broker) completionFailure(env *envelope.MessageEnvelope, ref envelope.StageRef, cause error) *Outcome {
	if !ref.AtLimit(s.iterationLimit) {
		next := ref.Next(StageBrokerError, s.iterationLimit)
		out := envelope.New(s.Name(), env.Content,
			next,
			envelope.WithReplyTo(env.ID),
			envelope.WithCorrelationID(env.CorrelationID),
			envelope.WithConversation(env.ConversationID, env.TurnNumber, env.Role),
		)
		envelope.ResolveErrorMeta{
			ErrorReason:    "completion_error",
			Errors:         []envelope.ErrorEntry{{Code: "completion_error", Message: cause.Error()}},
			ErrorIteration: next.Iteration,
		}.ApplyTo(out)
		return forwardDone(Forward{Env: out, To: DestinationPipeline})
	}

	out := envelope.New(s.Name(), env.Content,
		envelope.StageRef{Name: StageInterpreted, Iteration: ref.Iteration},
		envelope.WithType("candidate_command"),
		envelope.WithReplyTo(env.ID),
		envelope.WithCorrelationID(env.CorrelationID),
		envelope.WithConversation(env.ConversationID, env.TurnNumber, env.Role),
	)
	envelope.DegradedMeta{
		Warnings: []string{fmt.Sprintf("completion backend unavailable after %d attempts: %v", ref.Iteration, cause)},
	}.ApplyTo(out)
	observability.RecordDegradedResult()
	return forwardDone(Forward{Env: out, To: DestinationPipeline})
}

// buildPrompt assembles the generation prompt. Error envelopes carry the
// interpreter's structured error list so the backend can correct itself.
func (s *Broker) buildPrompt(env *envelope.MessageEnvelope) string {
	var b strings.Builder
	b.WriteString("Translate the player's intent into game commands, one per line,\n")
	b.WriteString("in the form subject.VERB(name=value, ...).\n\n")

	if meta, ok := envelope.ResolveErrorMetaOf(env); ok {
		b.WriteString("The previous attempt was rejected (" + meta.ErrorReason + "):\n")
		for _, entry := range meta.Errors {
			b.WriteString("  - " + entry.Code + ": " + entry.Message + "\n")
		}
		b.WriteString("Produce a corrected version.\n\n")
	}

	b.WriteString(env.Content)
	return b.String()
}
