package stage

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hearthloom/wyrmhall/command"
	"github.com/hearthloom/wyrmhall/logging"
	"github.com/hearthloom/wyrmhall/observability"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
	"github.com/hearthloom/wyrmhall/resolve"
	"github.com/hearthloom/wyrmhall/world"
)

var tracer = otel.Tracer("wyrmhall/stage")

// Stage label prefixes. These are wire contract shared with every pipeline
// process, like the meta bag keys.
const (
	StageUserInput   = "user_input"
	StageInterpreted = "interpreted"
	StageResolved    = "resolved"
	StageBrokerError = "broker_error"
)

// Interpreter validates candidate command text: normalize, parse, lint,
// resolve, with one fuzzy-correction retry for misspelled NPC references.
//
// Outcomes follow the refinement protocol: valid text forwards a resolved
// envelope outbound; recoverable failures bounce an error envelope back to
// the broker with an incremented iteration; at the iteration limit a
// degraded best-effort result goes forward instead of another error.
type Interpreter struct {
	resolver       *resolve.Resolver
	autocorrect    *resolve.Autocorrector
	iterationLimit int
	log            logging.Logger
}

var _ Stage = (*Interpreter)(nil)

// NewInterpreter creates an Interpreter over the given world store.
// iterationLimit <= 0 uses envelope.IterationLimit.
func NewInterpreter(store world.Store, iterationLimit int, log logging.Logger) *Interpreter {
	if iterationLimit <= 0 {
		iterationLimit = envelope.IterationLimit
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Interpreter{
		resolver:       resolve.New(store),
		autocorrect:    resolve.NewAutocorrector(store),
		iterationLimit: iterationLimit,
		log:            log,
	}
}

// Name implements Stage.
func (s *Interpreter) Name() string { return "interpreter" }

// Match implements Stage.
func (s *Interpreter) Match(env *envelope.MessageEnvelope) bool {
	return env.StageRef().Name == StageInterpreted
}

// Process implements Stage.
func (s *Interpreter) Process(ctx context.Context, env *envelope.MessageEnvelope) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "interpreter.process", trace.WithAttributes(
		attribute.String("envelope.id", env.ID),
		attribute.String("envelope.stage", env.Stage)))
	defer span.End()

	if strings.TrimSpace(env.Content) == "" {
		s.log.Warn("empty command text", "envelope", env.ID)
		return terminalError(), nil
	}

	ref := env.StageRef().Clamped(s.iterationLimit)
	text := command.Normalize(env.Content)
	parsed := command.Parse(text)
	if !parsed.OK() {
		aggressive := command.NormalizeAggressive(env.Content)
		if aggressive != text {
			if retry := command.Parse(aggressive); retry.OK() {
				text = aggressive
				parsed = retry
			}
		}
	}
	if !parsed.OK() {
		observability.RecordParseRejection("parse_error")
		return s.failOrDegrade(ctx, env, ref, "parse_error", parseErrorEntries(parsed.Errors), nil)
	}

	if issues := command.Lint(parsed.Commands); len(issues) > 0 {
		observability.RecordParseRejection("validation_error")
		return s.failOrDegrade(ctx, env, ref, "validation_error", lintEntries(issues), parsed.Commands)
	}

	result, err := s.resolver.Resolve(ctx, parsed.Commands, false)
	if err != nil {
		return nil, err
	}

	var notes []string
	if !result.OK() {
		text, parsed, result, notes = s.tryAutocorrect(ctx, env, text, parsed, result)
	}
	if !result.OK() {
		observability.RecordParseRejection("resolve_error")
		return s.failOrDegrade(ctx, env, ref, "resolve_error", resolveErrorEntries(result.Errors), parsed.Commands)
	}

	out := envelope.New(s.Name(), text,
		envelope.StageRef{Name: StageResolved, Iteration: ref.Iteration},
		envelope.WithReplyTo(env.ID),
		envelope.WithCorrelationID(env.CorrelationID),
		envelope.WithConversation(env.ConversationID, env.TurnNumber, env.Role),
	)
	envelope.InterpretMeta{
		Warnings: warningStrings(parsed.Warnings),
		Notes:    notes,
		Resolved: bindingsMap(result.Resolved),
	}.ApplyTo(out)
	return forwardDone(Forward{Env: out, To: DestinationOutbound}), nil
}

// tryAutocorrect attempts one fuzzy-correction pass for npc_not_found
// failures. It rewrites the text, re-parses and re-resolves exactly once;
// when the corrected text still fails, the original failure stands.
func (s *Interpreter) tryAutocorrect(ctx context.Context, env *envelope.MessageEnvelope, text string, parsed command.Result, result *resolve.Result) (string, command.Result, *resolve.Result, []string) {
	missing := result.FailuresWithReason(resolve.ReasonNPCNotFound)
	if len(missing) == 0 {
		return text, parsed, result, nil
	}

	region := s.spatialContext(result)
	rewritten := text
	var notes []string
	for _, failure := range missing {
		token := npcToken(failure.Ref)
		if token == "" {
			continue
		}
		corr, ok, err := s.autocorrect.SuggestNPC(ctx, token, region)
		if err != nil {
			s.log.Warn("autocorrect lookup failed", "token", token, "error", err)
			continue
		}
		if !ok {
			continue
		}
		rewritten = resolve.RewriteNPCRef(rewritten, corr.Old, corr.New)
		notes = append(notes, corr.Note())
	}
	if len(notes) == 0 {
		return text, parsed, result, nil
	}

	reparsed := command.Parse(rewritten)
	if !reparsed.OK() {
		return text, parsed, result, nil
	}
	reresolved, err := s.resolver.Resolve(ctx, reparsed.Commands, false)
	if err != nil || !reresolved.OK() {
		return text, parsed, result, nil
	}
	observability.RecordAutocorrectAccept()
	s.log.Info("autocorrect applied", "envelope", env.ID, "notes", strings.Join(notes, ","))
	return rewritten, reparsed, reresolved, notes
}

// spatialContext derives the requester's region from any already-resolved
// actor binding, so nearby NPCs are preferred as correction candidates.
func (s *Interpreter) spatialContext(result *resolve.Result) *world.RegionCoord {
	for _, binding := range result.Resolved {
		if binding.Kind != "actor" {
			continue
		}
		if actor, ok := binding.Entity.(*world.Actor); ok {
			region := actor.Location.Region()
			return &region
		}
	}
	return nil
}

// failOrDegrade routes a recoverable failure: below the limit it bounces an
// error envelope back to the broker; at the limit it forces a flagged
// best-effort result using representative bindings.
func (s *Interpreter) failOrDegrade(ctx context.Context, env *envelope.MessageEnvelope, ref envelope.StageRef, reason string, entries []envelope.ErrorEntry, commands []command.CommandNode) (*Outcome, error) {
	if !ref.AtLimit(s.iterationLimit) {
		next := ref.Next(StageBrokerError, s.iterationLimit)
		out := envelope.New(s.Name(), env.Content,
			next,
			envelope.WithReplyTo(env.ID),
			envelope.WithCorrelationID(env.CorrelationID),
			envelope.WithConversation(env.ConversationID, env.TurnNumber, env.Role),
		)
		envelope.ResolveErrorMeta{
			ErrorReason:    reason,
			Errors:         entries,
			ErrorIteration: next.Iteration,
		}.ApplyTo(out)
		return forwardDone(Forward{Env: out, To: DestinationPipeline}), nil
	}

	// Budget exhausted: forward what we have, flagged, never another error.
	resolved := map[string]any{}
	if len(commands) > 0 {
		result, err := s.resolver.Resolve(ctx, commands, true)
		if err != nil {
			return nil, err
		}
		resolved = bindingsMap(result.Resolved)
	}
	warnings := make([]string, 0, len(entries)+1)
	warnings = append(warnings, fmt.Sprintf("refinement limit reached after %d attempts (%s)", ref.Iteration, reason))
	for _, entry := range entries {
		warnings = append(warnings, entry.Code+": "+entry.Message)
	}

	out := envelope.New(s.Name(), env.Content,
		envelope.StageRef{Name: StageResolved, Iteration: ref.Iteration},
		envelope.WithReplyTo(env.ID),
		envelope.WithCorrelationID(env.CorrelationID),
		envelope.WithConversation(env.ConversationID, env.TurnNumber, env.Role),
	)
	envelope.DegradedMeta{
		Warnings: warnings,
		Resolved: resolved,
	}.ApplyTo(out)
	observability.RecordDegradedResult()
	s.log.Warn("degraded result forwarded", "envelope", env.ID, "iteration", ref.Iteration, "reason", reason)
	return forwardDone(Forward{Env: out, To: DestinationOutbound}), nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func parseErrorEntries(errs []command.ParseError) []envelope.ErrorEntry {
	entries := make([]envelope.ErrorEntry, 0, len(errs))
	for _, e := range errs {
		entries = append(entries, envelope.ErrorEntry{
			Code:    e.Code,
			Message: e.Message,
			Line:    e.Line,
			Column:  e.Column,
		})
	}
	return entries
}

func lintEntries(issues []command.ValidationIssue) []envelope.ErrorEntry {
	entries := make([]envelope.ErrorEntry, 0, len(issues))
	for _, issue := range issues {
		entries = append(entries, envelope.ErrorEntry{
			Code:    issue.Code,
			Message: issue.Message,
			Line:    issue.Line,
		})
	}
	return entries
}

func resolveErrorEntries(errs []resolve.ResolveError) []envelope.ErrorEntry {
	entries := make([]envelope.ErrorEntry, 0, len(errs))
	for _, e := range errs {
		entries = append(entries, envelope.ErrorEntry{
			Code:    string(e.Reason),
			Message: e.Error(),
			Ref:     e.Ref,
		})
	}
	return entries
}

func warningStrings(warnings []command.ParseWarning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.Code+": "+w.Message)
	}
	return out
}

// bindingsMap converts resolved bindings into the meta bag shape. The
// live entity record stays out of the mailbox; downstream consumers look
// entities up themselves.
func bindingsMap(resolved map[string]resolve.Binding) map[string]any {
	out := make(map[string]any, len(resolved))
	for ref, binding := range resolved {
		entry := map[string]any{
			"kind": binding.Kind,
			"id":   binding.ID,
			"name": binding.Name,
		}
		if binding.Path != "" {
			entry["path"] = binding.Path
		}
		if binding.Representative {
			entry["representative"] = true
		}
		out[ref] = entry
	}
	return out
}

// npcToken extracts the id token from an npc reference.
func npcToken(ref string) string {
	segments := strings.Split(ref, ".")
	if len(segments) < 2 || segments[0] != "npc" {
		return ""
	}
	return segments[1]
}
