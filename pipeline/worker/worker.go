// Package worker runs the poll-claim-process-forward loop each pipeline
// stage instantiates. The worker owns all mailbox I/O: it claims matching
// envelopes, hands them to the stage, appends whatever the stage wants
// forwarded, and settles the original. Stages stay free of file concerns.
//
// Coordination discipline: one worker process per stage per save. Within a
// tick, candidates are processed sequentially so a process never races
// itself on a mailbox file.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hearthloom/wyrmhall/eventbus"
	"github.com/hearthloom/wyrmhall/logging"
	"github.com/hearthloom/wyrmhall/mailbox"
	"github.com/hearthloom/wyrmhall/observability"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
	"github.com/hearthloom/wyrmhall/pipeline/session"
	"github.com/hearthloom/wyrmhall/pipeline/stage"
	"github.com/hearthloom/wyrmhall/resolve"
)

// DefaultPollInterval is the inter-tick delay when none is configured.
const DefaultPollInterval = 250 * time.Millisecond

// Config wires a Worker's collaborators. Pipeline and Session are
// required; everything else is optional.
type Config struct {
	// Pipeline is the shared stage mailbox the worker claims from and
	// forwards internal hops into.
	Pipeline mailbox.MessageStore

	// Outbound receives envelopes addressed to downstream consumers.
	// Falls back to Pipeline when nil.
	Outbound mailbox.MessageStore

	// Audit receives copies of settled envelopes. Optional.
	Audit *mailbox.AuditLog

	// Session stamps outgoing envelopes and filters incoming ones.
	Session *session.Registry

	// Dedup guards against reprocessing within this process lifetime.
	// Defaults to a fresh cache.
	Dedup *session.DedupCache

	// Bus receives lifecycle events. Optional.
	Bus eventbus.Bus

	// Watcher wakes the loop early when the mailbox file changes. Optional.
	Watcher *mailbox.Watcher

	PollInterval time.Duration
	Log          logging.Logger
}

// Worker drives one stage against its mailboxes.
type Worker struct {
	stage    stage.Stage
	pipeline mailbox.MessageStore
	outbound mailbox.MessageStore
	audit    *mailbox.AuditLog
	session  *session.Registry
	dedup    *session.DedupCache
	bus      eventbus.Bus
	watcher  *mailbox.Watcher
	interval time.Duration
	log      logging.Logger
}

// New creates a Worker for the stage.
func New(st stage.Stage, cfg Config) (*Worker, error) {
	if st == nil {
		return nil, fmt.Errorf("worker requires a stage")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("worker %s requires a pipeline mailbox", st.Name())
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("worker %s requires a session registry", st.Name())
	}
	w := &Worker{
		stage:    st,
		pipeline: cfg.Pipeline,
		outbound: cfg.Outbound,
		audit:    cfg.Audit,
		session:  cfg.Session,
		dedup:    cfg.Dedup,
		bus:      cfg.Bus,
		watcher:  cfg.Watcher,
		interval: cfg.PollInterval,
		log:      cfg.Log,
	}
	if w.outbound == nil {
		w.outbound = w.pipeline
	}
	if w.dedup == nil {
		w.dedup = session.NewDedupCache(0)
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.log == nil {
		w.log = logging.Nop()
	}
	w.log = w.log.Bind("stage", st.Name(), "session", cfg.Session.ID())
	return w, nil
}

// Run polls until the context is canceled. Tick errors are logged, not
// fatal; the only exit is cancellation.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if w.watcher != nil {
		wake = w.watcher.Wake()
	}

	w.log.Info("worker started", "poll_interval", w.interval.String())
	for {
		if _, err := w.Tick(ctx); err != nil {
			w.log.Error("tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

// Tick drains this tick's candidates sequentially. Returns how many
// envelopes were handled.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	handled := 0
	for {
		env, ok, err := w.pipeline.Claim(func(m *envelope.MessageEnvelope) bool {
			return w.stage.Match(m) && w.session.IsCurrentSession(m) && !w.dedup.Contains(m.ID)
		})
		if err != nil {
			return handled, err
		}
		if !ok {
			return handled, nil
		}
		w.dedup.Seen(env.ID)
		if err := w.handle(ctx, env); err != nil {
			return handled, err
		}
		handled++
	}
}

// handle runs the stage over one claimed envelope and settles it. The
// claim is discharged no matter how processing went: done means handled.
func (w *Worker) handle(ctx context.Context, env *envelope.MessageEnvelope) error {
	started := time.Now()
	observability.RecordEnvelopeClaimed(w.stage.Name())
	w.publish(ctx, &eventbus.EnvelopeClaimed{
		Stage:      w.stage.Name(),
		EnvelopeID: env.ID,
		SessionID:  w.session.ID(),
	})

	var processErr *string
	outcome, err := w.stage.Process(ctx, env)
	if err != nil {
		// Infrastructure failure. Settle the claim as a terminal error so
		// the envelope cannot strand in processing.
		w.log.Error("stage processing failed", "envelope", env.ID, "error", err)
		msg := err.Error()
		processErr = &msg
		outcome = &stage.Outcome{Final: envelope.StatusError}
	}

	for _, fwd := range outcome.Forwards {
		if err := w.forward(ctx, fwd); err != nil {
			return err
		}
		w.announce(ctx, fwd.Env)
	}

	if err := w.pipeline.Complete(env.ID, outcome.Final, nil); err != nil {
		return fmt.Errorf("complete envelope %s: %w", env.ID, err)
	}

	durationMS := int(time.Since(started).Milliseconds())
	observability.RecordEnvelopeCompleted(w.stage.Name(), string(outcome.Final), durationMS)
	w.publish(ctx, &eventbus.StageCompleted{
		Stage:      w.stage.Name(),
		EnvelopeID: env.ID,
		Status:     string(outcome.Final),
		DurationMS: durationMS,
		Error:      processErr,
	})

	if w.audit != nil {
		settled := env.Clone()
		settled.Status = outcome.Final
		if err := w.audit.Record(settled); err != nil {
			w.log.Warn("audit record failed", "envelope", env.ID, "error", err)
		}
	}
	return nil
}

// forward stamps, offers and appends one outgoing envelope.
func (w *Worker) forward(ctx context.Context, fwd stage.Forward) error {
	out := fwd.Env
	w.session.Stamp(out)
	if out.Status == envelope.StatusQueued {
		if err := out.TransitionTo(envelope.StatusSent); err != nil {
			return err
		}
	}
	dest := w.pipeline
	if fwd.To == stage.DestinationOutbound {
		dest = w.outbound
	}
	if err := dest.Append(out); err != nil {
		return fmt.Errorf("append envelope %s: %w", out.ID, err)
	}
	observability.RecordEnvelopeAppended(out.StageRef().Name)
	w.publish(ctx, &eventbus.EnvelopeAppended{
		Stage:      out.StageRef().Name,
		EnvelopeID: out.ID,
		SessionID:  w.session.ID(),
	})
	return nil
}

// announce publishes the refinement events a forwarded envelope implies:
// a rejection bounce, a degraded result, an applied autocorrection.
func (w *Worker) announce(ctx context.Context, out *envelope.MessageEnvelope) {
	if meta, ok := envelope.ResolveErrorMetaOf(out); ok {
		w.publish(ctx, &eventbus.InterpretRejected{
			EnvelopeID: out.ID,
			Iteration:  meta.ErrorIteration,
			Reason:     meta.ErrorReason,
			ErrorCount: len(meta.Errors),
		})
		return
	}
	if envelope.IsDegraded(out) {
		w.publish(ctx, &eventbus.DegradedResult{
			EnvelopeID: out.ID,
			Iteration:  out.StageRef().Iteration,
		})
	}
	for _, note := range envelope.InterpretMetaOf(out).Notes {
		if strings.HasPrefix(note, resolve.AutocorrectNotePrefix) {
			w.publish(ctx, &eventbus.AutocorrectApplied{EnvelopeID: out.ID, Note: note})
		}
	}
}

func (w *Worker) publish(ctx context.Context, event eventbus.Message) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ctx, event); err != nil {
		w.log.Warn("event publish failed", "type", eventbus.GetMessageType(event), "error", err)
	}
}
