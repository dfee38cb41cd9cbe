package worker

import (
	"context"

	"github.com/hearthloom/wyrmhall/eventbus"
	"github.com/hearthloom/wyrmhall/logging"
	"github.com/hearthloom/wyrmhall/mailbox"
	"github.com/hearthloom/wyrmhall/observability"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
	"github.com/hearthloom/wyrmhall/pipeline/session"
)

// orphanReason marks envelopes abandoned mid-flight by a previous run.
const orphanReason = "session_orphaned"

// SweepOrphans fails every envelope a previous session left in processing.
// Run once at worker startup, before the first tick: a fresh session will
// never claim those envelopes (the session filter excludes them), so
// without the sweep they would sit in processing forever.
//
// Returns how many envelopes were failed.
func SweepOrphans(ctx context.Context, store *mailbox.Store, reg *session.Registry, audit *mailbox.AuditLog, bus eventbus.Bus, log logging.Logger) (int, error) {
	if log == nil {
		log = logging.Nop()
	}
	doc, err := store.Read()
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, env := range doc.Messages {
		if env.Status != envelope.StatusProcessing {
			continue
		}
		if reg.IsCurrentSession(env) {
			continue
		}
		priorSession := ""
		if meta, ok := envelope.SessionMetaOf(env); ok {
			priorSession = meta.SessionID
		}
		err := store.UpdateByID(env.ID, func(m *envelope.MessageEnvelope) error {
			if m.Status != envelope.StatusProcessing {
				return nil
			}
			if m.Meta == nil {
				m.Meta = make(map[string]any)
			}
			m.Meta["error_reason"] = orphanReason
			return m.TransitionTo(envelope.StatusError)
		})
		if err != nil {
			return swept, err
		}
		swept++
		observability.RecordOrphanedEnvelope()
		log.Warn("orphaned envelope failed", "envelope", env.ID, "prior_session", priorSession)
		if audit != nil {
			settled := env.Clone()
			settled.Status = envelope.StatusError
			settled.Meta["error_reason"] = orphanReason
			if err := audit.Record(settled); err != nil {
				log.Warn("audit record failed", "envelope", env.ID, "error", err)
			}
		}
		if bus != nil {
			event := &eventbus.SessionOrphaned{EnvelopeID: env.ID, PriorSession: priorSession}
			if err := bus.Publish(ctx, event); err != nil {
				log.Warn("event publish failed", "envelope", env.ID, "error", err)
			}
		}
	}
	return swept, nil
}
