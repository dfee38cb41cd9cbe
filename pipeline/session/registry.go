// Package session scopes pipeline work to a single process run. Every
// envelope a worker produces is stamped with the run's session id; a
// restarted worker then ignores orphaned entries left mid-flight by a prior
// run instead of reprocessing or crashing on them.
package session

import (
	"github.com/google/uuid"

	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

// Registry holds the process-local session identity plus the same-run
// filter. Construct one per worker instance so tests can reset it freely.
type Registry struct {
	id string
}

// NewRegistry generates a fresh session id.
func NewRegistry() *Registry {
	return &Registry{id: "sess_" + uuid.New().String()[:16]}
}

// NewRegistryWithID builds a registry around a fixed id, for tests and for
// processes resuming under an externally assigned identity.
func NewRegistryWithID(id string) *Registry {
	return &Registry{id: id}
}

// ID returns the session identifier.
func (r *Registry) ID() string {
	return r.id
}

// Stamp writes the session id into the envelope's meta.
func (r *Registry) Stamp(e *envelope.MessageEnvelope) {
	envelope.SessionMeta{SessionID: r.id}.ApplyTo(e)
}

// IsCurrentSession reports whether the envelope was stamped by this run.
// Unstamped envelopes are never current.
func (r *Registry) IsCurrentSession(e *envelope.MessageEnvelope) bool {
	meta, ok := envelope.SessionMetaOf(e)
	return ok && meta.SessionID == r.id
}
