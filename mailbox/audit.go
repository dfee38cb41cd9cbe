package mailbox

import (
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

// AuditLog is an append-only mailbox that receives copies of completed
// envelopes. It shares the document format with ordinary mailboxes but is
// never pruned.
type AuditLog struct {
	store *Store
}

// NewAuditLog creates an audit log at path.
func NewAuditLog(path string) *AuditLog {
	// A zero prune cap is not representable through the Store constructor,
	// so use a cap no realistic save slot reaches.
	return &AuditLog{store: NewStore(path, 1<<31-1)}
}

// Record appends a copy of the envelope to the audit log.
func (a *AuditLog) Record(env *envelope.MessageEnvelope) error {
	return a.store.Append(env)
}

// Read loads the full audit history.
func (a *AuditLog) Read() (*Document, error) {
	return a.store.Read()
}

// Path returns the audit log file path.
func (a *AuditLog) Path() string {
	return a.store.Path()
}
