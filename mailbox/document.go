// Package mailbox implements the durable file mailboxes that pipeline
// processes coordinate through. A mailbox is a single JSON document holding
// an ordered list of message envelopes; every write rewrites the whole
// document through a temp file and an atomic rename, so readers never
// observe a torn file.
//
// Cross-process discipline: each mailbox file has exactly one consuming
// stage, which performs claims and completions; every other process only
// appends. There is no file locking - the single-writer-per-stage invariant
// plus rename atomicity is the concurrency model, and two processes
// appending in the same instant can still lose one append (accepted
// tradeoff, inherited from the protocol this implements).
package mailbox

import (
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

// SchemaVersion is the mailbox document schema version.
const SchemaVersion = 1

// DefaultMaxMessages is the default prune cap per mailbox.
const DefaultMaxMessages = 200

// Document is the whole-file mailbox representation.
type Document struct {
	SchemaVersion int                         `json:"schema_version"`
	Messages      []*envelope.MessageEnvelope `json:"messages"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		Messages:      []*envelope.MessageEnvelope{},
	}
}

// FindByID returns the envelope with the given id, in place.
func (d *Document) FindByID(id string) (*envelope.MessageEnvelope, bool) {
	for _, m := range d.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Prune keeps at most max entries, privileging active (sent/processing)
// envelopes: actives are never dropped in favor of settled ones, and within
// each class the most recent entries win. File order of the survivors is
// preserved.
func (d *Document) Prune(max int) {
	if max <= 0 || len(d.Messages) <= max {
		return
	}

	keep := make(map[int]bool, max)
	active := 0
	for i, m := range d.Messages {
		if m.Status.IsActive() {
			active++
			keep[i] = true
		}
	}
	// Actives may exceed max on their own; drop the oldest actives then.
	if active > max {
		excess := active - max
		for i := 0; i < len(d.Messages) && excess > 0; i++ {
			if keep[i] {
				delete(keep, i)
				excess--
			}
		}
	} else {
		// Fill remaining capacity with the most recent settled entries.
		budget := max - active
		for i := len(d.Messages) - 1; i >= 0 && budget > 0; i-- {
			if !keep[i] && !d.Messages[i].Status.IsActive() {
				keep[i] = true
				budget--
			}
		}
	}

	pruned := make([]*envelope.MessageEnvelope, 0, max)
	for i, m := range d.Messages {
		if keep[i] {
			pruned = append(pruned, m)
		}
	}
	d.Messages = pruned
}
