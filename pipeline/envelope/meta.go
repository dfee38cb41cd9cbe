// Typed views over the envelope meta bag.
//
// The mailbox document keeps meta as an open key/value map so unknown keys
// survive round-trips between stages written in different processes. Inside
// this process, stages convert to and from these structs at their
// boundaries and never pass the raw map around.
package envelope

import (
	"github.com/hearthloom/wyrmhall/typeutil"
)

// Meta bag keys. Shared with every pipeline process, so these are wire
// contract, not internals.
const (
	metaKeySessionID      = "session_id"
	metaKeyErrorReason    = "error_reason"
	metaKeyErrors         = "errors"
	metaKeyErrorIteration = "error_iteration"
	metaKeyBandAid        = "band_aid"
	metaKeyWarnings       = "warnings"
	metaKeyNotes          = "notes"
	metaKeyResolved       = "resolved"
)

// ErrorEntry is the serialized form of one structured parse/resolve/lint
// failure carried in an error envelope.
type ErrorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e ErrorEntry) toMap() map[string]any {
	m := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Ref != "" {
		m["ref"] = e.Ref
	}
	if e.Line > 0 {
		m["line"] = e.Line
	}
	if e.Column > 0 {
		m["column"] = e.Column
	}
	return m
}

func errorEntryFromMap(m map[string]any) ErrorEntry {
	return ErrorEntry{
		Code:    typeutil.SafeStringDefault(m["code"], ""),
		Message: typeutil.SafeStringDefault(m["message"], ""),
		Ref:     typeutil.SafeStringDefault(m["ref"], ""),
		Line:    typeutil.SafeIntDefault(m["line"], 0),
		Column:  typeutil.SafeIntDefault(m["column"], 0),
	}
}

// =============================================================================
// SESSION META
// =============================================================================

// SessionMeta stamps an envelope with the producing process run.
type SessionMeta struct {
	SessionID string
}

// ApplyTo writes the session stamp into the meta bag.
func (m SessionMeta) ApplyTo(e *MessageEnvelope) {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[metaKeySessionID] = m.SessionID
}

// SessionMetaOf reads the session stamp; ok is false when absent.
func SessionMetaOf(e *MessageEnvelope) (SessionMeta, bool) {
	id, ok := typeutil.SafeString(e.Meta[metaKeySessionID])
	if !ok || id == "" {
		return SessionMeta{}, false
	}
	return SessionMeta{SessionID: id}, true
}

// =============================================================================
// INTERPRET META
// =============================================================================

// InterpretMeta rides on a successfully interpreted envelope: the resolved
// entity bindings plus any non-fatal notes (autocorrections, lint warnings).
type InterpretMeta struct {
	Warnings []string
	Notes    []string
	Resolved map[string]any
}

// ApplyTo writes the interpret payload into the meta bag.
func (m InterpretMeta) ApplyTo(e *MessageEnvelope) {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	if len(m.Warnings) > 0 {
		e.Meta[metaKeyWarnings] = m.Warnings
	}
	if len(m.Notes) > 0 {
		e.Meta[metaKeyNotes] = m.Notes
	}
	if len(m.Resolved) > 0 {
		e.Meta[metaKeyResolved] = m.Resolved
	}
}

// InterpretMetaOf reads the interpret payload, tolerating absent keys.
func InterpretMetaOf(e *MessageEnvelope) InterpretMeta {
	resolved, _ := typeutil.SafeMapStringAny(e.Meta[metaKeyResolved])
	return InterpretMeta{
		Warnings: typeutil.SafeStringSliceDefault(e.Meta[metaKeyWarnings], nil),
		Notes:    typeutil.SafeStringSliceDefault(e.Meta[metaKeyNotes], nil),
		Resolved: resolved,
	}
}

// =============================================================================
// RESOLVE ERROR META
// =============================================================================

// ResolveErrorMeta rides on an error envelope addressed back toward the
// producing stage. ErrorIteration is already clamped by the sender.
type ResolveErrorMeta struct {
	ErrorReason    string
	Errors         []ErrorEntry
	ErrorIteration int
}

// ApplyTo writes the error payload into the meta bag.
func (m ResolveErrorMeta) ApplyTo(e *MessageEnvelope) {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[metaKeyErrorReason] = m.ErrorReason
	e.Meta[metaKeyErrorIteration] = m.ErrorIteration
	entries := make([]any, 0, len(m.Errors))
	for _, entry := range m.Errors {
		entries = append(entries, entry.toMap())
	}
	e.Meta[metaKeyErrors] = entries
}

// ResolveErrorMetaOf reads the error payload; ok is false when the envelope
// carries no error_reason.
func ResolveErrorMetaOf(e *MessageEnvelope) (ResolveErrorMeta, bool) {
	reason, ok := typeutil.SafeString(e.Meta[metaKeyErrorReason])
	if !ok || reason == "" {
		return ResolveErrorMeta{}, false
	}
	meta := ResolveErrorMeta{
		ErrorReason:    reason,
		ErrorIteration: typeutil.SafeIntDefault(e.Meta[metaKeyErrorIteration], 0),
	}
	if raw, ok := typeutil.SafeSlice(e.Meta[metaKeyErrors]); ok {
		for _, item := range raw {
			if m, ok := typeutil.SafeMapStringAny(item); ok {
				meta.Errors = append(meta.Errors, errorEntryFromMap(m))
			}
		}
	}
	return meta, true
}

// =============================================================================
// DEGRADED META
// =============================================================================

// DegradedMeta flags a forced best-effort result emitted once the iteration
// limit is reached. Warnings is never empty on a degraded envelope.
type DegradedMeta struct {
	Warnings []string
	Notes    []string
	Resolved map[string]any
}

// ApplyTo writes the degraded payload into the meta bag.
func (m DegradedMeta) ApplyTo(e *MessageEnvelope) {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[metaKeyBandAid] = true
	e.Meta[metaKeyWarnings] = m.Warnings
	if len(m.Notes) > 0 {
		e.Meta[metaKeyNotes] = m.Notes
	}
	if len(m.Resolved) > 0 {
		e.Meta[metaKeyResolved] = m.Resolved
	}
}

// IsDegraded reports whether the envelope carries the band_aid flag.
func IsDegraded(e *MessageEnvelope) bool {
	return typeutil.SafeBoolDefault(e.Meta[metaKeyBandAid], false)
}

// DegradedMetaOf reads the degraded payload; ok is false when the envelope
// is not flagged.
func DegradedMetaOf(e *MessageEnvelope) (DegradedMeta, bool) {
	if !IsDegraded(e) {
		return DegradedMeta{}, false
	}
	resolved, _ := typeutil.SafeMapStringAny(e.Meta[metaKeyResolved])
	return DegradedMeta{
		Warnings: typeutil.SafeStringSliceDefault(e.Meta[metaKeyWarnings], nil),
		Notes:    typeutil.SafeStringSliceDefault(e.Meta[metaKeyNotes], nil),
		Resolved: resolved,
	}, true
}
