// Message definitions for the notification bus, organized by domain.
package eventbus

// MessageCategory represents message routing categories.
type MessageCategory string

// MessageCategoryEvent represents fire-and-forget, fan-out to all subscribers.
const MessageCategoryEvent MessageCategory = "event"

// =============================================================================
// ENVELOPE LIFECYCLE EVENTS
// =============================================================================

// EnvelopeAppended is emitted when an envelope lands in a stage mailbox.
// Subscribers: metrics, trace logging.
type EnvelopeAppended struct {
	Stage      string `json:"stage"`
	EnvelopeID string `json:"envelope_id"`
	SessionID  string `json:"session_id"`
}

// Category implements the Message interface.
func (m *EnvelopeAppended) Category() string { return string(MessageCategoryEvent) }

// EnvelopeClaimed is emitted when a worker takes ownership of an envelope.
type EnvelopeClaimed struct {
	Stage      string `json:"stage"`
	EnvelopeID string `json:"envelope_id"`
	SessionID  string `json:"session_id"`
}

// Category implements the Message interface.
func (m *EnvelopeClaimed) Category() string { return string(MessageCategoryEvent) }

// StageCompleted is emitted when a stage finishes handling an envelope,
// whatever the outcome.
type StageCompleted struct {
	Stage      string  `json:"stage"`
	EnvelopeID string  `json:"envelope_id"`
	Status     string  `json:"status"` // "done" or "error"
	DurationMS int     `json:"duration_ms"`
	Error      *string `json:"error,omitempty"`
}

// Category implements the Message interface.
func (m *StageCompleted) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// REFINEMENT EVENTS
// =============================================================================

// InterpretRejected is emitted when command text fails parsing or
// resolution and is bounced back for another pass.
type InterpretRejected struct {
	EnvelopeID string `json:"envelope_id"`
	Iteration  int    `json:"iteration"`
	Reason     string `json:"reason"`
	ErrorCount int    `json:"error_count"`
}

// Category implements the Message interface.
func (m *InterpretRejected) Category() string { return string(MessageCategoryEvent) }

// AutocorrectApplied is emitted when a fuzzy reference correction rewrites
// command text.
type AutocorrectApplied struct {
	EnvelopeID string `json:"envelope_id"`
	Note       string `json:"note"`
}

// Category implements the Message interface.
func (m *AutocorrectApplied) Category() string { return string(MessageCategoryEvent) }

// DegradedResult is emitted when the refinement budget runs out and a
// best-effort result is forwarded instead of another rejection.
type DegradedResult struct {
	EnvelopeID string `json:"envelope_id"`
	Iteration  int    `json:"iteration"`
}

// Category implements the Message interface.
func (m *DegradedResult) Category() string { return string(MessageCategoryEvent) }

// SessionOrphaned is emitted when recovery finds an envelope left
// processing by a previous run and fails it.
type SessionOrphaned struct {
	EnvelopeID   string `json:"envelope_id"`
	PriorSession string `json:"prior_session"`
}

// Category implements the Message interface.
func (m *SessionOrphaned) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// TYPE ROUTING
// =============================================================================

// TypedMessage lets a message override its routing type name.
type TypedMessage interface {
	Message
	MessageType() string
}

// GetMessageType returns the type name of a message for routing.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}
	switch msg.(type) {
	case *EnvelopeAppended:
		return "EnvelopeAppended"
	case *EnvelopeClaimed:
		return "EnvelopeClaimed"
	case *StageCompleted:
		return "StageCompleted"
	case *InterpretRejected:
		return "InterpretRejected"
	case *AutocorrectApplied:
		return "AutocorrectApplied"
	case *DegradedResult:
		return "DegradedResult"
	case *SessionOrphaned:
		return "SessionOrphaned"
	default:
		return "Unknown"
	}
}
