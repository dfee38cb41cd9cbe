// Package envelope defines the MessageEnvelope - the persisted unit of work
// exchanged between pipeline stages through mailbox files.
//
// Envelopes move through a monotonic status machine:
//
//	queued -> sent -> processing -> (done | error)
//
// A transition to "processing" is the claim step and is idempotent-guarded:
// only the first claimant succeeds. Once done or error, an envelope is
// immutable.
//
// Stage position and retry count travel together as a StageRef; the
// "name_iteration" string (e.g. "interpreted_2") is a serialization detail
// of the mailbox document, not the in-memory model.
package envelope

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IterationLimit is the default clamp for refinement iterations. A stage
// whose next iteration would exceed the limit must emit a degraded result
// instead of another error, so every correlation thread terminates within
// IterationLimit+1 hops.
const IterationLimit = 5

// =============================================================================
// STATUS
// =============================================================================

// Status represents the lifecycle status of an envelope.
type Status string

const (
	// StatusQueued indicates an envelope created but not yet offered to a consumer.
	StatusQueued Status = "queued"
	// StatusSent indicates an envelope offered for consumption by its target stage.
	StatusSent Status = "sent"
	// StatusProcessing indicates an envelope claimed by a consumer.
	StatusProcessing Status = "processing"
	// StatusDone indicates an envelope fully handled. Handled, not necessarily
	// succeeded: a consumer that answered with an error envelope still marks
	// the original done.
	StatusDone Status = "done"
	// StatusError indicates a terminal failure (empty or unrecoverable input).
	StatusError Status = "error"
)

// StatusFromString parses a status string.
func StatusFromString(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusQueued:
		return StatusQueued, nil
	case StatusSent:
		return StatusSent, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusDone:
		return StatusDone, nil
	case StatusError:
		return StatusError, nil
	default:
		return "", fmt.Errorf("invalid envelope status '%s'. Must be one of: queued, sent, processing, done, error", value)
	}
}

// IsTerminal returns true for done and error.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// IsActive returns true for statuses that pruning must privilege.
func (s Status) IsActive() bool {
	return s == StatusSent || s == StatusProcessing
}

// rank orders statuses along the one-directional machine.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusSent:
		return 1
	case StatusProcessing:
		return 2
	case StatusDone, StatusError:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether s -> next is a legal forward transition.
// Transitions are monotonic; terminal statuses admit nothing.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// =============================================================================
// STAGE REFERENCE
// =============================================================================

// StageRef is the structured form of a pipeline stage label. The mailbox
// serialization is "name_iteration" ("interpreted_2", "broker_error_1");
// iteration 0 serializes as the bare name.
type StageRef struct {
	Name      string
	Iteration int
}

// ParseStageRef splits a serialized stage label into name and iteration.
// A label without a trailing numeral has iteration 0.
func ParseStageRef(label string) StageRef {
	idx := strings.LastIndex(label, "_")
	if idx < 0 || idx == len(label)-1 {
		return StageRef{Name: label}
	}
	n, err := strconv.Atoi(label[idx+1:])
	if err != nil || n < 0 {
		return StageRef{Name: label}
	}
	return StageRef{Name: label[:idx], Iteration: n}
}

// String serializes the stage reference for the mailbox document.
func (r StageRef) String() string {
	if r.Iteration <= 0 {
		return r.Name
	}
	return r.Name + "_" + strconv.Itoa(r.Iteration)
}

// Next returns the reference for the following hop, clamped to limit.
func (r StageRef) Next(name string, limit int) StageRef {
	n := r.Iteration + 1
	if limit > 0 && n > limit {
		n = limit
	}
	return StageRef{Name: name, Iteration: n}
}

// AtLimit reports whether the next hop would exceed the iteration limit,
// which obliges the stage to degrade instead of erroring again.
func (r StageRef) AtLimit(limit int) bool {
	return limit > 0 && r.Iteration+1 > limit
}

// Clamped returns a copy with the iteration clamped to limit.
func (r StageRef) Clamped(limit int) StageRef {
	if limit > 0 && r.Iteration > limit {
		return StageRef{Name: r.Name, Iteration: limit}
	}
	return r
}

// =============================================================================
// MESSAGE ENVELOPE
// =============================================================================

// MessageEnvelope is the unit of work carried through mailbox files.
//
// ID is assigned at creation and never reused. Meta is the open key/value bag
// carrying stage-specific payload; see meta.go for the typed views converted
// at stage boundaries.
type MessageEnvelope struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`

	Status Status `json:"status"`
	Stage  string `json:"stage"`

	ReplyTo       string `json:"reply_to,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// Narrative-thread metadata, opaque to the core.
	ConversationID string `json:"conversation_id,omitempty"`
	TurnNumber     int    `json:"turn_number,omitempty"`
	Role           string `json:"role,omitempty"`

	Meta map[string]any `json:"meta,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Option configures a new envelope.
type Option func(*MessageEnvelope)

// WithType sets the optional classifier ("user_input", ...).
func WithType(t string) Option {
	return func(e *MessageEnvelope) { e.Type = t }
}

// WithReplyTo sets the id of the envelope this responds to.
func WithReplyTo(id string) Option {
	return func(e *MessageEnvelope) { e.ReplyTo = id }
}

// WithCorrelationID groups the envelope into a refinement thread.
func WithCorrelationID(id string) Option {
	return func(e *MessageEnvelope) { e.CorrelationID = id }
}

// WithConversation sets the narrative-thread metadata.
func WithConversation(conversationID string, turn int, role string) Option {
	return func(e *MessageEnvelope) {
		e.ConversationID = conversationID
		e.TurnNumber = turn
		e.Role = role
	}
}

// WithMeta merges keys into the meta bag.
func WithMeta(meta map[string]any) Option {
	return func(e *MessageEnvelope) {
		for k, v := range meta {
			e.Meta[k] = v
		}
	}
}

// New creates an envelope in status queued.
func New(sender, content string, stage StageRef, opts ...Option) *MessageEnvelope {
	e := &MessageEnvelope{
		ID:            "msg_" + uuid.New().String()[:16],
		Sender:        sender,
		Content:       content,
		Status:        StatusQueued,
		Stage:         stage.String(),
		CorrelationID: "cor_" + uuid.New().String()[:16],
		Meta:          make(map[string]any),
		CreatedAt:     time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StageRef returns the structured stage reference.
func (e *MessageEnvelope) StageRef() StageRef {
	return ParseStageRef(e.Stage)
}

// SetStage replaces the stage label.
func (e *MessageEnvelope) SetStage(r StageRef) {
	e.Stage = r.String()
}

// TransitionTo advances the status machine. Illegal (backward, repeated, or
// from-terminal) transitions return an error and leave the envelope
// untouched.
func (e *MessageEnvelope) TransitionTo(next Status) error {
	if !e.Status.CanTransitionTo(next) {
		return &TransitionError{ID: e.ID, From: e.Status, To: next}
	}
	e.Status = next
	return nil
}

// Clone returns a deep copy. Mailbox reads hand out clones so callers cannot
// mutate the store's view in place.
func (e *MessageEnvelope) Clone() *MessageEnvelope {
	dup := *e
	dup.Meta = make(map[string]any, len(e.Meta))
	for k, v := range e.Meta {
		dup.Meta[k] = v
	}
	return &dup
}

// TransitionError reports an illegal status transition.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("envelope %s: illegal status transition %s -> %s", e.ID, e.From, e.To)
}
