package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

// MessageStore is the abstract mailbox contract workers program against.
// The file-backed Store is the default implementation; a locked or brokered
// implementation can be swapped in without changing any caller.
type MessageStore interface {
	// Append inserts the envelope at the end of the mailbox.
	Append(env *envelope.MessageEnvelope) error

	// Claim finds the first envelope in file order with status sent that
	// matches pred and transitions it to processing. Only the first claimant
	// of a given envelope succeeds; ok is false when nothing matched.
	Claim(pred func(*envelope.MessageEnvelope) bool) (env *envelope.MessageEnvelope, ok bool, err error)

	// Complete settles a claimed envelope into a terminal status. The
	// optional mutate hook runs before the transition so a consumer can
	// attach result meta.
	Complete(id string, final envelope.Status, mutate func(*envelope.MessageEnvelope)) error
}

// Store is the file-backed mailbox. The mutex serializes writers within this
// process; cross-process coordination follows the single-writer-per-stage
// discipline described in the package comment.
type Store struct {
	path        string
	maxMessages int
	mu          sync.Mutex
}

var _ MessageStore = (*Store)(nil)

// NewStore creates a store for the mailbox file at path. maxMessages <= 0
// uses DefaultMaxMessages.
func NewStore(path string, maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Store{path: path, maxMessages: maxMessages}
}

// Path returns the mailbox file path.
func (s *Store) Path() string {
	return s.path
}

// EnsureExists creates an empty document if the file is absent.
func (s *Store) EnsureExists() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureExistsLocked()
}

func (s *Store) ensureExistsLocked() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat mailbox %s: %w", s.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create mailbox directory: %w", err)
	}
	return s.writeLocked(NewDocument())
}

// Read loads the whole document, creating an empty mailbox first if needed.
// It never fails on a missing file.
func (s *Store) Read() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() (*Document, error) {
	if err := s.ensureExistsLocked(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read mailbox %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptDocumentError{Path: s.path, Cause: err}
	}
	if doc.Messages == nil {
		doc.Messages = []*envelope.MessageEnvelope{}
	}
	return &doc, nil
}

// Write rewrites the whole document, pruning to the configured cap first.
func (s *Store) Write(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Prune(s.maxMessages)
	return s.writeLocked(doc)
}

// writeLocked rewrites through a temp file and rename so a concurrent reader
// never sees a partial document.
func (s *Store) writeLocked(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mailbox document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create mailbox temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write mailbox temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close mailbox temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace mailbox %s: %w", s.path, err)
	}
	return nil
}

// Append inserts the envelope at the end of the mailbox and prunes.
func (s *Store) Append(env *envelope.MessageEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, env.Clone())
	doc.Prune(s.maxMessages)
	return s.writeLocked(doc)
}

// UpdateByID loads the document, applies mutate to the matching envelope and
// rewrites the whole file. Returns ErrNotFound when the id is absent; an
// error from mutate aborts without writing.
func (s *Store) UpdateByID(id string, mutate func(*envelope.MessageEnvelope) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	target, found := doc.FindByID(id)
	if !found {
		return &NotFoundError{Path: s.path, ID: id}
	}
	if err := mutate(target); err != nil {
		return err
	}
	return s.writeLocked(doc)
}

// Claim implements MessageStore.
func (s *Store) Claim(pred func(*envelope.MessageEnvelope) bool) (*envelope.MessageEnvelope, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return nil, false, err
	}
	for _, m := range doc.Messages {
		if m.Status != envelope.StatusSent || !pred(m) {
			continue
		}
		if err := m.TransitionTo(envelope.StatusProcessing); err != nil {
			// Lost the claim between read and transition; treat as handled.
			continue
		}
		if err := s.writeLocked(doc); err != nil {
			return nil, false, err
		}
		return m.Clone(), true, nil
	}
	return nil, false, nil
}

// Complete implements MessageStore. The final status must be terminal.
func (s *Store) Complete(id string, final envelope.Status, mutate func(*envelope.MessageEnvelope)) error {
	if !final.IsTerminal() {
		return fmt.Errorf("complete requires a terminal status, got %s", final)
	}
	return s.UpdateByID(id, func(m *envelope.MessageEnvelope) error {
		if mutate != nil {
			mutate(m)
		}
		return m.TransitionTo(final)
	})
}
