package mailbox

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an envelope id is not present in a mailbox.
var ErrNotFound = errors.New("envelope not found")

// ErrCorruptDocument is returned when a mailbox file cannot be decoded.
var ErrCorruptDocument = errors.New("corrupt mailbox document")

// NotFoundError carries the missing id alongside ErrNotFound.
type NotFoundError struct {
	Path string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("envelope %s not found in %s", e.ID, e.Path)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CorruptDocumentError carries the path and decode cause alongside
// ErrCorruptDocument.
type CorruptDocumentError struct {
	Path  string
	Cause error
}

func (e *CorruptDocumentError) Error() string {
	return fmt.Sprintf("corrupt mailbox document at %s: %v", e.Path, e.Cause)
}

func (e *CorruptDocumentError) Is(target error) bool {
	return target == ErrCorruptDocument
}

func (e *CorruptDocumentError) Unwrap() error {
	return e.Cause
}
