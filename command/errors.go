package command

import (
	"fmt"
)

// Parse error codes. Machine-checkable; the message is for humans.
const (
	CodeEmptyLine         = "empty_command"
	CodeBadSubject        = "bad_subject"
	CodeVerbNotUppercase  = "verb_not_uppercase"
	CodeMissingParen      = "missing_paren"
	CodeUnexpectedToken   = "unexpected_token"
	CodeUnterminatedValue = "unterminated_value"
	CodeTrailingInput     = "trailing_input"
)

// Warning codes.
const (
	CodeDuplicateArgument = "duplicate_argument"
)

// Lint issue codes.
const (
	CodePositionalArgument = "positional_argument"
	CodeMissingRequiredArg = "missing_required_arg"
	CodeMalformedLine      = "malformed_line"
)

// ParseError is a grammar violation at a specific position.
type ParseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s at line %d col %d: %s", e.Code, e.Line, e.Column, e.Message)
}

// ParseWarning is a recoverable oddity that did not stop parsing.
type ParseWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// ValidationIssue is a local post-parse lint finding.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line"`
}

func (i ValidationIssue) Error() string {
	return fmt.Sprintf("%s at line %d: %s", i.Code, i.Line, i.Message)
}
