package domain

import "fmt"

// MalformedInputError reports a violation of a dialect's structural grammar.
// The whole file is rejected; nothing is staged.
type MalformedInputError struct {
	Dialect string
	Line    int
	Offset  int64
	Message string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed %s input at line %d: %s", e.Dialect, e.Line, e.Message)
	}
	if e.Offset > 0 {
		return fmt.Sprintf("malformed %s input at offset %d: %s", e.Dialect, e.Offset, e.Message)
	}
	return fmt.Sprintf("malformed %s input: %s", e.Dialect, e.Message)
}

// ValidationError reports a required field missing or invalid on a staged
// record. The record is rejected before insert; the batch continues.
type ValidationError struct {
	Entity  string // "statement" or "transaction"
	ID      string // record identity for locating the source line
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message)
}

// LogicError reports an update that would change an immutable field on an
// already-posted record. It indicates the matching key was wrong and is
// surfaced, never auto-corrected.
type LogicError struct {
	Op      string
	Message string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// NotFoundError reports a referenced account, transaction, or pairing that
// does not exist.
type NotFoundError struct {
	Kind string // "account", "transaction", "statement", "pairing"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// InvalidArgumentError reports a programming-contract violation by the caller.
// Not recoverable by retry.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return e.Message
}

// ExternalSystemError wraps a failure from a collaborator (the ledger system
// or the partner directory). It triggers rollback of any open atomic boundary
// and preserves the original cause.
type ExternalSystemError struct {
	System string
	Op     string
	Err    error
}

func (e *ExternalSystemError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.System, e.Op, e.Err)
}

func (e *ExternalSystemError) Unwrap() error {
	return e.Err
}
