package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures so the transport layer can map
// them to a response without string matching.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindAuthorization ErrorKind = "AUTHORIZATION"
	KindSequence      ErrorKind = "SEQUENCE"
	KindConflict      ErrorKind = "CONFLICT"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindTransient     ErrorKind = "TRANSIENT"
)

// WorkflowError carries a kind and a human-readable reason. Sentinels below
// are WorkflowErrors, so errors.Is works on both the sentinel and its kind.
type WorkflowError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// Is matches another WorkflowError with the same kind and reason, which is
// how the sentinel values compare.
func (e *WorkflowError) Is(target error) bool {
	var other *WorkflowError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Reason == other.Reason
}

var (
	ErrWorkflowNotFound     = &WorkflowError{Kind: KindNotFound, Reason: "workflow definition not found"}
	ErrInstanceNotFound     = &WorkflowError{Kind: KindNotFound, Reason: "publishing instance not found"}
	ErrConflictNotFound     = &WorkflowError{Kind: KindNotFound, Reason: "conflict not found"}
	ErrSessionNotFound      = &WorkflowError{Kind: KindNotFound, Reason: "collaborative session not found"}
	ErrDocumentNotFound     = &WorkflowError{Kind: KindNotFound, Reason: "document not found"}
	ErrNotAuthorized        = &WorkflowError{Kind: KindAuthorization, Reason: "principal is not authorized for this step"}
	ErrNotParticipant       = &WorkflowError{Kind: KindAuthorization, Reason: "principal is not a session participant"}
	ErrNotLockOwner         = &WorkflowError{Kind: KindAuthorization, Reason: "lock is held by another participant"}
	ErrOutOfSequence        = &WorkflowError{Kind: KindSequence, Reason: "operation is out of sequence for the instance"}
	ErrInstanceTerminal     = &WorkflowError{Kind: KindSequence, Reason: "instance is in a terminal state"}
	ErrStaleInstance        = &WorkflowError{Kind: KindSequence, Reason: "instance was modified concurrently"}
	ErrLocked               = &WorkflowError{Kind: KindConflict, Reason: "document is locked by another participant"}
	ErrActiveInstanceExists = &WorkflowError{Kind: KindConflict, Reason: "document already has an active publishing instance"}
	ErrConflictUnresolved   = &WorkflowError{Kind: KindConflict, Reason: "conflict is still unresolved"}
)

// Validationf builds a VALIDATION error from a format string.
func Validationf(format string, args ...any) error {
	return &WorkflowError{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, or KindTransient for plain errors.
func KindOf(err error) ErrorKind {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindTransient
}
