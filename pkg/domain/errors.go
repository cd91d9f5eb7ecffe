package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies recoverable core errors.
type ErrorKind string

// Error kinds.
const (
	KindInvalidTransition               ErrorKind = "InvalidTransition"
	KindAuthorization                   ErrorKind = "Authorization"
	KindUnapprovedLibraryVersion        ErrorKind = "UnapprovedLibraryVersion"
	KindMissingLibraryVersion           ErrorKind = "MissingLibraryVersion"
	KindIncompleteMilestonePrecondition ErrorKind = "IncompleteMilestonePrecondition"
	KindAmendmentChain                  ErrorKind = "AmendmentChain"
	KindConcurrencyConflict             ErrorKind = "ConcurrencyConflict"
	KindWorkflow                        ErrorKind = "Workflow"
	KindValidation                      ErrorKind = "Validation"
	KindNotFound                        ErrorKind = "NotFound"
	KindLocked                          ErrorKind = "Locked"
	KindInvalidState                    ErrorKind = "InvalidState"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidTransition               = &Error{Kind: KindInvalidTransition}
	ErrAuthorization                   = &Error{Kind: KindAuthorization}
	ErrUnapprovedLibraryVersion        = &Error{Kind: KindUnapprovedLibraryVersion}
	ErrMissingLibraryVersion           = &Error{Kind: KindMissingLibraryVersion}
	ErrIncompleteMilestonePrecondition = &Error{Kind: KindIncompleteMilestonePrecondition}
	ErrAmendmentChain                  = &Error{Kind: KindAmendmentChain}
	ErrConcurrencyConflict             = &Error{Kind: KindConcurrencyConflict}
	ErrWorkflow                        = &Error{Kind: KindWorkflow}
	ErrValidation                      = &Error{Kind: KindValidation}
	ErrNotFound                        = &Error{Kind: KindNotFound}
	ErrLocked                          = &Error{Kind: KindLocked}
	ErrInvalidState                    = &Error{Kind: KindInvalidState}
)

// Error is a structured, caller-recoverable error. Field names the offending
// input so callers can render an actionable message.
type Error struct {
	Kind       ErrorKind
	Op         string
	Field      string
	Entity     EntityType
	EntityID   string
	Role       Role
	Permission Permission
	Message    string
	Err        error
}

// NewError constructs an error of the supplied kind.
func NewError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WithField records the offending field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithEntity records the entity the error refers to.
func (e *Error) WithEntity(entity EntityType, id string) *Error {
	e.Entity = entity
	e.EntityID = id
	return e
}

// Wrap records an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var wf *WorkflowError
	var de *Error
	switch {
	case errors.As(err, &wf):
		if errors.As(wf.Err, &de) {
			return de.Kind
		}
		return KindWorkflow
	case errors.As(err, &de):
		return de.Kind
	}
	return ""
}

// AuthorizationError reports that role lacks permission.
func AuthorizationError(op string, role Role, perm Permission) *Error {
	return &Error{
		Kind:       KindAuthorization,
		Op:         op,
		Field:      "actor.role",
		Role:       role,
		Permission: perm,
		Message:    fmt.Sprintf("role %q may not %s", role, perm),
	}
}

// WorkflowError reports a failed milestone step. The wrapped error keeps its
// own kind so errors.Is works for both ErrWorkflow and the cause.
type WorkflowError struct {
	Step string
	From ProjectStatus
	To   ProjectStatus
	Err  error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %s -> %s failed at %s: %v", e.From, e.To, e.Step, e.Err)
}

// Unwrap returns the failing step's cause.
func (e *WorkflowError) Unwrap() error { return e.Err }

// Is matches ErrWorkflow.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindWorkflow
}
