// Package errs defines the structured error taxonomy shared by every core
// component (spec §7): a fixed set of error kinds plus a *Error type carrying
// a human message and the underlying cause, so callers can both pattern match
// on Kind and unwrap to inspect what actually failed.
package errs

import "fmt"

// Kind is one of the error kinds the core can surface to a session caller.
type Kind string

const (
	InvalidInput     Kind = "InvalidInput"
	UnknownEntity    Kind = "UnknownEntity"
	CapacityExceeded Kind = "CapacityExceeded"
	Conflict         Kind = "Conflict"
	BranchLimit      Kind = "BranchLimit"
	ResourceExhausted Kind = "ResourceExhausted"
	ModelUnavailable Kind = "ModelUnavailable"
	Timeout          Kind = "Timeout"
	Cancelled        Kind = "Cancelled"
	Schema           Kind = "Schema"
	Internal         Kind = "Internal"
)

// Error is a structured error carrying a kind, a message, and an optional
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a structured error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind. It matches the
// common pattern `if errs.Is(err, errs.UnknownEntity) { ... }` used across
// the Orchestrator's phase error handling.
func Is(err error, kind Kind) bool {
	var e *Error
	if asError(err, &e) {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
