// Package kure holds the domain model shared by the backend, scanner, and
// agent binaries: entities, lifecycle rules, and the error taxonomy used to
// map domain failures onto HTTP responses.
package kure

import "fmt"

// Kind classifies an Error for the HTTP boundary. Every handler that can fail
// for a domain reason (as opposed to an infrastructure reason) returns an
// *Error with one of these kinds.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindUnauthorized      Kind = "unauthorized"
	KindRateLimited       Kind = "rate_limited"
	KindUpstream          Kind = "upstream"
	KindInternal          Kind = "internal"
)

// Error is a domain error carrying enough information to render an API
// response without the handler re-deriving the status code or message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a domain error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause to a domain error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ValidationError is a convenience constructor for the most common case.
func ValidationError(format string, args ...any) *Error {
	return NewError(KindValidation, fmt.Sprintf(format, args...))
}

// NotFoundError is a convenience constructor for missing-resource errors.
func NotFoundError(format string, args ...any) *Error {
	return NewError(KindNotFound, fmt.Sprintf(format, args...))
}

// InvalidTransitionError reports a status transition outside the allowed graph.
func InvalidTransitionError(from, to string) *Error {
	return NewError(KindInvalidTransition, fmt.Sprintf("cannot transition from %q to %q", from, to))
}
