// Package apperr defines the error kinds surfaced by the API. Services
// return these; the HTTP layer maps each kind to a status code and a
// JSON body with a single message field.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	// Validation marks malformed or missing input.
	Validation Kind = iota + 1
	// Authentication marks bad credentials.
	Authentication
	// Authorization marks an acting user that does not own the resource.
	Authorization
	// NotFound marks a missing record.
	NotFound
	// Conflict marks a uniqueness violation, e.g. a duplicate email.
	Conflict
	// Dependency marks a database, object-store, or filesystem failure.
	Dependency
)

// Error carries a kind, a user-facing message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error that records err as the cause. The cause is
// kept for logs and unwrapping; only Message is shown to callers.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// MessageOf reports the user-facing message of err. Errors without a
// kind fall back to a generic message so raw dependency errors never
// leak to clients.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation, Authentication, Conflict:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
