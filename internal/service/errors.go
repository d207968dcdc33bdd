// Package service holds the governance workflows: elections, votes, data
// access requests, role changes and library cards.  Every exported
// operation returns either nil or an *Error whose Kind tells the HTTP
// layer which status to answer with.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/dac-governance/internal/repository"
)

// Kind classifies a service failure.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindForbidden
	KindConflict
	// KindNotModified reports a no-op such as granting a role the user
	// already holds.
	KindNotModified
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindBadRequest:
		return "bad request"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotModified:
		return "not modified"
	default:
		return "internal"
	}
}

// Error is a classified failure.  Msg is safe to show to clients; Err is
// the underlying cause and is never shown.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func badRequest(format string, args ...interface{}) error {
	return newError(KindBadRequest, format, args...)
}

func forbidden(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args...)
}

func notModified(format string, args ...interface{}) error {
	return newError(KindNotModified, format, args...)
}

// storeErr classifies a persistence error.  what names the entity for the
// client message.
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Msg: what + " not found", Err: err}
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrEmailExists):
		return &Error{Kind: KindConflict, Msg: what + " already exists", Err: err}
	}
	return &Error{Kind: KindInternal, Msg: "internal error", Err: err}
}

// KindOf returns the kind of err.  Unclassified errors are internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrEmailExists):
		return KindConflict
	}
	return KindInternal
}

// Message returns the client-facing text of err.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Kind != KindInternal {
		return se.Msg
	}
	return KindOf(err).String()
}
