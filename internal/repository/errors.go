// Package repository defines the persistence gateway used by the services
// and its MySQL implementation.  The sentinel values below let higher
// layers tell failure scenarios apart without inspecting driver errors.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a unique constraint, such
// as a second library card for the same user and institution.  Handlers
// translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

// isDuplicate reports whether err is a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
