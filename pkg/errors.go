// Package pkg holds utilities shared across the node: domain errors and
// the JSON response envelope.
//
// The handler layer maps these sentinel errors to HTTP status codes;
// services return them (usually wrapped with fmt.Errorf and %w) and
// never touch net/http themselves.
package pkg

import "errors"

// Domain-level errors. Compare with errors.Is so wrapped errors match.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrTooLarge      = errors.New("payload too large")
	ErrRateLimited   = errors.New("rate limited")
	ErrInternal      = errors.New("internal error")

	// ErrAuthorityUnavailable marks a transport-level failure talking to the
	// external auth authority. Distinct from ErrUnauthorized: the token was
	// never evaluated.
	ErrAuthorityUnavailable = errors.New("auth authority unavailable")

	// ErrInvalidDatabase marks a store file that is corrupt and could not be
	// salvaged as a legacy JSON export. Fatal at boot.
	ErrInvalidDatabase = errors.New("invalid database file")
)
