// Package docerr defines the sentinel error kinds shared across the store,
// the replication path, and the HTTP layer. Every layer wraps these with
// fmt.Errorf("...: %w", ...) so callers can still recover the kind with
// errors.Is, the same pattern the teacher uses for client.ErrNotFound.
package docerr

import "errors"

var (
	// ErrNotFound is returned by a read miss. Inside a transaction this is
	// represented as an absent value, not surfaced as this error.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a CAS precondition, or a peer's
	// replication precondition, does not hold.
	ErrConflict = errors.New("conflict: revision mismatch")

	// ErrInvalidPayload is returned by replication-receiver validation.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnauthorized is returned by the bearer-auth middleware.
	ErrUnauthorized = errors.New("unauthorized")
)
