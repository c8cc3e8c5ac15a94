package store

import "errors"

// Common store errors. Implementations map database-level conditions
// (no rows, constraint violations) onto these sentinels so callers can
// branch with errors.Is without knowing the backend.
var (
	// ErrTaskNotFound indicates the requested document task does not exist.
	ErrTaskNotFound = errors.New("document task not found")

	// ErrBatchNotFound indicates the requested batch task does not exist.
	ErrBatchNotFound = errors.New("batch task not found")

	// ErrItemNotFound indicates the requested batch item does not exist.
	ErrItemNotFound = errors.New("batch item not found")

	// ErrDuplicate indicates an insert violated a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate row")
)
