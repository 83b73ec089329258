package configentry

import "errors"

// Domain-specific errors for config entry operations.
var (
	// ErrNotFound is returned when a config entry does not exist.
	ErrNotFound = errors.New("configentry: not found")

	// ErrAlreadyConfigured is returned when the watched list already has
	// a config entry.
	ErrAlreadyConfigured = errors.New("configentry: list already configured")

	// ErrInvalidEntityID is returned when the watched entity id is not a
	// valid todo entity id.
	ErrInvalidEntityID = errors.New("configentry: invalid todo entity id")
)
