package registry

import "errors"

// Domain-specific errors for entity registry operations.
var (
	// ErrEntryNotFound is returned when no record exists for an entity id.
	ErrEntryNotFound = errors.New("registry: entry not found")

	// ErrEntityIDTaken is returned when an entity id is already registered
	// under a different unique id.
	ErrEntityIDTaken = errors.New("registry: entity id already registered")

	// ErrInvalidEntry is returned when a record is missing required fields.
	ErrInvalidEntry = errors.New("registry: invalid entry")
)
