package registry

import (
	"fmt"
	"time"
)

// Entry is the administrative record of one mirrored sensor.
//
// The record outlives a single run of the service: on setup, records of
// a config entry whose uid is no longer in the list are cleaned up.
type Entry struct {
	EntityID        string    `json:"entity_id"`
	UniqueID        string    `json:"unique_id"`
	ConfigEntryID   string    `json:"config_entry_id"`
	Platform        string    `json:"platform"`
	WrappedEntityID string    `json:"wrapped_entity_id"`
	UID             string    `json:"uid"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the required fields.
func (e *Entry) Validate() error {
	switch {
	case e.EntityID == "":
		return fmt.Errorf("%w: entity_id is required", ErrInvalidEntry)
	case e.UniqueID == "":
		return fmt.Errorf("%w: unique_id is required", ErrInvalidEntry)
	case e.ConfigEntryID == "":
		return fmt.Errorf("%w: config_entry_id is required", ErrInvalidEntry)
	case e.UID == "":
		return fmt.Errorf("%w: uid is required", ErrInvalidEntry)
	}
	return nil
}
