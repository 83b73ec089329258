// Package registry keeps the administrative record of every mirrored
// sensor: which config entry owns it, its unique id and display name.
//
// Records are stored in the entity_registry table and cached in memory.
// The live sensors themselves are not stored here; they are rebuilt from
// the list on every setup, and leftover records are cleaned up then.
package registry
