// Package configentry stores the configured instances of the service.
//
// Each Entry watches exactly one todo list, selected by its entity id.
// Entries are persisted in the config_entries table; deleting an entry
// cascades to its entity registry records. An entry's State is runtime
// only and is tracked by the list sync manager.
package configentry
