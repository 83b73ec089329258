// Package listsync mirrors Home Assistant todo lists into one sensor per
// item and keeps them in sync.
//
// # Pipeline
//
//	event -> Router -> Debouncer -> Fetcher -> Reconciler -> registry + platform
//
// The Router filters state_changed and call_service events for watched
// lists. Each Instance owns a Debouncer that coalesces triggers into one
// pass at a time. A pass fetches the list and hands the snapshot to the
// Reconciler, which creates, updates and deletes sensors keyed by uid.
//
// # Failure policy
//
// A failed fetch aborts the pass and nothing is deleted. A response that
// arrives but cannot be parsed becomes an empty snapshot, so every sensor
// of the list is deleted; such passes are logged and reported as degraded.
//
// # Lifecycle
//
// The Manager sets up one Instance per config entry: it waits for the
// todo.get_items service, runs a first pass, and removes registry records
// of items that disappeared while the service was down. Unloading clears
// the instance's sensors; removal also deletes its records and entities.
package listsync
