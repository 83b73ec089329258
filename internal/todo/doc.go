// Package todo reads Home Assistant todo lists.
//
// A Fetcher calls todo.get_items for one watched list and normalises the
// response into a Snapshot of Items. Normalisation never fails: a response
// of the wrong shape becomes an empty snapshot flagged Degraded, while a
// failed call is reported as an error so callers can skip the pass.
package todo
