package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementListSync = "list_sync"
	measurementSetup    = "list_sync_setup"
)

// PassMetric describes one reconciliation pass of one watched list.
type PassMetric struct {
	EntryID         string
	WatchedEntityID string
	Items           int
	Created         int
	Updated         int
	Deleted         int
	Degraded        bool
	Failed          bool
	Duration        time.Duration
	Time            time.Time
}

// WritePass records a reconciliation pass.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WritePass(influxdb.PassMetric{
//	    EntryID: id, WatchedEntityID: "todo.groceries",
//	    Items: 2, Created: 2, Duration: 40 * time.Millisecond,
//	})
func (c *Client) WritePass(m PassMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(passPoint(m))
}

// WriteSetup records how long an instance took to become ready, including
// the wait for the todo service.
func (c *Client) WriteSetup(entryID, watchedEntityID string, wait time.Duration, ok bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		measurementSetup,
		map[string]string{
			"entry_id":  entryID,
			"entity_id": watchedEntityID,
		},
		map[string]any{
			"wait_ms": wait.Milliseconds(),
			"ok":      ok,
		},
		time.Now(),
	))
}

// passPoint converts a PassMetric into a line-protocol point.
// Tags stay low-cardinality: one series per configured list.
func passPoint(m PassMetric) *write.Point {
	ts := m.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		measurementListSync,
		map[string]string{
			"entry_id":  m.EntryID,
			"entity_id": m.WatchedEntityID,
		},
		map[string]any{
			"items":       m.Items,
			"created":     m.Created,
			"updated":     m.Updated,
			"deleted":     m.Deleted,
			"degraded":    m.Degraded,
			"failed":      m.Failed,
			"duration_ms": float64(m.Duration.Microseconds()) / 1000,
		},
		ts,
	)
}
