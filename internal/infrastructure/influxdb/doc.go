// Package influxdb provides InfluxDB connectivity for the list sync service.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing and health monitoring.
//
// # Measurements
//
//   - list_sync: one point per reconciliation pass (items, created, updated,
//     deleted, degraded, failed, duration_ms), tagged by entry_id and entity_id
//   - list_sync_setup: time spent waiting for todo.get_items during setup
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; write errors
// are delivered through SetOnError.
package influxdb
