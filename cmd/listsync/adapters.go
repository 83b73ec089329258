package main

import (
	"context"
	"time"

	"github.com/nerrad567/list-to-entities/internal/homeassistant"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/influxdb"
	"github.com/nerrad567/list-to-entities/internal/listsync"
)

// eventSource adapts the Home Assistant client to listsync.EventSource.
// The only difference is the concrete subscription return type.
type eventSource struct {
	client *homeassistant.Client
}

// SubscribeEvents implements listsync.EventSource.
func (s eventSource) SubscribeEvents(ctx context.Context, eventType string, handler homeassistant.EventHandler) (listsync.Subscription, error) {
	sub, err := s.client.SubscribeEvents(ctx, eventType, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// influxRecorder writes pass and setup results to InfluxDB.
type influxRecorder struct {
	client *influxdb.Client
}

// RecordPass implements listsync.MetricsRecorder.
func (r influxRecorder) RecordPass(entryID, watchedEntityID string, result listsync.PassResult, err error) {
	r.client.WritePass(influxdb.PassMetric{
		EntryID:         entryID,
		WatchedEntityID: watchedEntityID,
		Items:           result.Items,
		Created:         result.Created,
		Updated:         result.Updated,
		Deleted:         result.Deleted,
		Degraded:        result.Degraded,
		Failed:          err != nil,
		Duration:        result.Duration,
		Time:            time.Now(),
	})
}

// RecordSetup implements listsync.MetricsRecorder.
func (r influxRecorder) RecordSetup(entryID, watchedEntityID string, wait time.Duration, err error) {
	r.client.WriteSetup(entryID, watchedEntityID, wait, err == nil)
}

// multiRecorder fans results out to several recorders.
type multiRecorder []listsync.MetricsRecorder

// RecordPass implements listsync.MetricsRecorder.
func (m multiRecorder) RecordPass(entryID, watchedEntityID string, result listsync.PassResult, err error) {
	for _, r := range m {
		r.RecordPass(entryID, watchedEntityID, result, err)
	}
}

// RecordSetup implements listsync.MetricsRecorder.
func (m multiRecorder) RecordSetup(entryID, watchedEntityID string, wait time.Duration, err error) {
	for _, r := range m {
		r.RecordSetup(entryID, watchedEntityID, wait, err)
	}
}
