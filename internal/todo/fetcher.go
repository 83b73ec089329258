package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/list-to-entities/internal/homeassistant"
)

// Service coordinates of the list read.
const (
	Domain          = "todo"
	ServiceGetItems = "get_items"
)

// DefaultPollInterval is how often WaitForService checks for todo.get_items.
const DefaultPollInterval = time.Second

// ServiceCaller is the subset of the Home Assistant client the fetcher uses.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, target *homeassistant.Target, data map[string]any, returnResponse bool) (json.RawMessage, error)
	HasService(ctx context.Context, domain, service string) (bool, error)
}

// Logger is the logging interface used by the fetcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Fetcher reads list snapshots through todo.get_items.
type Fetcher struct {
	caller ServiceCaller
	logger Logger
}

// NewFetcher creates a fetcher. A nil logger discards output.
func NewFetcher(caller ServiceCaller, logger Logger) *Fetcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Fetcher{caller: caller, logger: logger}
}

// Fetch returns the current items of the watched list.
//
// A failed call is returned as an error. A response that arrives but
// cannot be understood yields an empty, Degraded snapshot and no error.
func (f *Fetcher) Fetch(ctx context.Context, watchedEntityID string) (Snapshot, error) {
	raw, err := f.caller.CallService(ctx, Domain, ServiceGetItems,
		&homeassistant.Target{EntityID: []string{watchedEntityID}}, nil, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching %s: %w", watchedEntityID, err)
	}

	snap := ParseItemsResponse(raw, watchedEntityID)
	if snap.Degraded {
		f.logger.Warn("todo.get_items response not understood, treating list as empty",
			"entity_id", watchedEntityID,
		)
	}
	return snap, nil
}

// WaitForService blocks until todo.get_items is registered or ctx ends.
// Lookup errors are treated as "not yet available".
func (f *Fetcher) WaitForService(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logged := false
	for {
		ok, err := f.caller.HasService(ctx, Domain, ServiceGetItems)
		switch {
		case err != nil:
			f.logger.Debug("service lookup failed, retrying", "service", Domain+"."+ServiceGetItems, "error", err)
		case ok:
			return nil
		case !logged:
			f.logger.Info("waiting for service to register", "service", Domain+"."+ServiceGetItems)
			logged = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ParseItemsResponse normalises a todo.get_items response:
//
//	{"todo.groceries": {"items": [{"uid": "1", "summary": "Milk", ...}]}}
//
// Anything that does not have this shape degrades to an empty snapshot.
// Non-object items are skipped and fields of the wrong type are absent.
func ParseItemsResponse(raw json.RawMessage, watchedEntityID string) Snapshot {
	degraded := Snapshot{Degraded: true}

	if len(raw) == 0 {
		return degraded
	}

	var byEntity map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byEntity); err != nil || byEntity == nil {
		return degraded
	}

	entry, ok := byEntity[watchedEntityID]
	if !ok {
		return degraded
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(entry, &record); err != nil || record == nil {
		return degraded
	}

	itemsRaw, ok := record["items"]
	if !ok {
		return degraded
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(itemsRaw, &elements); err != nil || elements == nil {
		return degraded
	}

	items := make([]Item, 0, len(elements))
	for _, element := range elements {
		var fields map[string]any
		if err := json.Unmarshal(element, &fields); err != nil || fields == nil {
			continue
		}
		uid, _ := fields["uid"].(string)
		items = append(items, Item{
			UID:         uid,
			Summary:     stringField(fields, "summary"),
			Status:      stringField(fields, "status"),
			Description: stringField(fields, "description"),
			Due:         stringField(fields, "due"),
		})
	}

	return Snapshot{Items: items}
}

func stringField(fields map[string]any, key string) *string {
	s, ok := fields[key].(string)
	if !ok {
		return nil
	}
	return &s
}
