package listsync

import (
	"context"
	"time"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/homeassistant"
	"github.com/nerrad567/list-to-entities/internal/registry"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

// EntityRegistry keeps the administrative record of every sensor.
// Implemented by *registry.Registry.
type EntityRegistry interface {
	Register(ctx context.Context, configEntryID string, s *entity.Sensor) error
	UpdateName(ctx context.Context, entityID, name string) error
	Remove(ctx context.Context, entityID string) error
	ListByConfigEntry(ctx context.Context, configEntryID string) ([]registry.Entry, error)
	RemoveByConfigEntry(ctx context.Context, configEntryID string) (int, error)
}

// Platform exposes sensors to Home Assistant.
// Implemented by *discovery.Platform.
type Platform interface {
	AddEntities(ctx context.Context, sensors []*entity.Sensor) error
	WriteState(ctx context.Context, s *entity.Sensor) error
	RemoveEntity(ctx context.Context, s *entity.Sensor) error
	RemoveRecord(ctx context.Context, e registry.Entry) error
}

// SnapshotFetcher reads the watched list.
// Implemented by *todo.Fetcher.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, watchedEntityID string) (todo.Snapshot, error)
	WaitForService(ctx context.Context, interval time.Duration) error
}

// EntryStore persists config entries.
// Implemented by *configentry.SQLiteRepository.
type EntryStore interface {
	Create(ctx context.Context, entry *configentry.Entry) error
	Get(ctx context.Context, id string) (*configentry.Entry, error)
	GetByWatchedEntity(ctx context.Context, entityID string) (*configentry.Entry, error)
	List(ctx context.Context) ([]configentry.Entry, error)
	Delete(ctx context.Context, id string) error
}

// StateLookup resolves the current state of a Home Assistant entity.
type StateLookup interface {
	GetState(ctx context.Context, entityID string) (*homeassistant.State, error)
}

// Subscription is an active event subscription.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// EventSource delivers Home Assistant bus events.
type EventSource interface {
	SubscribeEvents(ctx context.Context, eventType string, handler homeassistant.EventHandler) (Subscription, error)
}

// MetricsRecorder receives pass and setup results.
type MetricsRecorder interface {
	RecordPass(entryID, watchedEntityID string, result PassResult, err error)
	RecordSetup(entryID, watchedEntityID string, wait time.Duration, err error)
}

// Logger is the logging interface used by the package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) RecordPass(string, string, PassResult, error)     {}
func (noopMetrics) RecordSetup(string, string, time.Duration, error) {}
