package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/list-to-entities/internal/entity"
)

// Logger defines the logging interface used by the Registry.
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

// Registry is the host entity registry: administrative records of every
// mirrored sensor, with an in-memory cache in front of the repository.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by every write. All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]Entry // Cached records by entity id
	cacheMu sync.RWMutex     // Protects cache
	logger  Logger
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]Entry),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all records from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entries, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading registry entries: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]Entry, len(entries))
	for _, e := range entries {
		r.cache[e.EntityID] = e
	}

	r.logger.Info("entity registry cache refreshed", "count", len(entries))
	return nil
}

// Register records a sensor owned by a config entry. Registering an
// existing unique id adopts the record (name and owner are refreshed).
func (r *Registry) Register(ctx context.Context, configEntryID string, s *entity.Sensor) error {
	entry := &Entry{
		EntityID:        s.EntityID,
		UniqueID:        s.UniqueID,
		ConfigEntryID:   configEntryID,
		Platform:        entity.Platform,
		WrappedEntityID: s.WrappedEntityID,
		UID:             s.UID,
		Name:            s.Name,
	}

	r.cacheMu.RLock()
	if cached, ok := r.cache[entry.EntityID]; ok && cached.UniqueID == entry.UniqueID {
		entry.CreatedAt = cached.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("registering %s: %w", s.EntityID, err)
	}

	r.cacheMu.Lock()
	r.cache[entry.EntityID] = *entry
	r.cacheMu.Unlock()

	r.logger.Debug("entity registered", "entity_id", entry.EntityID, "config_entry_id", configEntryID)
	return nil
}

// UpdateName sets the display name of a record.
// Returns ErrEntryNotFound if the entity is not registered.
func (r *Registry) UpdateName(ctx context.Context, entityID, name string) error {
	if err := r.repo.UpdateName(ctx, entityID, name); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			r.evict(entityID)
		}
		return fmt.Errorf("renaming %s: %w", entityID, err)
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[entityID]; ok {
		cached.Name = name
		r.cache[entityID] = cached
	}
	r.cacheMu.Unlock()
	return nil
}

// Remove deletes the record of an entity. Removing an unknown entity is
// not an error.
func (r *Registry) Remove(ctx context.Context, entityID string) error {
	err := r.repo.Delete(ctx, entityID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("removing %s: %w", entityID, err)
	}
	r.evict(entityID)

	if err != nil {
		r.logger.Debug("entity already absent from registry", "entity_id", entityID)
	}
	return nil
}

// RemoveByConfigEntry deletes every record of a config entry.
func (r *Registry) RemoveByConfigEntry(ctx context.Context, configEntryID string) (int, error) {
	n, err := r.repo.DeleteByConfigEntry(ctx, configEntryID)
	if err != nil {
		return 0, fmt.Errorf("removing records of %s: %w", configEntryID, err)
	}

	r.cacheMu.Lock()
	for id, e := range r.cache {
		if e.ConfigEntryID == configEntryID {
			delete(r.cache, id)
		}
	}
	r.cacheMu.Unlock()

	return n, nil
}

// Get returns the record of an entity.
// Returns ErrEntryNotFound if the entity is not registered.
func (r *Registry) Get(ctx context.Context, entityID string) (*Entry, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[entityID]
	r.cacheMu.RUnlock()
	if ok {
		return &cached, nil
	}

	entry, err := r.repo.GetByEntityID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[entityID] = *entry
	r.cacheMu.Unlock()

	return entry, nil
}

// ListByConfigEntry returns the records of a config entry sorted by
// entity id.
func (r *Registry) ListByConfigEntry(_ context.Context, configEntryID string) ([]Entry, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var entries []Entry
	for _, e := range r.cache {
		if e.ConfigEntryID == configEntryID {
			entries = append(entries, e)
		}
	}
	sortByEntityID(entries)
	return entries, nil
}

// List returns every record sorted by entity id.
func (r *Registry) List(_ context.Context) ([]Entry, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	entries := make([]Entry, 0, len(r.cache))
	for _, e := range r.cache {
		entries = append(entries, e)
	}
	sortByEntityID(entries)
	return entries, nil
}

// Count returns the number of cached records.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) evict(entityID string) {
	r.cacheMu.Lock()
	delete(r.cache, entityID)
	r.cacheMu.Unlock()
}

func sortByEntityID(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EntityID < entries[j].EntityID
	})
}
