package listsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

// maxConcurrentSetups bounds how many instances set up at once.
const maxConcurrentSetups = 8

// ErrNotLoaded is returned for operations on a config entry with no
// running instance.
var ErrNotLoaded = errors.New("listsync: config entry not loaded")

// Options tunes the manager.
type Options struct {
	Delays       Delays
	PollInterval time.Duration

	// Seed lists watched entity ids to configure on Start when missing.
	Seed []string
}

// Deps holds the collaborators of a Manager.
type Deps struct {
	Entries  EntryStore
	Registry EntityRegistry
	Platform Platform
	Fetcher  SnapshotFetcher
	States   StateLookup
	Events   EventSource
	Metrics  MetricsRecorder
	Logger   Logger
	Options  Options
}

// Manager owns one Instance per config entry and drives its lifecycle:
// setup, event-driven passes, manual resync, unload and removal.
type Manager struct {
	entries    EntryStore
	registry   EntityRegistry
	platform   Platform
	fetcher    SnapshotFetcher
	states     StateLookup
	router     *Router
	reconciler *Reconciler
	metrics    MetricsRecorder
	logger     Logger
	opts       Options

	mu        sync.RWMutex
	instances map[string]*Instance
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates a manager. Entries, Registry, Platform, Fetcher,
// States and Events are required.
func NewManager(deps Deps) (*Manager, error) {
	switch {
	case deps.Entries == nil:
		return nil, errors.New("listsync: entry store is required")
	case deps.Registry == nil:
		return nil, errors.New("listsync: entity registry is required")
	case deps.Platform == nil:
		return nil, errors.New("listsync: platform is required")
	case deps.Fetcher == nil:
		return nil, errors.New("listsync: fetcher is required")
	case deps.States == nil:
		return nil, errors.New("listsync: state lookup is required")
	case deps.Events == nil:
		return nil, errors.New("listsync: event source is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	opts := deps.Options
	if opts.PollInterval <= 0 {
		opts.PollInterval = todo.DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		entries:    deps.Entries,
		registry:   deps.Registry,
		platform:   deps.Platform,
		fetcher:    deps.Fetcher,
		states:     deps.States,
		router:     NewRouter(deps.Events, opts.Delays, logger),
		reconciler: NewReconciler(deps.Registry, deps.Platform, logger),
		metrics:    metrics,
		logger:     logger,
		opts:       opts,
		instances:  make(map[string]*Instance),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start seeds configured lists, subscribes to events and sets up every
// config entry in the background. Setup waits for todo.get_items, so
// Start does not wait for instances to be loaded.
func (m *Manager) Start(ctx context.Context) error {
	m.seed(ctx)

	if err := m.router.Start(ctx); err != nil {
		return err
	}

	entries, err := m.entries.List(ctx)
	if err != nil {
		return fmt.Errorf("loading config entries: %w", err)
	}

	instances := make([]*Instance, 0, len(entries))
	for _, entry := range entries {
		if inst := m.load(entry); inst != nil {
			instances = append(instances, inst)
		}
	}
	go m.setupAll(instances)

	m.logger.Info("list sync manager started", "entries", len(entries))
	return nil
}

// seed creates config entries for configured lists that have none yet.
func (m *Manager) seed(ctx context.Context) {
	for _, watched := range m.opts.Seed {
		if _, err := m.entries.GetByWatchedEntity(ctx, watched); err == nil {
			continue
		}

		title := ""
		if state, err := m.states.GetState(ctx, watched); err == nil {
			title = state.FriendlyName()
		}
		entry := &configentry.Entry{
			Title:   title,
			Options: configentry.Options{EntityID: watched},
		}
		if err := m.entries.Create(ctx, entry); err != nil {
			m.logger.Warn("failed to seed config entry", "entity_id", watched, "error", err)
			continue
		}
		m.logger.Info("config entry seeded", "entity_id", watched, "config_entry_id", entry.ID)
	}
}

func (m *Manager) setupAll(instances []*Instance) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentSetups)

	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			defer m.wg.Done()
			return m.setup(inst)
		})
	}

	if err := g.Wait(); err != nil {
		m.logger.Warn("not every config entry was set up", "error", err)
	}
}

// load creates and registers the instance of entry. It returns nil when
// the entry is already loaded or the manager is stopping. A returned
// instance is counted in wg; its setup goroutine must call wg.Done.
func (m *Manager) load(entry configentry.Entry) *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return nil
	}
	if _, ok := m.instances[entry.ID]; ok {
		return nil
	}

	inst := newInstance(m.ctx, entry)
	inst.state = configentry.StateSetupInProgress
	inst.debouncer = NewDebouncer(func(ctx context.Context) {
		m.triggeredPass(ctx, inst)
	})
	m.instances[entry.ID] = inst
	m.wg.Add(1)
	return inst
}

// setup runs an instance up to loaded: wait for the todo service, route
// events, run the first pass and clean up stale records.
func (m *Manager) setup(inst *Instance) error {
	ctx := inst.ctx
	start := time.Now()
	log := []any{"config_entry_id", inst.entry.ID, "entity_id", inst.watched}

	inst.setState(configentry.StateNotReady)
	if err := m.fetcher.WaitForService(ctx, m.opts.PollInterval); err != nil {
		inst.setState(configentry.StateNotLoaded)
		return fmt.Errorf("waiting for %s.%s: %w", todo.Domain, todo.ServiceGetItems, err)
	}
	wait := time.Since(start)

	inst.setState(configentry.StateSetupInProgress)
	m.router.Register(inst.watched, inst.debouncer)

	result, removed, err := m.firstPass(ctx, inst)
	if removed > 0 {
		m.logger.Info("stale entities cleaned up", append(log, "removed", removed)...)
	}
	m.metrics.RecordSetup(inst.entry.ID, inst.watched, wait, err)

	if err != nil {
		if ctx.Err() != nil {
			inst.setState(configentry.StateNotLoaded)
			return ctx.Err()
		}
		inst.setState(configentry.StateSetupError)
		m.logger.Error("config entry setup failed", append(log, "error", err)...)
		return fmt.Errorf("setting up %s: %w", inst.entry.ID, err)
	}

	inst.setState(configentry.StateLoaded)
	m.logger.Info("config entry loaded", append(log, "entities", result.Created, "wait", wait)...)
	return nil
}

// firstPass runs the setup pass and, in the same critical section,
// removes records left over from items that no longer exist.
func (m *Manager) firstPass(ctx context.Context, inst *Instance) (PassResult, int, error) {
	inst.passMu.Lock()
	defer inst.passMu.Unlock()

	result, err := m.passLocked(ctx, inst)
	if err != nil {
		return result, 0, err
	}
	removed, err := m.reconciler.CleanupStale(ctx, inst)
	return result, removed, err
}

// pass fetches the watched list and reconciles it under the pass lock.
func (m *Manager) pass(ctx context.Context, inst *Instance) (PassResult, error) {
	inst.passMu.Lock()
	defer inst.passMu.Unlock()
	return m.passLocked(ctx, inst)
}

func (m *Manager) passLocked(ctx context.Context, inst *Instance) (PassResult, error) {
	if err := ctx.Err(); err != nil {
		return PassResult{}, err
	}

	snap, err := m.fetcher.Fetch(ctx, inst.watched)
	var result PassResult
	if err == nil {
		result, err = m.reconciler.Apply(ctx, inst, snap)
	}

	inst.recordPass(result, err)
	m.metrics.RecordPass(inst.entry.ID, inst.watched, result, err)

	if err != nil {
		return result, err
	}
	if result.Degraded {
		m.logger.Warn("list response degraded to empty",
			"config_entry_id", inst.entry.ID,
			"entity_id", inst.watched,
			"deleted", result.Deleted,
		)
	}
	m.logger.Debug("reconciliation pass complete",
		"config_entry_id", inst.entry.ID,
		"items", result.Items,
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"duration", result.Duration,
	)
	return result, nil
}

// triggeredPass is the debouncer callback.
func (m *Manager) triggeredPass(ctx context.Context, inst *Instance) {
	if _, err := m.pass(ctx, inst); err != nil && ctx.Err() == nil {
		m.logger.Error("reconciliation pass failed",
			"config_entry_id", inst.entry.ID,
			"entity_id", inst.watched,
			"error", err,
		)
	}
}

// Add configures a new watched list (the config flow) and sets it up in
// the background.
//
// Returns configentry.ErrInvalidEntityID for ids outside the todo domain,
// configentry.ErrAlreadyConfigured for duplicates, and the lookup error
// when Home Assistant does not know the entity.
func (m *Manager) Add(ctx context.Context, watchedEntityID string) (*configentry.Entry, error) {
	if err := configentry.ValidateWatchedEntityID(watchedEntityID); err != nil {
		return nil, err
	}
	if _, err := m.entries.GetByWatchedEntity(ctx, watchedEntityID); err == nil {
		return nil, fmt.Errorf("%w: %s", configentry.ErrAlreadyConfigured, watchedEntityID)
	} else if !errors.Is(err, configentry.ErrNotFound) {
		return nil, err
	}

	state, err := m.states.GetState(ctx, watchedEntityID)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", watchedEntityID, err)
	}

	entry := &configentry.Entry{
		Title:   state.FriendlyName(),
		Options: configentry.Options{EntityID: watchedEntityID},
	}
	if err := m.entries.Create(ctx, entry); err != nil {
		return nil, err
	}
	m.logger.Info("config entry created", "config_entry_id", entry.ID, "entity_id", watchedEntityID, "title", entry.Title)

	if inst := m.load(*entry); inst != nil {
		go func() {
			defer m.wg.Done()
			//nolint:errcheck // setup logs and records its own failures
			m.setup(inst)
		}()
	}

	entry.State = m.stateOf(entry.ID)
	return entry, nil
}

// Unload stops the instance of a config entry and clears its sensors.
// Registry records and published entities are kept.
func (m *Manager) Unload(entryID string) error {
	m.mu.Lock()
	inst, ok := m.instances[entryID]
	delete(m.instances, entryID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}

	m.unload(inst)
	return nil
}

func (m *Manager) unload(inst *Instance) {
	m.router.Unregister(inst.watched)
	inst.cancel()
	inst.debouncer.Stop()

	// Wait for a direct pass (setup or resync) still holding the lock.
	inst.passMu.Lock()
	inst.clearSlot()
	inst.passMu.Unlock()

	inst.setState(configentry.StateNotLoaded)
	m.logger.Info("config entry unloaded", "config_entry_id", inst.entry.ID)
}

// Remove unloads a config entry, removes its entities and records, and
// deletes it.
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	if _, err := m.entries.Get(ctx, entryID); err != nil {
		return err
	}

	if err := m.Unload(entryID); err != nil && !errors.Is(err, ErrNotLoaded) {
		return err
	}

	records, err := m.registry.ListByConfigEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("listing records of %s: %w", entryID, err)
	}
	for _, rec := range records {
		if err := m.platform.RemoveRecord(ctx, rec); err != nil {
			return fmt.Errorf("removing %s: %w", rec.EntityID, err)
		}
	}
	if _, err := m.registry.RemoveByConfigEntry(ctx, entryID); err != nil {
		return fmt.Errorf("removing records of %s: %w", entryID, err)
	}

	if err := m.entries.Delete(ctx, entryID); err != nil {
		return err
	}
	m.logger.Info("config entry removed", "config_entry_id", entryID, "entities", len(records))
	return nil
}

// Resync schedules an immediate pass for a config entry.
func (m *Manager) Resync(entryID string) error {
	inst, ok := m.instance(entryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}
	inst.debouncer.Trigger(0)
	return nil
}

// ResyncAll schedules an immediate pass for every instance. Called after
// the Home Assistant connection is restored, since events may have been
// missed.
func (m *Manager) ResyncAll() {
	for _, inst := range m.snapshot() {
		if inst.State() == configentry.StateLoaded {
			inst.debouncer.Trigger(0)
		}
	}
}

// Republish announces every live sensor again, e.g. after Home Assistant
// restarted and lost its MQTT entities.
func (m *Manager) Republish(ctx context.Context) {
	for _, inst := range m.snapshot() {
		inst.passMu.Lock()
		sensors := inst.live()
		err := m.platform.AddEntities(ctx, sensors)
		inst.passMu.Unlock()

		if err != nil {
			m.logger.Error("republishing entities failed", "config_entry_id", inst.entry.ID, "error", err)
			continue
		}
		m.logger.Debug("entities republished", "config_entry_id", inst.entry.ID, "count", len(sensors))
	}
}

// Entries returns every config entry with its runtime state.
func (m *Manager) Entries(ctx context.Context) ([]configentry.Entry, error) {
	entries, err := m.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].State = m.stateOf(entries[i].ID)
	}
	return entries, nil
}

// Entry returns one config entry with its runtime state.
func (m *Manager) Entry(ctx context.Context, entryID string) (*configentry.Entry, error) {
	entry, err := m.entries.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	entry.State = m.stateOf(entryID)
	return entry, nil
}

// Sensors returns the live sensors of a config entry.
func (m *Manager) Sensors(entryID string) ([]entity.Sensor, error) {
	inst, ok := m.instance(entryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, entryID)
	}
	return inst.Sensors(), nil
}

// Stats returns the statistics of every instance.
func (m *Manager) Stats() []InstanceStats {
	instances := m.snapshot()
	stats := make([]InstanceStats, 0, len(instances))
	for _, inst := range instances {
		stats = append(stats, inst.Stats())
	}
	return stats
}

// Stop unloads every instance and drops the event subscriptions.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.cancel()
	instances := make([]*Instance, 0, len(m.instances))
	for id, inst := range m.instances {
		instances = append(instances, inst)
		delete(m.instances, id)
	}
	m.mu.Unlock()

	for _, inst := range instances {
		m.unload(inst)
	}
	m.wg.Wait()

	err := m.router.Stop(ctx)
	m.logger.Info("list sync manager stopped")
	return err
}

func (m *Manager) instance(entryID string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[entryID]
	return inst, ok
}

func (m *Manager) snapshot() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out
}

func (m *Manager) stateOf(entryID string) configentry.State {
	if inst, ok := m.instance(entryID); ok {
		return inst.State()
	}
	return configentry.StateNotLoaded
}
