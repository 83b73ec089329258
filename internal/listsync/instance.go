package listsync

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/entity"
)

// Instance is the per-watched-list context of one config entry: its
// sensors keyed by uid, its pass lock and its debouncer.
//
// Created on setup, torn down on unload. The slot is only mutated by
// reconciliation passes, which hold passMu.
type Instance struct {
	entry   configentry.Entry
	watched string

	// passMu serialises passes: fetch and apply run as one unit.
	passMu sync.Mutex

	slot   map[string]*entity.Sensor
	slotMu sync.RWMutex

	debouncer *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	statsMu    sync.RWMutex
	state      configentry.State
	passes     uint64
	failures   uint64
	lastResult PassResult
	lastPassAt time.Time
	lastError  string
}

func newInstance(parent context.Context, entry configentry.Entry) *Instance {
	ctx, cancel := context.WithCancel(parent)
	return &Instance{
		entry:   entry,
		watched: entry.WatchedEntityID(),
		slot:    make(map[string]*entity.Sensor),
		ctx:     ctx,
		cancel:  cancel,
		state:   configentry.StateNotLoaded,
	}
}

// NewInstance creates a standalone instance for a config entry, for use
// with a Reconciler outside a Manager.
func NewInstance(entry configentry.Entry) *Instance {
	return newInstance(context.Background(), entry)
}

// EntryID returns the config entry id.
func (i *Instance) EntryID() string { return i.entry.ID }

// WatchedEntityID returns the watched todo entity id.
func (i *Instance) WatchedEntityID() string { return i.watched }

// Sensor returns the live sensor for uid.
func (i *Instance) Sensor(uid string) (*entity.Sensor, bool) {
	i.slotMu.RLock()
	defer i.slotMu.RUnlock()
	s, ok := i.slot[uid]
	return s, ok
}

// Len returns the number of live sensors.
func (i *Instance) Len() int {
	i.slotMu.RLock()
	defer i.slotMu.RUnlock()
	return len(i.slot)
}

// Sensors returns copies of the live sensors sorted by unique id.
func (i *Instance) Sensors() []entity.Sensor {
	i.slotMu.RLock()
	defer i.slotMu.RUnlock()

	out := make([]entity.Sensor, 0, len(i.slot))
	for _, s := range i.slot {
		c := *s
		c.Attributes = maps.Clone(s.Attributes)
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UniqueID < out[b].UniqueID })
	return out
}

func (i *Instance) live() []*entity.Sensor {
	i.slotMu.RLock()
	defer i.slotMu.RUnlock()

	out := make([]*entity.Sensor, 0, len(i.slot))
	for _, s := range i.slot {
		out = append(out, s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UniqueID < out[b].UniqueID })
	return out
}

func (i *Instance) put(s *entity.Sensor) {
	i.slotMu.Lock()
	i.slot[s.UID] = s
	i.slotMu.Unlock()
}

func (i *Instance) delete(uid string) {
	i.slotMu.Lock()
	delete(i.slot, uid)
	i.slotMu.Unlock()
}

func (i *Instance) clearSlot() {
	i.slotMu.Lock()
	i.slot = make(map[string]*entity.Sensor)
	i.slotMu.Unlock()
}

// State returns the runtime state of the config entry.
func (i *Instance) State() configentry.State {
	i.statsMu.RLock()
	defer i.statsMu.RUnlock()
	return i.state
}

func (i *Instance) setState(s configentry.State) {
	i.statsMu.Lock()
	i.state = s
	i.statsMu.Unlock()
}

func (i *Instance) recordPass(result PassResult, err error) {
	i.statsMu.Lock()
	defer i.statsMu.Unlock()

	i.passes++
	i.lastResult = result
	i.lastPassAt = time.Now().UTC()
	i.lastError = ""
	if err != nil {
		i.failures++
		i.lastError = err.Error()
	}
}

// InstanceStats is a point-in-time view of an instance.
type InstanceStats struct {
	EntryID         string            `json:"entry_id"`
	WatchedEntityID string            `json:"watched_entity_id"`
	State           configentry.State `json:"state"`
	Entities        int               `json:"entities"`
	Passes          uint64            `json:"passes"`
	Failures        uint64            `json:"failures"`
	LastPass        PassResult        `json:"last_pass"`
	LastPassAt      *time.Time        `json:"last_pass_at,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
}

// Stats returns the current statistics of the instance.
func (i *Instance) Stats() InstanceStats {
	stats := InstanceStats{
		EntryID:         i.entry.ID,
		WatchedEntityID: i.watched,
		Entities:        i.Len(),
	}

	i.statsMu.RLock()
	defer i.statsMu.RUnlock()

	stats.State = i.state
	stats.Passes = i.passes
	stats.Failures = i.failures
	stats.LastPass = i.lastResult
	stats.LastError = i.lastError
	if !i.lastPassAt.IsZero() {
		at := i.lastPassAt
		stats.LastPassAt = &at
	}
	return stats
}
