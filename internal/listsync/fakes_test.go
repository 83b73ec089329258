package listsync

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/homeassistant"
	"github.com/nerrad567/list-to-entities/internal/registry"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

func ptr(s string) *string { return &s }

func item(uid, summary, status string) todo.Item {
	return todo.Item{UID: uid, Summary: ptr(summary), Status: ptr(status)}
}

func snapshot(items ...todo.Item) todo.Snapshot {
	return todo.Snapshot{Items: items}
}

// fakeRegistry is an in-memory EntityRegistry that records every call.
type fakeRegistry struct {
	mu      sync.Mutex
	records map[string]registry.Entry
	calls   []string
	failOn  string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: make(map[string]registry.Entry)}
}

func (f *fakeRegistry) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn != "" && call == f.failOn {
		return errors.New("registry unavailable")
	}
	return nil
}

func (f *fakeRegistry) Register(_ context.Context, configEntryID string, s *entity.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("register " + s.EntityID); err != nil {
		return err
	}
	if rec, ok := f.records[s.EntityID]; ok && rec.UniqueID != s.UniqueID {
		return registry.ErrEntityIDTaken
	}
	f.records[s.EntityID] = registry.Entry{
		EntityID:        s.EntityID,
		UniqueID:        s.UniqueID,
		ConfigEntryID:   configEntryID,
		WrappedEntityID: s.WrappedEntityID,
		UID:             s.UID,
		Name:            s.Name,
	}
	return nil
}

func (f *fakeRegistry) UpdateName(_ context.Context, entityID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("rename " + entityID); err != nil {
		return err
	}
	rec, ok := f.records[entityID]
	if !ok {
		return registry.ErrEntryNotFound
	}
	rec.Name = name
	f.records[entityID] = rec
	return nil
}

func (f *fakeRegistry) Remove(_ context.Context, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("remove " + entityID); err != nil {
		return err
	}
	delete(f.records, entityID)
	return nil
}

func (f *fakeRegistry) ListByConfigEntry(_ context.Context, configEntryID string) ([]registry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []registry.Entry
	for _, rec := range f.records {
		if rec.ConfigEntryID == configEntryID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (f *fakeRegistry) RemoveByConfigEntry(_ context.Context, configEntryID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, rec := range f.records {
		if rec.ConfigEntryID == configEntryID {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRegistry) names() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.records))
	for id, rec := range f.records {
		out[id] = rec.Name
	}
	return out
}

func (f *fakeRegistry) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakePlatform records entity platform calls.
type fakePlatform struct {
	mu       sync.Mutex
	added    []string
	written  []string
	removed  []string
	records  []string
	failAdd  bool
	lastSeen map[string]entity.Sensor
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{lastSeen: make(map[string]entity.Sensor)}
}

func (f *fakePlatform) AddEntities(_ context.Context, sensors []*entity.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return errors.New("broker unavailable")
	}
	for _, s := range sensors {
		f.added = append(f.added, s.UniqueID)
		f.lastSeen[s.UniqueID] = *s
	}
	return nil
}

func (f *fakePlatform) WriteState(_ context.Context, s *entity.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, s.UniqueID)
	f.lastSeen[s.UniqueID] = *s
	return nil
}

func (f *fakePlatform) RemoveEntity(_ context.Context, s *entity.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, s.UniqueID)
	delete(f.lastSeen, s.UniqueID)
	return nil
}

func (f *fakePlatform) RemoveRecord(_ context.Context, e registry.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, e.EntityID)
	return nil
}

func (f *fakePlatform) counts() (added, written, removed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added), len(f.written), len(f.removed)
}

func (f *fakePlatform) seen(uniqueID string) (entity.Sensor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.lastSeen[uniqueID]
	return s, ok
}

// fakeFetcher serves a replaceable snapshot and counts fetches.
type fakeFetcher struct {
	mu      sync.Mutex
	snap    todo.Snapshot
	err     error
	fetches int
	active  int
	overlap bool
	delay   time.Duration
	ready   chan struct{} // closed when the todo service is available
}

func newFakeFetcher(snap todo.Snapshot) *fakeFetcher {
	ready := make(chan struct{})
	close(ready)
	return &fakeFetcher{snap: snap, ready: ready}
}

func (f *fakeFetcher) set(snap todo.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string) (todo.Snapshot, error) {
	f.mu.Lock()
	f.fetches++
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	snap, err, delay := f.snap, f.err, f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return todo.Snapshot{}, ctx.Err()
		}
	}
	return snap, err
}

func (f *fakeFetcher) WaitForService(ctx context.Context, _ time.Duration) error {
	select {
	case <-f.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// fakeEntries is an in-memory EntryStore.
type fakeEntries struct {
	mu      sync.Mutex
	entries []configentry.Entry
	nextID  int
}

func (f *fakeEntries) Create(_ context.Context, e *configentry.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := configentry.ValidateWatchedEntityID(e.Options.EntityID); err != nil {
		return err
	}
	for _, existing := range f.entries {
		if existing.Options.EntityID == e.Options.EntityID {
			return configentry.ErrAlreadyConfigured
		}
	}
	if e.ID == "" {
		f.nextID++
		e.ID = "entry-" + strconv.Itoa(f.nextID)
	}
	e.Domain = configentry.Domain
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeEntries) Get(_ context.Context, id string) (*configentry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, configentry.ErrNotFound
}

func (f *fakeEntries) GetByWatchedEntity(_ context.Context, watched string) (*configentry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Options.EntityID == watched {
			out := e
			return &out, nil
		}
	}
	return nil, configentry.ErrNotFound
}

func (f *fakeEntries) List(_ context.Context) ([]configentry.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]configentry.Entry(nil), f.entries...), nil
}

func (f *fakeEntries) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return configentry.ErrNotFound
}

// fakeStates resolves entity states from a map.
type fakeStates map[string]string // entity id -> friendly name; "" omits it

func (f fakeStates) GetState(_ context.Context, entityID string) (*homeassistant.State, error) {
	name, ok := f[entityID]
	if !ok {
		return nil, homeassistant.ErrEntityNotFound
	}
	attrs := map[string]any{}
	if name != "" {
		attrs["friendly_name"] = name
	}
	return &homeassistant.State{EntityID: entityID, Attributes: attrs}, nil
}

// fakeEvents captures subscribed handlers so tests can emit events.
type fakeEvents struct {
	mu       sync.Mutex
	handlers map[string]homeassistant.EventHandler
	unsubs   int
}

type fakeSubscription struct {
	events    *fakeEvents
	eventType string
}

func (s *fakeSubscription) Unsubscribe(context.Context) error {
	s.events.mu.Lock()
	defer s.events.mu.Unlock()
	delete(s.events.handlers, s.eventType)
	s.events.unsubs++
	return nil
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[string]homeassistant.EventHandler)}
}

func (f *fakeEvents) SubscribeEvents(_ context.Context, eventType string, handler homeassistant.EventHandler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[eventType] = handler
	return &fakeSubscription{events: f, eventType: eventType}, nil
}

func (f *fakeEvents) emit(eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	handler := f.handlers[eventType]
	f.mu.Unlock()
	if handler != nil {
		handler(homeassistant.Event{EventType: eventType, Data: raw})
	}
}

// recordingTrigger counts triggers and remembers their delays.
type recordingTrigger struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingTrigger) Trigger(delay time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, delay)
	r.mu.Unlock()
}

func (r *recordingTrigger) got() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// fakeMetrics counts recorded passes and setups.
type fakeMetrics struct {
	mu       sync.Mutex
	passes   int
	failures int
	setups   int
}

func (f *fakeMetrics) RecordPass(_, _ string, _ PassResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes++
	if err != nil {
		f.failures++
	}
}

func (f *fakeMetrics) RecordSetup(string, string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setups++
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
