package listsync

import (
	"context"
	"testing"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/registry"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

func groceriesEntry() configentry.Entry {
	return configentry.Entry{
		ID:      "entry-groceries",
		Domain:  configentry.Domain,
		Title:   "Groceries",
		Options: configentry.Options{EntityID: "todo.groceries"},
	}
}

func newTestReconciler() (*Reconciler, *fakeRegistry, *fakePlatform) {
	reg := newFakeRegistry()
	platform := newFakePlatform()
	return NewReconciler(reg, platform, nil), reg, platform
}

func TestApplyCreatesSensors(t *testing.T) {
	r, reg, platform := newTestReconciler()
	inst := NewInstance(groceriesEntry())

	result, err := r.Apply(context.Background(), inst, snapshot(
		item("1", "Milk", todo.StatusNeedsAction),
		item("2", "Bread", todo.StatusCompleted),
	))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.Created != 2 || result.Updated != 0 || result.Deleted != 0 {
		t.Errorf("Apply() = %+v, want 2 created", result)
	}
	if inst.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", inst.Len())
	}

	milk, ok := inst.Sensor("1")
	if !ok {
		t.Fatal("Sensor(1) missing")
	}
	if milk.EntityID != "sensor.groceries_1" {
		t.Errorf("EntityID = %q, want sensor.groceries_1", milk.EntityID)
	}
	if milk.Name != "Milk" || milk.NativeValue != todo.StatusNeedsAction || milk.Icon != entity.IconUnchecked {
		t.Errorf("milk = %q/%q/%q", milk.Name, milk.NativeValue, milk.Icon)
	}
	bread, _ := inst.Sensor("2")
	if bread.Icon != entity.IconChecked {
		t.Errorf("bread icon = %q, want %q", bread.Icon, entity.IconChecked)
	}

	names := reg.names()
	if names["sensor.groceries_1"] != "Milk" || names["sensor.groceries_2"] != "Bread" {
		t.Errorf("registry names = %v", names)
	}
	if added, _, _ := platform.counts(); added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
}

func TestApplyUpdatesEveryLiveSensor(t *testing.T) {
	r, reg, platform := newTestReconciler()
	inst := NewInstance(groceriesEntry())
	ctx := context.Background()

	snap := snapshot(
		item("1", "Milk", todo.StatusNeedsAction),
		item("2", "Bread", todo.StatusNeedsAction),
	)
	if _, err := r.Apply(ctx, inst, snap); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}

	// Unchanged items are still updated and republished.
	result, err := r.Apply(ctx, inst, snap)
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if result.Updated != 2 || result.Created != 0 {
		t.Errorf("Apply() = %+v, want 2 updated", result)
	}
	if _, written, _ := platform.counts(); written != 2 {
		t.Errorf("written = %d, want 2", written)
	}
	if n := reg.count("rename "); n != 2 {
		t.Errorf("renames = %d, want 2", n)
	}
}

func TestApplyReflectsItemChanges(t *testing.T) {
	r, reg, platform := newTestReconciler()
	inst := NewInstance(groceriesEntry())
	ctx := context.Background()

	if _, err := r.Apply(ctx, inst, snapshot(item("1", "Milk", todo.StatusNeedsAction))); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	changed := item("1", "Oat milk", todo.StatusCompleted)
	changed.Due = ptr("2026-10-20")
	if _, err := r.Apply(ctx, inst, snapshot(changed)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	s, _ := inst.Sensor("1")
	if s.Name != "Oat milk" || s.Icon != entity.IconChecked || s.NativeValue != todo.StatusCompleted {
		t.Errorf("sensor = %q/%q/%q", s.Name, s.NativeValue, s.Icon)
	}
	if s.Attributes[entity.AttrDue] != "2026-10-20" {
		t.Errorf("due attribute = %q", s.Attributes[entity.AttrDue])
	}
	if got := reg.names()["sensor.groceries_1"]; got != "Oat milk" {
		t.Errorf("registry name = %q, want Oat milk", got)
	}
	published, _ := platform.seen("groceries_1")
	if published.Name != "Oat milk" {
		t.Errorf("published name = %q, want Oat milk", published.Name)
	}
}

func TestApplyDeletesMissingItems(t *testing.T) {
	r, reg, platform := newTestReconciler()
	inst := NewInstance(groceriesEntry())
	ctx := context.Background()

	if _, err := r.Apply(ctx, inst, snapshot(
		item("1", "Milk", todo.StatusNeedsAction),
		item("2", "Bread", todo.StatusNeedsAction),
	)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	result, err := r.Apply(ctx, inst, snapshot(item("1", "Milk", todo.StatusNeedsAction)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.Deleted != 1 || result.Updated != 1 {
		t.Errorf("Apply() = %+v, want 1 updated 1 deleted", result)
	}
	if _, ok := inst.Sensor("2"); ok {
		t.Error("Sensor(2) still live")
	}
	if _, ok := reg.names()["sensor.groceries_2"]; ok {
		t.Error("registry still holds sensor.groceries_2")
	}
	if _, _, removed := platform.counts(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestApplyDegradedSnapshotDeletesAll(t *testing.T) {
	r, _, _ := newTestReconciler()
	inst := NewInstance(groceriesEntry())
	ctx := context.Background()

	if _, err := r.Apply(ctx, inst, snapshot(
		item("1", "Milk", todo.StatusNeedsAction),
		item("2", "Bread", todo.StatusNeedsAction),
	)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	result, err := r.Apply(ctx, inst, todo.Snapshot{Degraded: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !result.Degraded || result.Deleted != 2 {
		t.Errorf("Apply() = %+v, want degraded with 2 deleted", result)
	}
	if inst.Len() != 0 {
		t.Errorf("Len() = %d, want 0", inst.Len())
	}
}

func TestApplySkipsInvalidItems(t *testing.T) {
	tests := []struct {
		name    string
		items   []todo.Item
		created int
		skipped int
	}{
		{
			name: "duplicate uid",
			items: []todo.Item{
				item("1", "Milk", todo.StatusNeedsAction),
				item("1", "Milk again", todo.StatusCompleted),
			},
			created: 1,
			skipped: 1,
		},
		{
			name: "empty uid",
			items: []todo.Item{
				item("", "Nameless", todo.StatusNeedsAction),
				item("2", "Bread", todo.StatusNeedsAction),
			},
			created: 1,
			skipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, platform := newTestReconciler()
			inst := NewInstance(groceriesEntry())

			result, err := r.Apply(context.Background(), inst, snapshot(tt.items...))
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if result.Created != tt.created || result.Updated != 0 || result.Skipped != tt.skipped {
				t.Errorf("Apply() = %+v, want %d created, %d skipped", result, tt.created, tt.skipped)
			}
			if added, _, _ := platform.counts(); added != tt.created {
				t.Errorf("added = %d, want %d", added, tt.created)
			}
		})
	}
}

func TestApplyFirstOccurrenceWins(t *testing.T) {
	r, _, _ := newTestReconciler()
	inst := NewInstance(groceriesEntry())

	if _, err := r.Apply(context.Background(), inst, snapshot(
		item("1", "Milk", todo.StatusNeedsAction),
		item("1", "Milk again", todo.StatusCompleted),
	)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	s, _ := inst.Sensor("1")
	if s.Name != "Milk" {
		t.Errorf("Name = %q, want Milk", s.Name)
	}
}

func TestApplyReregistersMissingRecord(t *testing.T) {
	r, reg, _ := newTestReconciler()
	inst := NewInstance(groceriesEntry())
	ctx := context.Background()

	if _, err := r.Apply(ctx, inst, snapshot(item("1", "Milk", todo.StatusNeedsAction))); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	reg.mu.Lock()
	delete(reg.records, "sensor.groceries_1")
	reg.mu.Unlock()

	result, err := r.Apply(ctx, inst, snapshot(item("1", "Milk", todo.StatusNeedsAction)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("Apply() = %+v, want 1 updated", result)
	}
	if n := reg.count("register "); n != 2 {
		t.Errorf("registers = %d, want 2", n)
	}
	if got := reg.names()["sensor.groceries_1"]; got != "Milk" {
		t.Errorf("registry name = %q, want Milk", got)
	}
}

func TestApplyAbortsOnFailure(t *testing.T) {
	r, reg, _ := newTestReconciler()
	reg.failOn = "register sensor.groceries_2"
	inst := NewInstance(groceriesEntry())

	result, err := r.Apply(context.Background(), inst, snapshot(
		item("1", "Milk", todo.StatusNeedsAction),
		item("2", "Bread", todo.StatusNeedsAction),
		item("3", "Eggs", todo.StatusNeedsAction),
	))
	if err == nil {
		t.Fatal("Apply() error = nil, want registry failure")
	}
	if result.Created != 1 {
		t.Errorf("Created = %d, want 1", result.Created)
	}
	if _, ok := inst.Sensor("1"); !ok {
		t.Error("work before the failure was not kept")
	}
	if _, ok := inst.Sensor("3"); ok {
		t.Error("item after the failure was applied")
	}
}

func TestApplyPlatformFailureKeepsSlot(t *testing.T) {
	r, reg, platform := newTestReconciler()
	platform.failAdd = true
	inst := NewInstance(groceriesEntry())

	if _, err := r.Apply(context.Background(), inst, snapshot(item("1", "Milk", todo.StatusNeedsAction))); err == nil {
		t.Fatal("Apply() error = nil, want platform failure")
	}
	if inst.Len() != 0 {
		t.Errorf("Len() = %d, want 0", inst.Len())
	}
	if n := len(reg.names()); n != 0 {
		t.Errorf("registry records = %d, want 0 after rollback", n)
	}
	if n := reg.count("remove sensor.groceries_1"); n != 1 {
		t.Errorf("rollback removes = %d, want 1", n)
	}
}

func TestApplyRegistersBeforePublishing(t *testing.T) {
	r, reg, platform := newTestReconciler()
	reg.failOn = "register sensor.groceries_1"
	inst := NewInstance(groceriesEntry())

	if _, err := r.Apply(context.Background(), inst, snapshot(item("1", "Milk", todo.StatusNeedsAction))); err == nil {
		t.Fatal("Apply() error = nil, want registry failure")
	}
	if added, _, _ := platform.counts(); added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
}

func TestApplySkipsTakenEntityID(t *testing.T) {
	r, reg, platform := newTestReconciler()
	inst := NewInstance(groceriesEntry())

	// Another list whose unique ids overlap this one after joining.
	reg.records["sensor.groceries_2"] = registry.Entry{
		EntityID:      "sensor.groceries_2",
		UniqueID:      "groceries_2_other",
		ConfigEntryID: "entry-other",
		UID:           "2",
	}

	result, err := r.Apply(context.Background(), inst, snapshot(
		item("1", "Milk", todo.StatusNeedsAction),
		item("2", "Bread", todo.StatusNeedsAction),
		item("3", "Eggs", todo.StatusNeedsAction),
	))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.Created != 2 || result.Skipped != 1 {
		t.Errorf("Apply() = %+v, want 2 created, 1 skipped", result)
	}
	if _, ok := inst.Sensor("3"); !ok {
		t.Error("item after the conflict was not created")
	}
	if added, _, _ := platform.counts(); added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if got := reg.records["sensor.groceries_2"].ConfigEntryID; got != "entry-other" {
		t.Errorf("conflicting record owner = %q, want entry-other", got)
	}
}

func TestCleanupStale(t *testing.T) {
	r, reg, platform := newTestReconciler()
	inst := NewInstance(groceriesEntry())
	ctx := context.Background()

	reg.records["sensor.groceries_old"] = registry.Entry{
		EntityID:      "sensor.groceries_old",
		UniqueID:      "groceries_old",
		ConfigEntryID: "entry-groceries",
		UID:           "old",
	}
	reg.records["sensor.work_1"] = registry.Entry{
		EntityID:      "sensor.work_1",
		UniqueID:      "work_1",
		ConfigEntryID: "entry-work",
		UID:           "1",
	}

	if _, err := r.Apply(ctx, inst, snapshot(item("1", "Milk", todo.StatusNeedsAction))); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	removed, err := r.CleanupStale(ctx, inst)
	if err != nil {
		t.Fatalf("CleanupStale() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupStale() = %d, want 1", removed)
	}

	names := reg.names()
	if _, ok := names["sensor.groceries_old"]; ok {
		t.Error("stale record not removed")
	}
	if _, ok := names["sensor.groceries_1"]; !ok {
		t.Error("live record removed")
	}
	if _, ok := names["sensor.work_1"]; !ok {
		t.Error("record of another config entry removed")
	}
	if len(platform.records) != 1 || platform.records[0] != "sensor.groceries_old" {
		t.Errorf("platform records removed = %v", platform.records)
	}
}
