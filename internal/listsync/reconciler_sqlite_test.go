package listsync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/list-to-entities/internal/infrastructure/database"
	"github.com/nerrad567/list-to-entities/internal/registry"
	"github.com/nerrad567/list-to-entities/internal/todo"
	_ "github.com/nerrad567/list-to-entities/migrations"
)

// sqliteRegistry returns a registry backed by a migrated temp-file database
// that holds the groceries config entry.
func sqliteRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "listsync.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO config_entries
		(id, domain, title, watched_entity_id, created_at, updated_at)
		VALUES ('entry-groceries', 'list_to_entities', 'Groceries', 'todo.groceries',
			'2026-03-01T12:00:00Z', '2026-03-01T12:00:00Z')`); err != nil {
		t.Fatalf("insert config entry: %v", err)
	}

	reg := registry.NewRegistry(registry.NewSQLiteRepository(db.DB))
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return reg
}

func TestApplyCaseVariantUIDs(t *testing.T) {
	reg := sqliteRegistry(t)
	platform := newFakePlatform()
	r := NewReconciler(reg, platform, nil)
	inst := NewInstance(groceriesEntry())
	ctx := context.Background()

	snap := snapshot(
		item("Ab", "Apples", todo.StatusNeedsAction),
		item("aB", "Bananas", todo.StatusNeedsAction),
		item("a.b", "Cherries", todo.StatusNeedsAction),
		item("a_b", "Dates", todo.StatusNeedsAction),
		item("zz", "Zucchini", todo.StatusNeedsAction),
	)

	for pass := 1; pass <= 2; pass++ {
		result, err := r.Apply(ctx, inst, snap)
		if err != nil {
			t.Fatalf("pass %d: Apply() error = %v", pass, err)
		}
		if inst.Len() != 5 {
			t.Fatalf("pass %d: Len() = %d, want 5", pass, inst.Len())
		}
		if result.Skipped != 0 {
			t.Errorf("pass %d: Skipped = %d, want 0", pass, result.Skipped)
		}
	}

	records, err := reg.ListByConfigEntry(ctx, "entry-groceries")
	if err != nil {
		t.Fatalf("ListByConfigEntry() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5", len(records))
	}

	objectIDs := make(map[string]string)
	for _, s := range inst.Sensors() {
		if prev, ok := objectIDs[s.ObjectID]; ok {
			t.Errorf("uids %q and %q share object id %s", prev, s.UID, s.ObjectID)
		}
		objectIDs[s.ObjectID] = s.UID
	}
	if added, _, _ := platform.counts(); added != 5 {
		t.Errorf("added = %d, want 5", added)
	}
}
