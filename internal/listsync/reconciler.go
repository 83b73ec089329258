package listsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/registry"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

// PassResult summarises one reconciliation pass.
type PassResult struct {
	Items    int           `json:"items"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Deleted  int           `json:"deleted"`
	Skipped  int           `json:"skipped"`
	Degraded bool          `json:"degraded"`
	Duration time.Duration `json:"duration_ns"`
}

// Reconciler applies a snapshot to the sensors of an instance.
type Reconciler struct {
	registry EntityRegistry
	platform Platform
	logger   Logger
}

// NewReconciler creates a reconciler. A nil logger discards output.
func NewReconciler(reg EntityRegistry, platform Platform, logger Logger) *Reconciler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Reconciler{registry: reg, platform: platform, logger: logger}
}

// Apply reconciles the instance's sensors with snap:
//
//   - a uid with no sensor is created, announced and registered
//   - a uid with a sensor is renamed in the registry, updated and
//     republished, whether or not anything changed
//   - a sensor whose uid is absent from snap is unregistered and removed
//
// Creates and updates follow snapshot order; deletes follow the prior
// sensor set. A uid appearing twice in snap is handled once. Items
// without a uid, and items whose entity id is already registered to
// another unique id, are skipped.
//
// The first failing registry or platform call aborts the pass. Work done
// before it stays applied and the slot reflects it. The caller must hold
// the instance's pass lock when passes can run concurrently.
func (r *Reconciler) Apply(ctx context.Context, inst *Instance, snap todo.Snapshot) (PassResult, error) {
	start := time.Now()
	result := PassResult{Items: snap.Len(), Degraded: snap.Degraded}

	seen := make(map[string]struct{}, snap.Len())
	for _, item := range snap.Items {
		if item.UID == "" {
			r.logger.Warn("skipping todo item without uid", "entity_id", inst.watched)
			result.Skipped++
			continue
		}
		if _, dup := seen[item.UID]; dup {
			r.logger.Warn("skipping duplicate todo item", "entity_id", inst.watched, "uid", item.UID)
			result.Skipped++
			continue
		}
		seen[item.UID] = struct{}{}

		if s, ok := inst.Sensor(item.UID); ok {
			if err := r.update(ctx, inst, s, item); err != nil {
				return r.finish(result, start), err
			}
			result.Updated++
			continue
		}

		err := r.create(ctx, inst, item)
		if errors.Is(err, registry.ErrEntityIDTaken) {
			r.logger.Warn("skipping todo item with conflicting entity id",
				"entity_id", inst.watched, "uid", item.UID, "error", err)
			result.Skipped++
			continue
		}
		if err != nil {
			return r.finish(result, start), err
		}
		result.Created++
	}

	for _, s := range inst.live() {
		if _, ok := seen[s.UID]; ok {
			continue
		}
		if err := r.delete(ctx, inst, s); err != nil {
			return r.finish(result, start), err
		}
		result.Deleted++
	}

	return r.finish(result, start), nil
}

func (r *Reconciler) finish(result PassResult, start time.Time) PassResult {
	result.Duration = time.Since(start)
	return result
}

func (r *Reconciler) create(ctx context.Context, inst *Instance, item todo.Item) error {
	s := entity.New(inst.watched, item)

	if err := r.registry.Register(ctx, inst.entry.ID, s); err != nil {
		return fmt.Errorf("registering %s: %w", s.EntityID, err)
	}
	if err := r.platform.AddEntities(ctx, []*entity.Sensor{s}); err != nil {
		if rmErr := r.registry.Remove(ctx, s.EntityID); rmErr != nil {
			r.logger.Error("rolling back registry record", "entity_id", s.EntityID, "error", rmErr)
		}
		return fmt.Errorf("adding %s: %w", s.EntityID, err)
	}
	inst.put(s)

	r.logger.Debug("entity created", "entity_id", s.EntityID, "uid", s.UID)
	return nil
}

func (r *Reconciler) update(ctx context.Context, inst *Instance, s *entity.Sensor, item todo.Item) error {
	name := ""
	if item.Summary != nil {
		name = *item.Summary
	}

	err := r.registry.UpdateName(ctx, s.EntityID, name)
	switch {
	case errors.Is(err, registry.ErrEntryNotFound):
		// The record was removed externally; adopt the sensor again.
		s.Update(item)
		if err := r.registry.Register(ctx, inst.entry.ID, s); err != nil {
			return fmt.Errorf("re-registering %s: %w", s.EntityID, err)
		}
	case err != nil:
		return fmt.Errorf("renaming %s: %w", s.EntityID, err)
	default:
		s.Update(item)
	}

	if err := r.platform.WriteState(ctx, s); err != nil {
		return fmt.Errorf("writing state of %s: %w", s.EntityID, err)
	}
	return nil
}

func (r *Reconciler) delete(ctx context.Context, inst *Instance, s *entity.Sensor) error {
	if err := r.registry.Remove(ctx, s.EntityID); err != nil {
		return fmt.Errorf("unregistering %s: %w", s.EntityID, err)
	}
	if err := r.platform.RemoveEntity(ctx, s); err != nil {
		return fmt.Errorf("removing %s: %w", s.EntityID, err)
	}
	inst.delete(s.UID)

	r.logger.Debug("entity deleted", "entity_id", s.EntityID, "uid", s.UID)
	return nil
}

// CleanupStale removes registry records of the instance's config entry
// whose uid has no live sensor. Run after the first pass of a setup, it
// clears leftovers of items deleted while the service was down.
func (r *Reconciler) CleanupStale(ctx context.Context, inst *Instance) (int, error) {
	records, err := r.registry.ListByConfigEntry(ctx, inst.entry.ID)
	if err != nil {
		return 0, fmt.Errorf("listing records of %s: %w", inst.entry.ID, err)
	}

	removed := 0
	for _, rec := range records {
		if _, live := inst.Sensor(rec.UID); live {
			continue
		}
		if err := r.registry.Remove(ctx, rec.EntityID); err != nil {
			return removed, fmt.Errorf("removing stale %s: %w", rec.EntityID, err)
		}
		if err := r.platform.RemoveRecord(ctx, rec); err != nil {
			return removed, fmt.Errorf("removing stale %s: %w", rec.EntityID, err)
		}
		removed++
		r.logger.Info("removed stale entity", "entity_id", rec.EntityID, "config_entry_id", inst.entry.ID)
	}
	return removed, nil
}
