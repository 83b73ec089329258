package listsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/list-to-entities/internal/homeassistant"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

// Trigger is anything that can be asked for a delayed pass.
// Implemented by *Debouncer.
type Trigger interface {
	Trigger(delay time.Duration)
}

// Delays configures how long the router waits before a pass.
type Delays struct {
	// PreInvocation is added for call_service events, which arrive before
	// the list has been edited.
	PreInvocation time.Duration

	// Settle lets the list settle before it is read.
	Settle time.Duration
}

// Router subscribes to Home Assistant events once and dispatches those
// about a watched list to its trigger.
//
//   - state_changed: data.entity_id equals the watched id; pass after Settle
//   - call_service: data.domain is "todo" and the first entry of
//     data.service_data.entity_id equals the watched id; pass after
//     PreInvocation + Settle
type Router struct {
	source EventSource
	delays Delays
	logger Logger

	mu      sync.RWMutex
	targets map[string]Trigger
	subs    []Subscription
}

// NewRouter creates a router over source.
func NewRouter(source EventSource, delays Delays, logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		source:  source,
		delays:  delays,
		logger:  logger,
		targets: make(map[string]Trigger),
	}
}

// Start subscribes to state_changed and call_service.
func (r *Router) Start(ctx context.Context) error {
	stateSub, err := r.source.SubscribeEvents(ctx, homeassistant.EventStateChanged, r.handleStateChanged)
	if err != nil {
		return fmt.Errorf("subscribing to state changes: %w", err)
	}
	callSub, err := r.source.SubscribeEvents(ctx, homeassistant.EventCallService, r.handleCallService)
	if err != nil {
		//nolint:errcheck // Best-effort rollback
		stateSub.Unsubscribe(ctx)
		return fmt.Errorf("subscribing to service calls: %w", err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, stateSub, callSub)
	r.mu.Unlock()
	return nil
}

// Stop drops the subscriptions.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Register routes events about watchedEntityID to t.
func (r *Router) Register(watchedEntityID string, t Trigger) {
	r.mu.Lock()
	r.targets[watchedEntityID] = t
	r.mu.Unlock()
}

// Unregister stops routing events about watchedEntityID.
func (r *Router) Unregister(watchedEntityID string) {
	r.mu.Lock()
	delete(r.targets, watchedEntityID)
	r.mu.Unlock()
}

func (r *Router) target(watchedEntityID string) (Trigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[watchedEntityID]
	return t, ok
}

func (r *Router) handleStateChanged(e homeassistant.Event) {
	var data homeassistant.StateChangedData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		r.logger.Debug("ignoring undecodable state_changed event", "error", err)
		return
	}

	t, ok := r.target(data.EntityID)
	if !ok {
		return
	}
	r.logger.Debug("watched list changed", "entity_id", data.EntityID)
	t.Trigger(r.delays.Settle)
}

func (r *Router) handleCallService(e homeassistant.Event) {
	var data homeassistant.CallServiceData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		r.logger.Debug("ignoring undecodable call_service event", "error", err)
		return
	}

	watched, ok := callServiceTarget(data)
	if !ok {
		return
	}
	t, ok := r.target(watched)
	if !ok {
		return
	}
	r.logger.Debug("watched list about to change", "entity_id", watched, "service", data.Service)
	t.Trigger(r.delays.PreInvocation + r.delays.Settle)
}

// callServiceTarget returns the entity a todo service call targets.
func callServiceTarget(data homeassistant.CallServiceData) (string, bool) {
	if data.Domain != todo.Domain {
		return "", false
	}
	ids := data.EntityIDs()
	if len(ids) == 0 || ids[0] == "" {
		return "", false
	}
	return ids[0], true
}
