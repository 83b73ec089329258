package listsync

import (
	"context"
	"sync"
	"time"
)

type debounceState int

const (
	stateIdle debounceState = iota
	stateScheduled
	stateRunning
)

func (s debounceState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateScheduled:
		return "scheduled"
	case stateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Debouncer coalesces pass triggers for one instance into single passes.
//
// States:
//
//	idle      --Trigger(d)-->            scheduled (deadline now+d)
//	scheduled --Trigger(d)-->            scheduled (deadline = later of both)
//	scheduled --deadline-->              running
//	running   --Trigger(d)-->            running, dirty (remember largest d)
//	running   --pass done, dirty-->      scheduled (now + largest d)
//	running   --pass done, clean-->      idle
//
// At most one pass runs at a time. Stop cancels the timer and the context
// of a running pass; later triggers are ignored.
type Debouncer struct {
	pass func(ctx context.Context)

	mu       sync.Mutex
	state    debounceState
	deadline time.Time
	timer    *time.Timer
	gen      uint64
	dirty    bool
	pending  time.Duration
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDebouncer creates a debouncer running pass for every coalesced batch
// of triggers.
func NewDebouncer(pass func(ctx context.Context)) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		pass:   pass,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Trigger requests a pass no earlier than delay from now.
func (d *Debouncer) Trigger(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch d.state {
	case stateIdle:
		d.schedule(delay)
	case stateScheduled:
		if deadline := time.Now().Add(delay); deadline.After(d.deadline) {
			d.schedule(delay)
		}
	case stateRunning:
		if !d.dirty || delay > d.pending {
			d.pending = delay
		}
		d.dirty = true
	}
}

// schedule arms a fresh timer. Callers hold mu.
func (d *Debouncer) schedule(delay time.Duration) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.state = stateScheduled
	d.deadline = time.Now().Add(delay)
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen || d.state != stateScheduled {
		d.mu.Unlock()
		return
	}
	d.state = stateRunning
	d.dirty = false
	d.pending = 0
	ctx := d.ctx
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.pass(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.stopped:
		d.state = stateIdle
	case d.dirty:
		d.dirty = false
		d.schedule(d.pending)
	default:
		d.state = stateIdle
	}
}

// State returns the current state name: idle, scheduled or running.
func (d *Debouncer) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.String()
}

// Stop cancels any scheduled pass and the context of a running one, then
// waits for the running pass to return. It must not be called from pass.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
}
