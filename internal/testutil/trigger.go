// Package testutil provides deterministic substitutes for the
// time-and-randomness edges of the reactive core: scheduler triggers
// that fire on demand and token generators with predictable output.
package testutil

import "sync"

// ManualTrigger is a scheduler trigger fired explicitly by the test.
// Ticks never race a wall-clock timer, so scheduled work runs exactly
// when the test says so.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ManualTrigger struct {
	mu      sync.Mutex
	pending func()
}

// Schedule arms the trigger with the next tick.
func (t *ManualTrigger) Schedule(fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = fire
}

// Fire runs the armed tick, if any. The tick is cleared before it runs,
// so re-arming from inside the tick behaves like production.
func (t *ManualTrigger) Fire() {
	t.mu.Lock()
	fire := t.pending
	t.pending = nil
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Armed reports whether a tick is pending.
func (t *ManualTrigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
