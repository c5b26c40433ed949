package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCoalesceDelay is the production trigger delay. Near-simultaneous
// schedule requests inside this window collapse into one execution pass.
const DefaultCoalesceDelay = 50 * time.Millisecond

// Trigger arms a one-shot firing of a scheduler tick. The scheduler arms
// at most one trigger at a time, so implementations never see overlapping
// Schedule calls for the same pending tick.
//
// Production uses TimerTrigger; tests inject a manual trigger so ticks
// fire deterministically without wall-clock timers.
type Trigger interface {
	Schedule(fire func())
}

// TimerTrigger fires after a fixed delay on the process timer.
type TimerTrigger struct {
	Delay time.Duration
}

// Schedule arms the timer. Timers are not individually cancelable; an
// unregistered component's work becomes a no-op inside its own task.
func (t TimerTrigger) Schedule(fire func()) {
	delay := t.Delay
	if delay <= 0 {
		delay = DefaultCoalesceDelay
	}
	time.AfterFunc(delay, fire)
}

// Scheduler coalesces rapid repeated refresh requests into single
// execution passes of a WeightedQueue. This replaces wall-clock debounce
// with an explicit armed/tick model: the first Request arms the trigger,
// further Requests before the tick are absorbed, and the tick runs one
// Execute.
type Scheduler struct {
	mu      sync.Mutex
	queue   *WeightedQueue
	trigger Trigger
	logger  *slog.Logger
	armed   bool
}

// NewScheduler binds a queue to a trigger.
func NewScheduler(q *WeightedQueue, trigger Trigger, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if trigger == nil {
		trigger = TimerTrigger{Delay: DefaultCoalesceDelay}
	}
	return &Scheduler{queue: q, trigger: trigger, logger: logger}
}

// Queue returns the underlying weighted queue.
func (s *Scheduler) Queue() *WeightedQueue {
	return s.queue
}

// Request asks for an execution pass. Requests made while a tick is
// already armed coalesce into that tick.
func (s *Scheduler) Request() {
	s.mu.Lock()
	if s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = true
	s.mu.Unlock()

	s.trigger.Schedule(s.tick)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()

	if err := s.queue.Execute(context.Background()); err != nil {
		// Render failures were already routed to their components'
		// notifiers; this is diagnostics only.
		s.logger.Debug("scheduled pass finished with errors", "error", err)
	}
}
