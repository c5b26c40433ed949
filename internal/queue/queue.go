// Package queue implements the priority-bucketed render scheduler.
//
// Render work is tagged with a weight equal to the component's nesting
// depth: weight 0 is a topmost, independent component; deeper components
// carry higher weights. Execution drains weight levels in ascending
// order, each level settling completely before the next starts, so a
// parent's render can inject content into children before the children's
// own render logic runs.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// Task is one unit of queued render work. A task returns only when its
// work (including anything it awaited) has settled.
type Task func(ctx context.Context) error

type entry struct {
	fn     Task
	weight int
}

// WeightedQueue collects render tasks until the next execution pass.
// Tasks are transient: the queue is snapshotted and cleared at the start
// of each pass, so re-entrant Adds during execution begin a fresh cycle.
type WeightedQueue struct {
	mu      sync.Mutex
	logger  *slog.Logger
	entries []entry
}

// New creates an empty queue.
func New(logger *slog.Logger) *WeightedQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeightedQueue{logger: logger}
}

// Add appends fn tagged with weight. Weight 0 denotes a topmost
// component; negative weights are clamped to 0.
func (q *WeightedQueue) Add(fn Task, weight int) {
	if fn == nil {
		return
	}
	if weight < 0 {
		weight = 0
	}
	q.mu.Lock()
	q.entries = append(q.entries, entry{fn: fn, weight: weight})
	q.mu.Unlock()
}

// Len returns the number of pending tasks.
func (q *WeightedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Execute drains the queue. The pending list is snapshotted and cleared
// first, then partitioned by weight ascending; every task of weight N
// settles before any task of weight N+1 starts. Within one level, tasks
// run in insertion order.
//
// Task failures do not stop the pass; all are joined into the returned
// error so one broken render cannot starve its siblings.
func (q *WeightedQueue) Execute(ctx context.Context) error {
	q.mu.Lock()
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	levels := make(map[int][]Task)
	weights := make([]int, 0, 4)
	for _, e := range pending {
		if _, ok := levels[e.weight]; !ok {
			weights = append(weights, e.weight)
		}
		levels[e.weight] = append(levels[e.weight], e.fn)
	}
	slices.Sort(weights)

	var errs []error
	for _, w := range weights {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		for _, fn := range levels[w] {
			if err := fn(ctx); err != nil {
				q.logger.Debug("queued task failed", "weight", w, "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
