package reactive

import (
	"context"

	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/state"
)

// Watcher binds one exact event pattern to a handler. Patterns are whole
// event names ("cm[5].visible:updated", "state:updated"); there is no
// wildcard matching, each watched pattern is a distinct listener.
type Watcher struct {
	Watch   string
	Handler func(ctx context.Context, ev state.Event)
}

// Component is the unit of registration: anything owning a DOM anchor.
//
// Optional capabilities are declared through the companion interfaces
// below and checked by interface satisfaction, not runtime property
// probing. A bare Component with none of them registers fine and simply
// observes nothing.
type Component interface {
	Element() *html.Node
}

// WatcherProvider declares watched event patterns.
type WatcherProvider interface {
	Watchers() []Watcher
}

// StateReadyHandler is called once per component when the initial state
// snapshot becomes available: immediately at registration if the state
// is already loaded, otherwise as soon as the load completes. It always
// fires before any watcher-driven handler for events of the same or
// later flushes.
type StateReadyHandler interface {
	StateReady(ctx context.Context, m *state.Manager)
}

// Destroyer runs teardown during unregistration, after listeners are
// removed.
type Destroyer interface {
	Destroy()
}

// MainSelectorProvider declares the selector that identifies this
// component's anchor. The differ uses it to decide whether a live node
// still belongs to its registered owner; without it the anchor's tag
// (plus #id when present) is used.
type MainSelectorProvider interface {
	MainSelector() string
}

// registrationBinder is implemented by BaseComponent so the orchestrator
// can hand back the registration handle.
type registrationBinder interface {
	bindRegistration(r *Reactive, id string, self Component)
}
