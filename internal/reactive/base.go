package reactive

import (
	"context"

	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/dom"
	"github.com/roach88/reflow/internal/state"
)

// Descriptor carries the construction inputs of a component: its anchor
// element, its orchestrator, and an optional named-selector table.
type Descriptor struct {
	Element   *html.Node
	Reactive  *Reactive
	Selectors map[string]string
}

// BaseComponent is the embeddable core of a registered component. It
// tracks the anchor element, the named selectors, and every document
// listener added through it, so Unregister can tear everything down
// without the author keeping handler references around.
//
// Embedders override Watchers, StateReady, and Destroy as needed; the
// base versions observe nothing and tear down nothing extra.
type BaseComponent struct {
	reactive  *Reactive
	element   *html.Node
	id        string
	self      Component
	selectors map[string]string
	listeners []trackedListener

	unregistered bool
}

type trackedListener struct {
	node      *html.Node
	eventType string
	key       uintptr
	handle    dom.ListenerHandle
}

// NewBaseComponent validates the descriptor and returns an unregistered
// base. Registration happens through Reactive.RegisterComponent, usually
// on the embedding component.
func NewBaseComponent(d Descriptor) (*BaseComponent, error) {
	if d.Element == nil {
		return nil, &Error{Code: ErrCodeMissingElement, Message: "component descriptor has no element"}
	}
	if d.Reactive == nil {
		return nil, &Error{Code: ErrCodeMissingReactive, Message: "component descriptor has no reactive module"}
	}
	selectors := make(map[string]string, len(d.Selectors))
	for name, sel := range d.Selectors {
		selectors[name] = sel
	}
	return &BaseComponent{
		reactive:  d.Reactive,
		element:   d.Element,
		selectors: selectors,
	}, nil
}

// bindRegistration records the registration handle. Called by the
// orchestrator with the outermost embedding component, so Unregister
// removes the component actually held in the registry.
func (b *BaseComponent) bindRegistration(r *Reactive, id string, self Component) {
	b.reactive = r
	b.id = id
	b.self = self
	b.unregistered = false
}

// Element returns the anchor element.
func (b *BaseComponent) Element() *html.Node { return b.element }

// ComponentID returns the ownership hash assigned at registration, ""
// before registration.
func (b *BaseComponent) ComponentID() string { return b.id }

// Reactive returns the owning orchestrator.
func (b *BaseComponent) Reactive() *Reactive { return b.reactive }

// Selector returns the named selector, "" when undefined.
func (b *BaseComponent) Selector(name string) string {
	return b.selectors[name]
}

// SetSelector defines or overrides a named selector.
func (b *BaseComponent) SetSelector(name, selector string) {
	b.selectors[name] = selector
}

// Watchers implements WatcherProvider with no watched events.
func (b *BaseComponent) Watchers() []Watcher { return nil }

// StateReady implements StateReadyHandler as a no-op.
func (b *BaseComponent) StateReady(ctx context.Context, m *state.Manager) {}

// Destroy implements Destroyer as a no-op.
func (b *BaseComponent) Destroy() {}

// AddEventListener registers fn on node in the owning document and tracks
// it for teardown. A nil node targets the component's own anchor. Adding
// the same function to the same (node, event) twice is collapsed, keyed
// by the function's code pointer, so a fresh method value of the same
// method counts as the same listener.
func (b *BaseComponent) AddEventListener(node *html.Node, eventType string, fn dom.Listener) {
	if node == nil {
		node = b.element
	}
	key := dom.ListenerKey(fn)
	for _, l := range b.listeners {
		if l.node == node && l.eventType == eventType && l.key == key {
			return
		}
	}
	handle := b.reactive.Document().AddListener(node, eventType, fn)
	b.listeners = append(b.listeners, trackedListener{node: node, eventType: eventType, key: key, handle: handle})
}

// RemoveEventListener unregisters fn from node and drops exactly that
// entry from the teardown list; other listeners on the same (node, event)
// stay tracked. Passing a fresh value of the originally added method
// works.
func (b *BaseComponent) RemoveEventListener(node *html.Node, eventType string, fn dom.Listener) {
	if node == nil {
		node = b.element
	}
	key := dom.ListenerKey(fn)
	for i := range b.listeners {
		l := b.listeners[i]
		if l.node == node && l.eventType == eventType && l.key == key {
			b.reactive.Document().RemoveListener(l.node, l.eventType, l.handle)
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Dispatch forwards to the orchestrator.
func (b *BaseComponent) Dispatch(ctx context.Context, name string, args ...any) error {
	return b.reactive.Dispatch(ctx, name, args...)
}

// Unregister detaches the component from its orchestrator: watcher
// routing stops, every tracked listener is removed, and Destroy runs.
// Idempotent; the anchor element stays in the document.
func (b *BaseComponent) Unregister() {
	if b.unregistered {
		return
	}
	b.unregistered = true

	self := b.self
	if self == nil {
		self = b
	}
	b.reactive.UnregisterComponent(self)

	doc := b.reactive.Document()
	for _, l := range b.listeners {
		doc.RemoveListener(l.node, l.eventType, l.handle)
	}
	b.listeners = nil

	if d, ok := self.(Destroyer); ok {
		d.Destroy()
	}
}

// Remove unregisters the component and detaches its anchor from the
// document tree.
func (b *BaseComponent) Remove() {
	b.Unregister()
	dom.Detach(b.element)
}
