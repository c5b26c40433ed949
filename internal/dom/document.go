package dom

import (
	"reflect"
	"sync"

	"golang.org/x/net/html"
)

// Registration lifecycle events delivered to a component's immediate
// parent node. They never bubble: only code that asked for the child (by
// owning its parent) observes the signal, which is what lets composite
// trees detect partially-failed subtrees.
const (
	// EventComponentRegistered announces a successfully created component.
	EventComponentRegistered = "componentregistered"
	// EventComponentFailed announces a component whose registration failed.
	EventComponentFailed = "componentfailed"
)

// Event is a document event delivered to listeners on a single node.
type Event struct {
	Type   string
	Target *html.Node
	Detail any
}

// Listener handles a document event.
type Listener func(Event)

// ListenerHandle identifies one registered listener. Zero is never a
// valid handle.
type ListenerHandle uint64

// ListenerKey returns the code pointer identifying fn. Method values of
// the same method share a key regardless of receiver, so callers that
// memoize by key must scope their table to one owner.
func ListenerKey(fn Listener) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

type listenerEntry struct {
	handle ListenerHandle
	fn     Listener
}

// Document is a live tree plus its listener registry. Multiple documents
// are fully independent; a component anchored in one never observes
// events from another.
type Document struct {
	mu         sync.Mutex
	root       *html.Node
	listeners  map[*html.Node]map[string][]listenerEntry
	nextHandle ListenerHandle
}

// NewDocument wraps root as a live document. A nil root gets a detached
// placeholder element so independent instances never cross-talk.
func NewDocument(root *html.Node) *Document {
	if root == nil {
		root = &html.Node{Type: html.ElementNode, Data: "div"}
	}
	return &Document{
		root:      root,
		listeners: make(map[*html.Node]map[string][]listenerEntry),
	}
}

// Root returns the document root node.
func (d *Document) Root() *html.Node {
	return d.root
}

// IsAttached reports whether n still belongs to the document tree.
// Scheduled renders for detached components use this as their no-op
// check.
func (d *Document) IsAttached(n *html.Node) bool {
	return Contains(d.root, n)
}

// AddListener registers fn for events of the given type on node and
// returns the handle that removes it.
//
// Every call registers a distinct entry: two components adding the same
// method of different receivers get two entries, each removable on its
// own. Duplicate suppression is the caller's concern (BaseComponent
// memoizes per component by ListenerKey).
func (d *Document) AddListener(n *html.Node, eventType string, fn Listener) ListenerHandle {
	if n == nil || fn == nil {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	byType, ok := d.listeners[n]
	if !ok {
		byType = make(map[string][]listenerEntry)
		d.listeners[n] = byType
	}
	d.nextHandle++
	handle := d.nextHandle
	byType[eventType] = append(byType[eventType], listenerEntry{handle: handle, fn: fn})
	return handle
}

// RemoveListener unregisters the listener added under handle for events
// of the given type on node. No-op when nothing matches.
func (d *Document) RemoveListener(n *html.Node, eventType string, handle ListenerHandle) {
	if n == nil || handle == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	byType, ok := d.listeners[n]
	if !ok {
		return
	}
	entries := byType[eventType]
	for i, e := range entries {
		if e.handle == handle {
			byType[eventType] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(byType[eventType]) == 0 {
		delete(byType, eventType)
	}
	if len(byType) == 0 {
		delete(d.listeners, n)
	}
}

// RemoveAllListeners drops every listener bound to node, for callers
// discarding a subtree wholesale.
func (d *Document) RemoveAllListeners(n *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, n)
}

// DispatchEvent delivers ev to listeners bound to target only; document
// events in this core never bubble.
func (d *Document) DispatchEvent(target *html.Node, ev Event) {
	if target == nil {
		return
	}
	ev.Target = target

	d.mu.Lock()
	var fns []Listener
	if byType, ok := d.listeners[target]; ok {
		for _, e := range byType[ev.Type] {
			fns = append(fns, e.fn)
		}
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// AnnounceRegistration delivers the registration success or failure
// signal to the immediate parent of element.
func (d *Document) AnnounceRegistration(element *html.Node, ok bool, detail any) {
	if element == nil || element.Parent == nil {
		return
	}
	eventType := EventComponentRegistered
	if !ok {
		eventType = EventComponentFailed
	}
	d.DispatchEvent(element.Parent, Event{Type: eventType, Detail: detail})
}
