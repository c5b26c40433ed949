// Package reactive wires the state tree, the scheduler, the differ, and
// the live document into one orchestrator.
//
// A Reactive instance owns a named slice of the page: components register
// against it, mutations dispatch through it, and every state flush fans
// out to the exact-name watchers of the registered components. Multiple
// instances on one page are fully independent.
package reactive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/dom"
	"github.com/roach88/reflow/internal/queue"
	"github.com/roach88/reflow/internal/render"
	"github.com/roach88/reflow/internal/state"
	"github.com/roach88/reflow/internal/vdom"
)

// MutationFunc is one named state transition. It receives the state
// manager and opens its own mutation window (usually via Manager.Mutate);
// the orchestrator never opens one on its behalf.
type MutationFunc func(ctx context.Context, m *state.Manager, args ...any) error

// Recorder observes dispatches and the flushes they cause, correlated by
// dispatch token. The journal implements this; a nil recorder disables
// recording.
type Recorder interface {
	RecordDispatch(ctx context.Context, token, mutation string, args []any) error
	RecordFlush(ctx context.Context, token string, events []state.Event) error
}

// Config assembles a Reactive instance. Name is mandatory; every other
// field has a production default.
type Config struct {
	// Name identifies the instance in logs and journal traces.
	Name string

	// Document is the live tree this instance owns.
	Document *dom.Document

	// Manager is the state tree. A fresh empty manager is created when
	// nil.
	Manager *state.Manager

	// Scheduler coalesces component refreshes. Defaults to a weighted
	// queue behind the production timer trigger.
	Scheduler *queue.Scheduler

	// Renderer produces template markup. May be nil when no template
	// components are used.
	Renderer render.Renderer

	// Notifier receives render-time failures. Defaults to structured
	// logging.
	Notifier Notifier

	// Tokens generates dispatch tokens. Defaults to UUIDv7.
	Tokens TokenGenerator

	// Recorder journals dispatches and flushes. Optional.
	Recorder Recorder

	// Logger is the structured logger. Defaults to slog.Default.
	Logger *slog.Logger
}

// Reactive is the per-instance orchestrator.
type Reactive struct {
	name      string
	doc       *dom.Document
	manager   *state.Manager
	scheduler *queue.Scheduler
	renderer  render.Renderer
	notifier  Notifier
	tokens    TokenGenerator
	recorder  Recorder
	logger    *slog.Logger

	mu           sync.Mutex
	components   *registry
	order        []string          // registration order of component ids
	selectors    map[string]string // owner hash -> main selector
	mutations    map[string]MutationFunc
	pendingReady []string // component ids awaiting the initial snapshot
	currentToken string   // dispatch token for flush correlation
}

// New creates an orchestrator and binds it as the manager's flush sink.
func New(cfg Config) (*Reactive, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("reactive: instance name is required")
	}
	r := &Reactive{
		name:       cfg.Name,
		doc:        cfg.Document,
		manager:    cfg.Manager,
		scheduler:  cfg.Scheduler,
		renderer:   cfg.Renderer,
		notifier:   cfg.Notifier,
		tokens:     cfg.Tokens,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		components: newRegistry(),
		selectors:  make(map[string]string),
		mutations:  make(map[string]MutationFunc),
	}
	if r.doc == nil {
		r.doc = dom.NewDocument(nil)
	}
	if r.manager == nil {
		r.manager = state.New()
	}
	if r.scheduler == nil {
		r.scheduler = queue.NewScheduler(queue.New(cfg.Logger), nil, cfg.Logger)
	}
	if r.notifier == nil {
		r.notifier = LogNotifier{Logger: cfg.Logger}
	}
	if r.tokens == nil {
		r.tokens = UUIDv7Generator{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("reactive", cfg.Name)
	r.manager.OnFlush(r.onFlush)
	return r, nil
}

// Name returns the instance name.
func (r *Reactive) Name() string { return r.name }

// Document returns the live document.
func (r *Reactive) Document() *dom.Document { return r.doc }

// State returns the state manager for read access.
func (r *Reactive) State() *state.Manager { return r.manager }

// Scheduler returns the refresh scheduler.
func (r *Reactive) Scheduler() *queue.Scheduler { return r.scheduler }

// Renderer returns the template renderer, nil when none is configured.
func (r *Reactive) Renderer() render.Renderer { return r.renderer }

// Ready returns a channel closed once the initial state is loaded. Late
// subscribers observe an already-closed channel.
func (r *Reactive) Ready() <-chan struct{} { return r.manager.Ready() }

// SetInitialState loads the state document through the manager.
func (r *Reactive) SetInitialState(doc map[string]any) error {
	return r.manager.SetInitialState(doc)
}

// SetMutations replaces the whole mutation set.
func (r *Reactive) SetMutations(mutations map[string]MutationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = make(map[string]MutationFunc, len(mutations))
	for name, fn := range mutations {
		r.mutations[name] = fn
	}
}

// AddMutations merges mutations into the current set; existing names are
// overridden.
func (r *Reactive) AddMutations(mutations map[string]MutationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, fn := range mutations {
		r.mutations[name] = fn
	}
}

// Dispatch invokes the named mutation. Empty names, underscore-prefixed
// (reserved) names, and unregistered names fail fast; the mutation's own
// error is returned as-is.
func (r *Reactive) Dispatch(ctx context.Context, name string, args ...any) error {
	if name == "" {
		return &Error{Code: ErrCodeInvalidMutationName, Message: "mutation name must be a non-empty string"}
	}
	if name[0] == '_' {
		return &Error{Code: ErrCodePrivateMutation, Message: "underscore-prefixed mutations are reserved", Mutation: name}
	}

	r.mu.Lock()
	fn, ok := r.mutations[name]
	r.mu.Unlock()
	if !ok {
		return &Error{Code: ErrCodeUnknownMutation, Message: "unknown mutation", Mutation: name}
	}

	token := r.tokens.Generate()
	r.logger.Debug("dispatch", "mutation", name, "token", token)
	if r.recorder != nil {
		if err := r.recorder.RecordDispatch(ctx, token, name, args); err != nil {
			r.logger.Warn("dispatch not journaled", "mutation", name, "error", err)
		}
	}

	r.mu.Lock()
	r.currentToken = token
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.currentToken = ""
		r.mu.Unlock()
	}()

	return fn(ctx, r.manager, args...)
}

// RegisterComponent adds c to this instance: validates its watchers,
// assigns an ownership hash, stamps the hash on the component's anchor
// element, and announces the result to the anchor's parent. Registering
// an already-registered component is a no-op.
func (r *Reactive) RegisterComponent(c Component) error {
	if c == nil {
		return &Error{Code: ErrCodeComponentInvalid, Message: "component is nil"}
	}
	element := c.Element()
	if element == nil {
		return &Error{Code: ErrCodeMissingElement, Message: "component has no anchor element"}
	}

	r.mu.Lock()
	if _, ok := r.components.lookup(c); ok {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	var bindings []binding
	if wp, ok := c.(WatcherProvider); ok {
		for i, w := range wp.Watchers() {
			if w.Watch == "" {
				err := &Error{
					Code:    ErrCodeComponentInvalid,
					Message: fmt.Sprintf("watcher %d has an empty event pattern", i),
				}
				r.doc.AnnounceRegistration(element, false, err)
				return err
			}
			if w.Handler == nil {
				err := &Error{
					Code:    ErrCodeComponentInvalid,
					Message: fmt.Sprintf("watcher for %q has no handler", w.Watch),
				}
				r.doc.AnnounceRegistration(element, false, err)
				return err
			}
			bindings = append(bindings, binding{watch: w.Watch, watcher: w})
		}
	}

	id := r.tokens.Generate()
	dom.SetAttr(element, vdom.OwnerAttr, id)

	selector := mainSelector(c, element)

	reg := &registration{id: id, component: c, bindings: bindings}
	r.mu.Lock()
	r.components.add(reg)
	r.order = append(r.order, id)
	r.selectors[id] = selector
	loaded := r.manager.Loaded()
	if !loaded {
		if _, ok := c.(StateReadyHandler); ok {
			r.pendingReady = append(r.pendingReady, id)
		}
	}
	r.mu.Unlock()

	if binder, ok := c.(registrationBinder); ok {
		binder.bindRegistration(r, id, c)
	}
	r.logger.Debug("component registered", "id", id, "selector", selector)
	r.doc.AnnounceRegistration(element, true, c)

	if loaded {
		if h, ok := c.(StateReadyHandler); ok {
			h.StateReady(context.Background(), r.manager)
		}
	}
	return nil
}

// UnregisterComponent removes c: its watcher bindings stop routing and
// its ownership selector is forgotten. Unknown components are a no-op.
func (r *Reactive) UnregisterComponent(c Component) {
	r.mu.Lock()
	reg, ok := r.components.lookup(c)
	if !ok {
		r.mu.Unlock()
		return
	}
	r.components.remove(reg)
	delete(r.selectors, reg.id)
	for i, id := range r.order {
		if id == reg.id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for i, id := range r.pendingReady {
		if id == reg.id {
			r.pendingReady = append(r.pendingReady[:i], r.pendingReady[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	r.logger.Debug("component unregistered", "id", reg.id)
}

// OwnerSelector resolves an ownership hash to its component's main
// selector, for the differ's delegation check.
func (r *Reactive) OwnerSelector(owner string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sel, ok := r.selectors[owner]
	return sel, ok
}

// componentByOwner resolves an ownership hash to its component.
func (r *Reactive) componentByOwner(owner string) (Component, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.components.lookupID(owner)
	if !ok {
		return nil, false
	}
	return reg.component, true
}

// onFlush is the manager's flush sink. When the batch carries the initial
// load event, components registered before the load receive their
// StateReady callback first; then every event routes to the exact-name
// watcher bindings in component registration order.
func (r *Reactive) onFlush(batch []state.Event) {
	ctx := context.Background()

	r.mu.Lock()
	token := r.currentToken
	r.mu.Unlock()
	if r.recorder != nil && len(batch) > 0 {
		if err := r.recorder.RecordFlush(ctx, token, batch); err != nil {
			r.logger.Warn("flush not journaled", "error", err)
		}
	}

	loaded := false
	for _, ev := range batch {
		if ev.Name == state.EventStateLoaded {
			loaded = true
			break
		}
	}
	if loaded {
		r.mu.Lock()
		pending := r.pendingReady
		r.pendingReady = nil
		handlers := make([]StateReadyHandler, 0, len(pending))
		for _, id := range pending {
			if reg, ok := r.components.lookupID(id); ok {
				if h, ok := reg.component.(StateReadyHandler); ok {
					handlers = append(handlers, h)
				}
			}
		}
		r.mu.Unlock()
		for _, h := range handlers {
			h.StateReady(ctx, r.manager)
		}
	}

	for _, ev := range batch {
		for _, w := range r.watchersFor(ev.Name) {
			w.Handler(ctx, ev)
		}
	}
}

// watchersFor snapshots the bindings matching name, in component
// registration order. Snapshotting keeps routing stable when a handler
// unregisters its own component mid-flush.
func (r *Reactive) watchersFor(name string) []Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Watcher
	for _, id := range r.order {
		reg, ok := r.components.lookupID(id)
		if !ok {
			continue
		}
		for _, b := range reg.bindings {
			if b.watch == name {
				out = append(out, b.watcher)
			}
		}
	}
	return out
}

// mainSelector picks the selector identifying a component's anchor: the
// component's own declaration when present, otherwise "#id" or the tag.
func mainSelector(c Component, element *html.Node) string {
	if p, ok := c.(MainSelectorProvider); ok {
		if sel := p.MainSelector(); sel != "" {
			return sel
		}
	}
	if id, ok := dom.GetAttr(element, "id"); ok && id != "" {
		return "#" + id
	}
	return element.Data
}
