package reactive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/dom"
	"github.com/roach88/reflow/internal/queue"
	"github.com/roach88/reflow/internal/render"
	"github.com/roach88/reflow/internal/state"
	"github.com/roach88/reflow/internal/testutil"
	"github.com/roach88/reflow/internal/vdom"
)

func renderHTML(t *testing.T, n *html.Node) string {
	t.Helper()
	markup, err := dom.Render(n)
	require.NoError(t, err)
	return markup
}

type captureNotifier struct {
	messages []string
	errors   []error
}

func (n *captureNotifier) Notify(ctx context.Context, message string, err error) {
	n.messages = append(n.messages, message)
	n.errors = append(n.errors, err)
}

type fixture struct {
	r        *Reactive
	doc      *dom.Document
	trigger  *testutil.ManualTrigger
	renderer *render.TemplateRenderer
	notifier *captureNotifier
	anchor   *html.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root, err := dom.ParseFragment(`<div id="root"><section id="anchor"></section></div>`)
	require.NoError(t, err)
	doc := dom.NewDocument(root)
	trigger := &testutil.ManualTrigger{}
	notifier := &captureNotifier{}
	renderer := render.NewTemplateRenderer()
	r, err := New(Config{
		Name:      "test",
		Document:  doc,
		Scheduler: queue.NewScheduler(queue.New(nil), trigger, nil),
		Renderer:  renderer,
		Notifier:  notifier,
	})
	require.NoError(t, err)

	anchor := root.FirstChild
	require.NotNil(t, anchor)
	return &fixture{r: r, doc: doc, trigger: trigger, renderer: renderer, notifier: notifier, anchor: anchor}
}

type watchComp struct {
	*BaseComponent
	watch  string
	events []state.Event
	ready  int
}

func newWatchComp(t *testing.T, f *fixture, element *html.Node, watch string) *watchComp {
	t.Helper()
	base, err := NewBaseComponent(Descriptor{Element: element, Reactive: f.r})
	require.NoError(t, err)
	return &watchComp{BaseComponent: base, watch: watch}
}

func (c *watchComp) Watchers() []Watcher {
	if c.watch == "" {
		return nil
	}
	return []Watcher{{Watch: c.watch, Handler: func(ctx context.Context, ev state.Event) {
		c.events = append(c.events, ev)
	}}}
}

func (c *watchComp) StateReady(ctx context.Context, m *state.Manager) {
	c.ready++
}

func TestNewRequiresName(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRegisterComponentStampsOwnership(t *testing.T) {
	f := newFixture(t)
	c := newWatchComp(t, f, f.anchor, "")

	require.NoError(t, f.r.RegisterComponent(c))

	owner, ok := dom.GetAttr(f.anchor, vdom.OwnerAttr)
	require.True(t, ok)
	assert.Equal(t, c.ComponentID(), owner)

	sel, ok := f.r.OwnerSelector(owner)
	require.True(t, ok)
	assert.Equal(t, "#anchor", sel)
}

func TestRegisterComponentIdempotent(t *testing.T) {
	f := newFixture(t)
	c := newWatchComp(t, f, f.anchor, "")

	require.NoError(t, f.r.RegisterComponent(c))
	id := c.ComponentID()
	require.NoError(t, f.r.RegisterComponent(c))
	assert.Equal(t, id, c.ComponentID())
	assert.Len(t, f.r.order, 1)
}

func TestRegisterComponentNilElement(t *testing.T) {
	f := newFixture(t)
	_, err := NewBaseComponent(Descriptor{Reactive: f.r})
	require.Error(t, err)
	assert.Equal(t, ErrCodeMissingElement, CodeOf(err))

	_, err = NewBaseComponent(Descriptor{Element: f.anchor})
	require.Error(t, err)
	assert.Equal(t, ErrCodeMissingReactive, CodeOf(err))
}

type badWatchComp struct {
	*BaseComponent
}

func (c *badWatchComp) Watchers() []Watcher {
	return []Watcher{{Watch: "cm[1]:updated", Handler: nil}}
}

func TestRegisterComponentInvalidWatcherAnnouncesFailure(t *testing.T) {
	f := newFixture(t)

	var failures []dom.Event
	f.doc.AddListener(f.doc.Root(), dom.EventComponentFailed, func(ev dom.Event) {
		failures = append(failures, ev)
	})

	base, err := NewBaseComponent(Descriptor{Element: f.anchor, Reactive: f.r})
	require.NoError(t, err)
	err = f.r.RegisterComponent(&badWatchComp{BaseComponent: base})
	require.Error(t, err)
	assert.Equal(t, ErrCodeComponentInvalid, CodeOf(err))
	require.Len(t, failures, 1)

	// Failed registrations leave no trace in the registry.
	assert.Empty(t, f.r.order)
	_, ok := dom.GetAttr(f.anchor, vdom.OwnerAttr)
	assert.False(t, ok)
}

func TestRegistrationAnnouncedToParent(t *testing.T) {
	f := newFixture(t)

	var registered []dom.Event
	f.doc.AddListener(f.doc.Root(), dom.EventComponentRegistered, func(ev dom.Event) {
		registered = append(registered, ev)
	})

	c := newWatchComp(t, f, f.anchor, "")
	require.NoError(t, f.r.RegisterComponent(c))
	require.Len(t, registered, 1)
	assert.Same(t, f.doc.Root(), registered[0].Target)
}

func TestStateReadyBeforeLoad(t *testing.T) {
	f := newFixture(t)
	c := newWatchComp(t, f, f.anchor, state.EventStateLoaded)
	require.NoError(t, f.r.RegisterComponent(c))
	assert.Equal(t, 0, c.ready)

	require.NoError(t, f.r.SetInitialState(map[string]any{
		"course": map[string]any{"name": "X"},
	}))

	// StateReady fires exactly once, before the load event reaches the
	// watcher.
	assert.Equal(t, 1, c.ready)
	require.Len(t, c.events, 1)
	assert.Equal(t, state.EventStateLoaded, c.events[0].Name)
}

func TestStateReadyAfterLoadFiresImmediately(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.r.SetInitialState(map[string]any{
		"course": map[string]any{"name": "X"},
	}))

	c := newWatchComp(t, f, f.anchor, "")
	require.NoError(t, f.r.RegisterComponent(c))
	assert.Equal(t, 1, c.ready)
}

func TestDispatchValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.r.Dispatch(ctx, "")
	assert.Equal(t, ErrCodeInvalidMutationName, CodeOf(err))

	err = f.r.Dispatch(ctx, "_internal")
	assert.Equal(t, ErrCodePrivateMutation, CodeOf(err))

	err = f.r.Dispatch(ctx, "missing")
	assert.Equal(t, ErrCodeUnknownMutation, CodeOf(err))
}

func TestDispatchRoutesFlushToWatchers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.r.SetInitialState(map[string]any{
		"course": map[string]any{"name": "X"},
	}))

	c := newWatchComp(t, f, f.anchor, "course.name:updated")
	require.NoError(t, f.r.RegisterComponent(c))

	f.r.SetMutations(map[string]MutationFunc{
		"rename": func(ctx context.Context, m *state.Manager, args ...any) error {
			return m.Mutate(func(w *state.Writer) error {
				return w.Set("course", "name", args[0])
			})
		},
	})

	require.NoError(t, f.r.Dispatch(context.Background(), "rename", "Y"))
	require.Len(t, c.events, 1)
	assert.Equal(t, "course.name:updated", c.events[0].Name)

	rec, err := f.r.State().Record("course")
	require.NoError(t, err)
	assert.Equal(t, "Y", rec.Get("name"))
}

func TestAddMutationsMergesSetMutationsReplaces(t *testing.T) {
	f := newFixture(t)
	noop := func(ctx context.Context, m *state.Manager, args ...any) error { return nil }

	f.r.SetMutations(map[string]MutationFunc{"a": noop})
	f.r.AddMutations(map[string]MutationFunc{"b": noop})
	require.NoError(t, f.r.Dispatch(context.Background(), "a"))
	require.NoError(t, f.r.Dispatch(context.Background(), "b"))

	f.r.SetMutations(map[string]MutationFunc{"c": noop})
	err := f.r.Dispatch(context.Background(), "a")
	assert.Equal(t, ErrCodeUnknownMutation, CodeOf(err))
}

func TestUnregisterStopsRouting(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.r.SetInitialState(map[string]any{
		"course": map[string]any{"name": "X"},
	}))

	c := newWatchComp(t, f, f.anchor, "course.name:updated")
	require.NoError(t, f.r.RegisterComponent(c))
	c.Unregister()
	c.Unregister() // idempotent

	require.NoError(t, f.r.State().Mutate(func(w *state.Writer) error {
		return w.Set("course", "name", "Y")
	}))
	assert.Empty(t, c.events)
}

func TestUnregisterRemovesTrackedListeners(t *testing.T) {
	f := newFixture(t)
	c := newWatchComp(t, f, f.anchor, "")
	require.NoError(t, f.r.RegisterComponent(c))

	var fired int
	c.AddEventListener(nil, "click", func(dom.Event) { fired++ })
	f.doc.DispatchEvent(f.anchor, dom.Event{Type: "click"})
	require.Equal(t, 1, fired)

	c.Unregister()
	f.doc.DispatchEvent(f.anchor, dom.Event{Type: "click"})
	assert.Equal(t, 1, fired)
}

func TestRemoveEventListenerKeepsSiblingsTracked(t *testing.T) {
	f := newFixture(t)
	c := newWatchComp(t, f, f.anchor, "")
	require.NoError(t, f.r.RegisterComponent(c))

	var aFired, bFired int
	fa := func(dom.Event) { aFired++ }
	fb := func(dom.Event) { bFired++ }
	c.AddEventListener(nil, "click", fa)
	c.AddEventListener(nil, "click", fb)

	f.doc.DispatchEvent(f.anchor, dom.Event{Type: "click"})
	require.Equal(t, 1, aFired)
	require.Equal(t, 1, bFired)

	// Removing one listener must not untrack the other; teardown still
	// covers it.
	c.RemoveEventListener(nil, "click", fb)
	c.Unregister()

	f.doc.DispatchEvent(f.anchor, dom.Event{Type: "click"})
	assert.Equal(t, 1, aFired)
	assert.Equal(t, 1, bFired)
}

type clickComp struct {
	*BaseComponent
	clicks int
}

func (c *clickComp) onClick(dom.Event) { c.clicks++ }

func TestSameMethodListenersOfTwoComponents(t *testing.T) {
	f := newFixture(t)
	root := f.doc.Root()

	newClick := func() *clickComp {
		base, err := NewBaseComponent(Descriptor{Element: f.anchor, Reactive: f.r})
		require.NoError(t, err)
		return &clickComp{BaseComponent: base}
	}
	a := newClick()
	b := newClick()

	// The same method of two receivers shares a code pointer; each
	// component still gets its own live listener.
	a.AddEventListener(root, "click", a.onClick)
	b.AddEventListener(root, "click", b.onClick)

	f.doc.DispatchEvent(root, dom.Event{Type: "click"})
	require.Equal(t, 1, a.clicks)
	require.Equal(t, 1, b.clicks)

	a.Unregister()
	f.doc.DispatchEvent(root, dom.Event{Type: "click"})
	assert.Equal(t, 1, a.clicks)
	assert.Equal(t, 2, b.clicks)
}

func TestAddEventListenerCollapsesDuplicates(t *testing.T) {
	f := newFixture(t)
	base, err := NewBaseComponent(Descriptor{Element: f.anchor, Reactive: f.r})
	require.NoError(t, err)
	c := &clickComp{BaseComponent: base}
	require.NoError(t, f.r.RegisterComponent(c))

	// Fresh method values of the same method count as one listener, and
	// a fresh value removes it.
	c.AddEventListener(nil, "click", c.onClick)
	c.AddEventListener(nil, "click", c.onClick)
	f.doc.DispatchEvent(f.anchor, dom.Event{Type: "click"})
	require.Equal(t, 1, c.clicks)

	c.RemoveEventListener(nil, "click", c.onClick)
	f.doc.DispatchEvent(f.anchor, dom.Event{Type: "click"})
	assert.Equal(t, 1, c.clicks)
}

func TestRemoveDetachesAnchor(t *testing.T) {
	f := newFixture(t)
	c := newWatchComp(t, f, f.anchor, "")
	require.NoError(t, f.r.RegisterComponent(c))

	c.Remove()
	assert.False(t, f.doc.IsAttached(f.anchor))
}

type destroyComp struct {
	*BaseComponent
	destroyed int
}

func (c *destroyComp) Destroy() { c.destroyed++ }

func TestUnregisterRunsDestroy(t *testing.T) {
	f := newFixture(t)
	base, err := NewBaseComponent(Descriptor{Element: f.anchor, Reactive: f.r})
	require.NoError(t, err)
	c := &destroyComp{BaseComponent: base}
	require.NoError(t, f.r.RegisterComponent(c))

	c.Unregister()
	c.Unregister()
	assert.Equal(t, 1, c.destroyed)
}

func TestNamedSelectors(t *testing.T) {
	f := newFixture(t)
	base, err := NewBaseComponent(Descriptor{
		Element:  f.anchor,
		Reactive: f.r,
		Selectors: map[string]string{
			"TITLE": "h1.title",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "h1.title", base.Selector("TITLE"))
	base.SetSelector("TITLE", "h2.title")
	assert.Equal(t, "h2.title", base.Selector("TITLE"))
	assert.Equal(t, "", base.Selector("UNKNOWN"))
}

type selectorComp struct {
	*BaseComponent
}

func (c *selectorComp) MainSelector() string { return "section.card" }

func TestMainSelectorProviderWins(t *testing.T) {
	f := newFixture(t)
	base, err := NewBaseComponent(Descriptor{Element: f.anchor, Reactive: f.r})
	require.NoError(t, err)
	c := &selectorComp{BaseComponent: base}
	require.NoError(t, f.r.RegisterComponent(c))

	sel, ok := f.r.OwnerSelector(c.ComponentID())
	require.True(t, ok)
	assert.Equal(t, "section.card", sel)
}
