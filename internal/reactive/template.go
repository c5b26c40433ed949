package reactive

import (
	"context"

	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/canonical"
	"github.com/roach88/reflow/internal/dom"
	"github.com/roach88/reflow/internal/state"
	"github.com/roach88/reflow/internal/vdom"
)

// TemplateSource supplies the template name and its data snapshot.
// Implemented by the embedding component.
//
// TemplateData returning (nil, nil) means the component's backing state
// is gone; the component removes itself from the document.
type TemplateSource interface {
	TemplateName() string
	TemplateData(m *state.Manager) (any, error)
}

// ContentInjector receives a parent-rendered fragment for deferred
// self-reconciliation. Template components implement it; the fragment
// is patched on the next scheduled pass, after the parent's level
// settles.
type ContentInjector interface {
	InjectContent(next *html.Node)
}

// TemplateComponent is a component whose subtree mirrors a template
// render of the current state. It watches the catch-all state change
// event and re-renders through the scheduler; identical data snapshots
// (by canonical hash) skip the render entirely, and render failures keep
// the last-good DOM while notifying the user.
type TemplateComponent struct {
	*BaseComponent
	source TemplateSource

	// OnScript, when set, receives the post-patch script registered with
	// the template. The core never executes scripts itself.
	OnScript func(js string)

	lastHash string
	pending  *html.Node
}

// NewTemplateComponent validates the descriptor and the template source.
func NewTemplateComponent(d Descriptor, source TemplateSource) (*TemplateComponent, error) {
	base, err := NewBaseComponent(d)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, &Error{Code: ErrCodeMissingTemplate, Message: "template component has no template source"}
	}
	return &TemplateComponent{BaseComponent: base, source: source}, nil
}

// Watchers re-renders on any state change. Embedders narrowing to
// specific events override this and call RefreshTemplate from their own
// handlers.
func (t *TemplateComponent) Watchers() []Watcher {
	return []Watcher{{
		Watch: state.EventStateUpdated,
		Handler: func(ctx context.Context, ev state.Event) {
			t.RefreshTemplate()
		},
	}}
}

// StateReady renders the initial snapshot.
func (t *TemplateComponent) StateReady(ctx context.Context, m *state.Manager) {
	t.RefreshTemplate()
}

// RefreshTemplate queues a render at this component's nesting depth and
// requests a scheduler pass. Repeated calls before the pass coalesce at
// the scheduler.
func (t *TemplateComponent) RefreshTemplate() {
	if t.unregistered {
		return
	}
	sched := t.reactive.Scheduler()
	sched.Queue().Add(t.renderTask, vdom.NestingDepth(t.element))
	sched.Request()
}

// InjectContent stores a parent-rendered fragment and schedules its
// reconciliation. Injected content takes precedence over the component's
// own data on the next pass.
func (t *TemplateComponent) InjectContent(next *html.Node) {
	if next == nil {
		return
	}
	t.pending = next
	t.RefreshTemplate()
}

// renderTask is the queued unit of work. Stale work for unregistered or
// detached components degrades to a no-op or a self-cleanup; errors are
// routed to the notifier and never tear down the last-good DOM.
func (t *TemplateComponent) renderTask(ctx context.Context) error {
	if t.unregistered {
		return nil
	}
	if !t.reactive.Document().IsAttached(t.element) {
		t.Unregister()
		return nil
	}

	if next := t.pending; next != nil {
		t.pending = nil
		// A parent rendered this fragment for us; our own data snapshot
		// no longer matches what is on screen.
		t.lastHash = ""
		t.patch(next)
		return nil
	}

	data, err := t.source.TemplateData(t.reactive.State())
	if err != nil {
		t.reactive.notifier.Notify(ctx, "template data failed", err)
		return err
	}
	if data == nil {
		// Backing state is gone. The component removes itself.
		t.Remove()
		return nil
	}

	hash, err := canonical.Hash(data)
	if err != nil {
		t.reactive.notifier.Notify(ctx, "template data not hashable", err)
		return err
	}
	if hash == t.lastHash {
		return nil
	}

	renderer := t.reactive.Renderer()
	if renderer == nil {
		err := &Error{Code: ErrCodeMissingTemplate, Message: "no renderer configured"}
		t.reactive.notifier.Notify(ctx, "template render failed", err)
		return err
	}
	rendered, err := renderer.Render(ctx, t.source.TemplateName(), data)
	if err != nil {
		t.reactive.notifier.Notify(ctx, "template render failed", err)
		return err
	}
	next, err := dom.ParseFragment(rendered.HTML)
	if err != nil {
		t.reactive.notifier.Notify(ctx, "template produced invalid markup", err)
		return err
	}

	t.patch(next)
	t.lastHash = hash
	if rendered.JS != "" && t.OnScript != nil {
		t.OnScript(rendered.JS)
	}
	return nil
}

// patch reconciles next onto the live subtree and forwards any nested
// component boundaries to their owners for deferred reconciliation.
func (t *TemplateComponent) patch(next *html.Node) {
	result := vdom.Patch(t.element, next, vdom.Options{
		Self:          t.id,
		OwnerSelector: t.reactive.OwnerSelector,
	})
	for _, d := range result.Delegations {
		child, ok := t.reactive.componentByOwner(d.Owner)
		if !ok {
			continue
		}
		if inj, ok := child.(ContentInjector); ok {
			inj.InjectContent(d.Next)
		}
	}
}
