// Package vdom reconciles a freshly rendered markup fragment onto a live
// DOM subtree with minimal mutation.
//
// The differ honors three escape hatches, all expressed as data
// attributes on elements:
//
//   - data-reflow-refresh="static": the subtree is opaque; never diffed.
//   - data-reflow-refresh="inject": always patched, bypassing equality
//     short-circuits and form-state preservation. Parents use this to
//     force content into subcomponents.
//   - data-reflow-id="<hash>": the element belongs to another component.
//     When its owner's main selector still matches, the pair is handed
//     back for deferred self-reconciliation instead of being diffed in
//     place; when it no longer matches, the marker is stripped so the
//     element is rebuilt as a fresh component on the next pass.
//
// Elements carrying data-key participate in key-based reordering: a
// reordered keyed list relocates the existing DOM nodes instead of
// destroying and recreating them.
package vdom

import (
	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/dom"
)

// Data-attribute conventions consumed by the differ.
const (
	// KeyAttr is the stable-key attribute for list reordering.
	KeyAttr = "data-key"
	// OwnerAttr is the ownership-hash attribute marking component
	// boundaries.
	OwnerAttr = "data-reflow-id"
	// RefreshAttr selects the diff opt-out mode.
	RefreshAttr = "data-reflow-refresh"

	// RefreshStatic marks a subtree as opaque to the differ.
	RefreshStatic = "static"
	// RefreshInject forces patching regardless of identity checks.
	RefreshInject = "inject"
)

// protectedAttrs are component bookkeeping, not content: the differ never
// removes them even when absent from the virtual node.
var protectedAttrs = map[string]bool{
	OwnerAttr:   true,
	RefreshAttr: true,
}

// formStateAttrs mirror live user input on editable form fields. They are
// preserved unless the element explicitly opts into forced injection.
var formStateAttrs = map[string]bool{
	"value":    true,
	"checked":  true,
	"selected": true,
}

// formElements are the tags whose form-state attributes reflect user
// input.
var formElements = map[string]bool{
	"input":    true,
	"textarea": true,
	"select":   true,
	"option":   true,
}

// Delegation is a nested component boundary encountered during a patch:
// the live element, its corresponding virtual node, and the owner hash.
// The orchestrator hands the virtual node to the owning component for
// deferred self-reconciliation.
type Delegation struct {
	Live  *html.Node
	Next  *html.Node
	Owner string
}

// Options configure one patch pass.
type Options struct {
	// Self is the ownership hash of the component running the patch.
	// Nodes carrying Self are diffed in place, not delegated.
	Self string

	// OwnerSelector resolves an ownership hash to that component's main
	// selector. A nil func (or a false return) means the owner is
	// unknown, which strips the marker so the node rebuilds fresh.
	OwnerSelector func(owner string) (string, bool)
}

// Result reports what one patch pass did.
type Result struct {
	// Delegations lists nested component boundaries found, in document
	// order.
	Delegations []Delegation

	// Mutations counts actual DOM changes: attribute writes/removals,
	// node inserts, removals, moves, and text updates. A skipped static
	// subtree contributes zero.
	Mutations int
}

// RefreshMode returns the element's diff opt-out mode, "" when unset.
func RefreshMode(n *html.Node) string {
	mode, _ := dom.GetAttr(n, RefreshAttr)
	return mode
}

// NestingDepth counts the component boundaries above n: the number of
// ancestors carrying an ownership hash. Topmost components report 0. The
// scheduler uses this as the render weight, so parents settle before the
// children they may inject content into.
func NestingDepth(n *html.Node) int {
	depth := 0
	for p := n.Parent; p != nil; p = p.Parent {
		if _, ok := dom.GetAttr(p, OwnerAttr); ok {
			depth++
		}
	}
	return depth
}
