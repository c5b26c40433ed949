package vdom

import (
	"golang.org/x/net/html"

	"github.com/roach88/reflow/internal/dom"
)

// Patch reconciles the live subtree with the virtual one. The virtual
// tree is never mutated; the live tree is edited in place with as few
// mutations as the algorithm can prove safe.
func Patch(live, next *html.Node, opts Options) *Result {
	res := &Result{}
	patchNode(live, next, opts, res)
	return res
}

func patchNode(live, next *html.Node, opts Options, res *Result) {
	if live == nil || next == nil {
		return
	}

	// Static subtrees are opaque, whichever side carries the marker.
	if RefreshMode(live) == RefreshStatic || RefreshMode(next) == RefreshStatic {
		return
	}

	// A node owned by a different component is handed back for deferred
	// self-reconciliation, provided the owner's selector still matches.
	// Otherwise the marker is stripped so the element rebuilds fresh.
	if owner, ok := dom.GetAttr(live, OwnerAttr); ok && owner != opts.Self {
		selector := ""
		known := false
		if opts.OwnerSelector != nil {
			selector, known = opts.OwnerSelector(owner)
		}
		if known && dom.Matches(live, selector) {
			res.Delegations = append(res.Delegations, Delegation{Live: live, Next: next, Owner: owner})
			return
		}
		dom.RemoveAttr(live, OwnerAttr)
		res.Mutations++
	}

	forced := RefreshMode(live) == RefreshInject || RefreshMode(next) == RefreshInject

	// An empty live node adopts the virtual children wholesale.
	if live.FirstChild == nil && next.FirstChild != nil {
		patchAttributes(live, next, forced, res)
		for _, c := range dom.Children(next) {
			live.AppendChild(dom.Clone(c))
			res.Mutations++
		}
		return
	}

	// Structurally identical subtrees are skipped, unless injection is
	// forced.
	if !forced && nodeEqual(live, next) {
		return
	}

	patchAttributes(live, next, forced, res)
	reorderKeyedChildren(live, next, res)

	// Trim excess live children beyond the virtual count.
	nextChildren := dom.Children(next)
	for {
		liveChildren := dom.Children(live)
		if len(liveChildren) <= len(nextChildren) {
			break
		}
		live.RemoveChild(liveChildren[len(liveChildren)-1])
		res.Mutations++
	}

	for i, nextChild := range nextChildren {
		liveChildren := dom.Children(live)
		if i >= len(liveChildren) {
			live.AppendChild(dom.Clone(nextChild))
			res.Mutations++
			continue
		}
		liveChild := liveChildren[i]

		if !sameNodeType(liveChild, nextChild) {
			live.InsertBefore(dom.Clone(nextChild), liveChild)
			live.RemoveChild(liveChild)
			res.Mutations++
			continue
		}

		if liveChild.Type == html.TextNode {
			if liveChild.Data != nextChild.Data {
				liveChild.Data = nextChild.Data
				res.Mutations++
			}
			continue
		}

		patchNode(liveChild, nextChild, opts, res)
	}
}

// sameNodeType reports whether two nodes can be patched in place: same
// node kind, and for elements the same tag.
func sameNodeType(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == html.ElementNode && a.Data != b.Data {
		return false
	}
	return true
}

// reorderKeyedChildren relocates live children carrying a stable key to
// match the virtual order, avoiding destroy/recreate for reordered list
// items. Unkeyed children are left for positional patching.
func reorderKeyedChildren(live, next *html.Node, res *Result) {
	liveByKey := make(map[string]*html.Node)
	for _, c := range dom.ChildElements(live) {
		if key, ok := dom.GetAttr(c, KeyAttr); ok {
			liveByKey[key] = c
		}
	}
	if len(liveByKey) == 0 {
		return
	}

	nextChildren := dom.Children(next)
	for i, nextChild := range nextChildren {
		if nextChild.Type != html.ElementNode {
			continue
		}
		key, ok := dom.GetAttr(nextChild, KeyAttr)
		if !ok {
			continue
		}
		desired, ok := liveByKey[key]
		if !ok {
			continue
		}
		liveChildren := dom.Children(live)
		if i < len(liveChildren) && liveChildren[i] == desired {
			continue
		}
		// Move the existing node into position; identity is preserved.
		dom.Detach(desired)
		liveChildren = dom.Children(live)
		if i < len(liveChildren) {
			live.InsertBefore(desired, liveChildren[i])
		} else {
			live.AppendChild(desired)
		}
		res.Mutations++
	}
}

// patchAttributes adds, updates, and removes attributes on the live
// element. Protected attributes are never removed, and form-state
// attributes on editable fields are preserved unless injection is
// forced.
func patchAttributes(live, next *html.Node, forced bool, res *Result) {
	if live.Type != html.ElementNode || next.Type != html.ElementNode {
		return
	}
	preserveFormState := formElements[live.Data] && !forced

	nextAttrs := make(map[string]string, len(next.Attr))
	for _, a := range next.Attr {
		nextAttrs[a.Key] = a.Val
	}

	// Remove live attributes absent from the virtual node.
	for _, a := range append([]html.Attribute(nil), live.Attr...) {
		if _, keep := nextAttrs[a.Key]; keep {
			continue
		}
		if protectedAttrs[a.Key] {
			continue
		}
		if preserveFormState && formStateAttrs[a.Key] {
			continue
		}
		dom.RemoveAttr(live, a.Key)
		res.Mutations++
	}

	// Add or update from the virtual node, in document order so repeated
	// patches serialize identically.
	for _, a := range next.Attr {
		key, val := a.Key, a.Val
		if current, ok := dom.GetAttr(live, key); ok && current == val {
			continue
		}
		if preserveFormState && formStateAttrs[key] {
			if _, ok := dom.GetAttr(live, key); ok {
				continue
			}
		}
		dom.SetAttr(live, key, val)
		res.Mutations++
	}
}
