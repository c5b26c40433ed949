// Package dom wraps golang.org/x/net/html nodes with the small slice of
// document behavior the reactive core needs: fragment parsing, attribute
// access, attachment checks, and a per-document listener registry with
// non-bubbling event delivery.
//
// The package owns no rendering logic. It exists so components and the
// differ can share one notion of "the live tree" without reaching for a
// browser.
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment parses markup that must contain exactly one root element.
// Leading and trailing whitespace-only text is tolerated and dropped.
func ParseFragment(markup string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	var root *html.Node
	for _, n := range nodes {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" {
			continue
		}
		if root != nil {
			return nil, fmt.Errorf("parse fragment: multiple root nodes")
		}
		root = n
	}
	if root == nil {
		return nil, fmt.Errorf("parse fragment: empty markup")
	}
	if root.Type != html.ElementNode {
		return nil, fmt.Errorf("parse fragment: root is not an element")
	}
	Detach(root)
	return root, nil
}

// Render serializes a node back to markup.
func Render(n *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// GetAttr returns the attribute value and whether it exists.
func GetAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr adds or updates an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Contains reports whether n is root or a descendant of root.
func Contains(root, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

// Clone deep-copies a node subtree, detached from any parent.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	c.Attr = append([]html.Attribute(nil), n.Attr...)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// ChildElements returns the element children of n.
func ChildElements(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Children returns all child nodes of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Matches reports whether n satisfies a minimal selector: "tag",
// "#id", ".class", "[attr]" or "[attr=value]", optionally combined like
// "div.foo[data-x=1]". This covers the component main selectors the core
// uses for ownership checks; it is not a general CSS engine.
func Matches(n *html.Node, selector string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false
	}

	rest := selector
	// Leading tag name.
	if i := strings.IndexAny(rest, "#.["); i != 0 {
		tag := rest
		if i > 0 {
			tag = rest[:i]
			rest = rest[i:]
		} else {
			rest = ""
		}
		if !strings.EqualFold(n.Data, tag) {
			return false
		}
	}

	for rest != "" {
		switch rest[0] {
		case '#':
			end := nextToken(rest[1:])
			id, _ := GetAttr(n, "id")
			if id != rest[1:1+end] {
				return false
			}
			rest = rest[1+end:]
		case '.':
			end := nextToken(rest[1:])
			class, _ := GetAttr(n, "class")
			if !hasClass(class, rest[1:1+end]) {
				return false
			}
			rest = rest[1+end:]
		case '[':
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return false
			}
			expr := rest[1:close]
			rest = rest[close+1:]
			key, val, hasVal := strings.Cut(expr, "=")
			val = strings.Trim(val, `"'`)
			got, ok := GetAttr(n, key)
			if !ok {
				return false
			}
			if hasVal && got != val {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func nextToken(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' || s[i] == '.' || s[i] == '[' {
			return i
		}
	}
	return len(s)
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}
