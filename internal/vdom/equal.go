package vdom

import (
	"golang.org/x/net/html"
)

// nodeEqual reports deep structural equality: node kind, tag or text
// data, attribute sets (order-insensitive), and children recursively.
func nodeEqual(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Data != b.Data {
		return false
	}
	if a.Type == html.ElementNode && !attrsEqual(a.Attr, b.Attr) {
		return false
	}

	ac, bc := a.FirstChild, b.FirstChild
	for ac != nil && bc != nil {
		if !nodeEqual(ac, bc) {
			return false
		}
		ac, bc = ac.NextSibling, bc.NextSibling
	}
	return ac == nil && bc == nil
}

func attrsEqual(a, b []html.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[string]string, len(a))
	for _, attr := range a {
		am[attr.Key] = attr.Val
	}
	for _, attr := range b {
		if val, ok := am[attr.Key]; !ok || val != attr.Val {
			return false
		}
	}
	return true
}
