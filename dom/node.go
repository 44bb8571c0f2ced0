package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NewElement creates a detached element. Attributes are given as
// alternating key, value pairs.
func NewElement(tag string, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

// NewText creates a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Attr returns the value of an attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries the attribute.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute in place.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass reports whether the class attribute contains cls.
func HasClass(n *html.Node, cls string) bool {
	if !IsElement(n) {
		return false
	}
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == cls {
			return true
		}
	}
	return false
}

// AddClass appends cls to the class attribute if missing.
func AddClass(n *html.Node, cls string) {
	if HasClass(n, cls) {
		return
	}
	cur := strings.TrimSpace(Attr(n, "class"))
	if cur == "" {
		SetAttr(n, "class", cls)
		return
	}
	SetAttr(n, "class", cur+" "+cls)
}

// Contains reports whether n is ancestor itself or one of its descendants.
func Contains(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// ElementChildren returns the element children of n in order.
func ElementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// NextElement returns the next element sibling of n.
func NextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// PrevElement returns the previous element sibling of n.
func PrevElement(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// ElementsByTag returns every descendant element (not n itself) with the
// given tag, in document order.
func ElementsByTag(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walk(n, func(c *html.Node) {
		if c != n && c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	})
	return out
}

// Closest returns the nearest inclusive ancestor of n matching sel.
func Closest(n *html.Node, sel Selector) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if sel.Match(p) {
			return p
		}
	}
	return nil
}

// QuerySelector returns the first descendant of n (excluding n) matching sel.
func QuerySelector(n *html.Node, sel Selector) *html.Node {
	var found *html.Node
	walkUntil(n, func(c *html.Node) bool {
		if c != n && sel.Match(c) {
			found = c
			return true
		}
		return false
	})
	return found
}

// QuerySelectorAll returns every descendant of n (excluding n) matching sel.
func QuerySelectorAll(n *html.Node, sel Selector) []*html.Node {
	var out []*html.Node
	walk(n, func(c *html.Node) {
		if c != n && sel.Match(c) {
			out = append(out, c)
		}
	})
	return out
}

// FindSelf returns n when it matches sel, otherwise its first matching
// descendant.
func FindSelf(n *html.Node, sel Selector) *html.Node {
	if sel.Match(n) {
		return n
	}
	return QuerySelector(n, sel)
}

// TextContent concatenates all descendant text.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

// OuterHTML renders n and its subtree.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// walkUntil stops as soon as fn returns true.
func walkUntil(n *html.Node, fn func(*html.Node) bool) bool {
	if fn(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if walkUntil(c, fn) {
			return true
		}
	}
	return false
}

// Walk visits n and every descendant in document order.
func Walk(n *html.Node, fn func(*html.Node)) {
	walk(n, fn)
}
