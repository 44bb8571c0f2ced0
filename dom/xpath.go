package dom

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// XPath returns a positional XPath for an element, in the same shape the
// live-page script computes: "/html/body/div[2]/span". The index is only
// emitted when the parent has more than one child with that tag.
func XPath(n *html.Node) string {
	var parts []string
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		parts = append(parts, step(p))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func step(n *html.Node) string {
	if n.Parent == nil {
		return n.Data
	}
	idx, total := 0, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode || s.Data != n.Data {
			continue
		}
		total++
		if s == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", n.Data, idx)
	}
	return n.Data
}

// FindXPath resolves an XPath produced by XPath against root. It returns nil
// when any step is missing.
func FindXPath(root *html.Node, xpath string) *html.Node {
	segs := strings.Split(strings.Trim(xpath, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return nil
	}
	cur := root
	for _, seg := range segs {
		tag, idx := parseStep(seg)
		if tag == "" {
			return nil
		}
		var next *html.Node
		count := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				count++
				if count == idx {
					next = c
					break
				}
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func parseStep(seg string) (string, int) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, 1
	}
	if !strings.HasSuffix(seg, "]") {
		return "", 0
	}
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || idx < 1 {
		return "", 0
	}
	return seg[:open], idx
}
