package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Style returns the value of one inline style property, or "".
func Style(n *html.Node, prop string) string {
	for _, d := range parseStyle(Attr(n, "style")) {
		if d[0] == prop {
			return d[1]
		}
	}
	return ""
}

// SetStyle sets one inline style property, keeping the others in order.
func SetStyle(n *html.Node, prop, val string) {
	decls := parseStyle(Attr(n, "style"))
	found := false
	for i, d := range decls {
		if d[0] == prop {
			decls[i][1] = val
			found = true
		}
	}
	if !found {
		decls = append(decls, [2]string{prop, val})
	}

	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d[0]+": "+d[1])
	}
	SetAttr(n, "style", strings.Join(parts, "; "))
}

func parseStyle(s string) [][2]string {
	var out [][2]string
	for _, decl := range strings.Split(s, ";") {
		colon := strings.IndexByte(decl, ':')
		if colon < 0 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(decl[:colon]))
		if prop == "" {
			continue
		}
		out = append(out, [2]string{prop, strings.TrimSpace(decl[colon+1:])})
	}
	return out
}
