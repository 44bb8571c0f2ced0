package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selector is a compiled subset of CSS selectors:
//   - tag: "div", "a", "*"
//   - .class (repeatable): ".post.pinned"
//   - #id: "#react-root"
//   - [attr] and [attr=val]: `[data-testid="card.wrapper"]`
//   - descendant combinator (space): "article .text"
//   - groups (comma): ".post, .message"
//
// The zero Selector matches nothing.
type Selector struct {
	src    string
	groups [][]compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	key    string
	val    string
	hasVal bool
}

// Compile parses a selector.
func Compile(src string) (Selector, error) {
	s := Selector{src: src}
	for _, group := range splitOutside(src, ',') {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		var chain []compound
		for _, part := range splitSpaces(group) {
			c, err := parseCompound(part)
			if err != nil {
				return Selector{}, fmt.Errorf("dom: selector %q: %w", src, err)
			}
			chain = append(chain, c)
		}
		s.groups = append(s.groups, chain)
	}
	return s, nil
}

// MustCompile is Compile that panics on error. For package-level selectors.
func MustCompile(src string) Selector {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the selector source.
func (s Selector) String() string { return s.src }

// Empty reports whether the selector has no groups.
func (s Selector) Empty() bool { return len(s.groups) == 0 }

// Match reports whether n matches any group. Descendant parts are checked
// against n's ancestors.
func (s Selector) Match(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	for _, chain := range s.groups {
		if matchChain(n, chain) {
			return true
		}
	}
	return false
}

func matchChain(n *html.Node, chain []compound) bool {
	last := len(chain) - 1
	if !chain[last].match(n) {
		return false
	}
	// Walk ancestors right to left; each remaining part must match some
	// ancestor above the previous match.
	p := n.Parent
	for i := last - 1; i >= 0; i-- {
		for p != nil && !chain[i].match(p) {
			p = p.Parent
		}
		if p == nil {
			return false
		}
		p = p.Parent
	}
	return true
}

func (c compound) match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && Attr(n, "id") != c.id {
		return false
	}
	for _, cls := range c.classes {
		if !HasClass(n, cls) {
			return false
		}
	}
	for _, a := range c.attrs {
		if !HasAttr(n, a.key) {
			return false
		}
		if a.hasVal && Attr(n, a.key) != a.val {
			return false
		}
	}
	return true
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	for i < len(s) {
		switch s[i] {
		case '#':
			name, n := readIdent(s[i+1:])
			if name == "" {
				return c, fmt.Errorf("empty id at %d", i)
			}
			c.id = name
			i += 1 + n
		case '.':
			name, n := readIdent(s[i+1:])
			if name == "" {
				return c, fmt.Errorf("empty class at %d", i)
			}
			c.classes = append(c.classes, name)
			i += 1 + n
		case '[':
			end := closingBracket(s, i)
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute at %d", i)
			}
			c.attrs = append(c.attrs, parseAttr(s[i+1:end]))
			i = end + 1
		default:
			name, n := readIdent(s[i:])
			if n == 0 {
				return c, fmt.Errorf("unexpected %q at %d", s[i], i)
			}
			c.tag = strings.ToLower(name)
			i += n
		}
	}
	return c, nil
}

func parseAttr(body string) attrMatch {
	eq := strings.IndexByte(body, '=')
	if eq < 0 {
		return attrMatch{key: strings.TrimSpace(body)}
	}
	return attrMatch{
		key:    strings.TrimSpace(body[:eq]),
		val:    strings.Trim(strings.TrimSpace(body[eq+1:]), `"'`),
		hasVal: true,
	}
}

func readIdent(s string) (string, int) {
	n := 0
	for n < len(s) {
		ch := s[n]
		if ch == '*' || ch == '-' || ch == '_' ||
			(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			n++
			continue
		}
		break
	}
	return s[:n], n
}

// closingBracket finds the ']' matching the '[' at open, skipping quotes.
func closingBracket(s string, open int) int {
	var quote byte
	for i := open + 1; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == ']':
			return i
		}
	}
	return -1
}

// splitOutside splits on sep when not inside brackets or quotes.
func splitOutside(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func splitSpaces(s string) []string {
	var out []string
	for _, p := range splitOutside(s, ' ') {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
