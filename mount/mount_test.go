package mount

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/actionwatch/candidate"
	"github.com/hazyhaar/actionwatch/dom"
	"github.com/hazyhaar/actionwatch/idgen"
	"golang.org/x/net/html"
)

const page = `<html><body><div id="react-root">
<article data-testid="tweet" id="tweet">
  <div data-testid="tweetText"><a href="https://t.co/a">a</a></div>
  <div data-testid="card.wrapper" id="card"><a href="https://t.co/card">card</a></div>
</article>
<div id="dm"><div data-testid="messageEntry" id="entry"><div id="bubble"><div data-testid="tweetText" id="dmtext"><a href="https://t.co/dm">dm</a></div></div></div></div>
</div></body></html>`

func setup(t *testing.T) (*dom.Document, *candidate.Extractor, *Mounter, func(string) *html.Node) {
	t.Helper()
	doc, err := dom.ParseString(page, "https://x.com/home")
	if err != nil {
		t.Fatal(err)
	}
	byID := func(id string) *html.Node {
		var n *html.Node
		doc.View(func(root *html.Node) { n = dom.QuerySelector(root, dom.MustCompile("#"+id)) })
		if n == nil {
			t.Fatalf("no #%s", id)
		}
		return n
	}
	return doc, candidate.NewExtractor(candidate.X, NewMarks()), New(WithIDGenerator(idgen.Sequence("m"))), byID
}

func renderRoot(label string) *html.Node {
	root := dom.NewElement("div", "class", "action")
	root.AppendChild(dom.NewText(label))
	return root
}

func countWrappers(doc *dom.Document) int {
	var n int
	doc.View(func(root *html.Node) {
		n = len(dom.QuerySelectorAll(root, dom.MustCompile("."+candidate.DefaultWrapperClass)))
	})
	return n
}

func TestMount_CardScenario(t *testing.T) {
	// WHAT: A card mounts right after the card with only a top margin.
	doc, ex, m, byID := setup(t)
	c, ok := ex.Extract(doc, byID("card"))
	if !ok {
		t.Fatal("no candidate")
	}
	res, err := m.Mount(doc, c, renderRoot("donate"))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}

	card := byID("card")
	doc.View(func(*html.Node) {
		if dom.NextElement(card) != res.Wrapper {
			t.Error("wrapper should be the card's next sibling")
		}
		if got := dom.Style(res.Wrapper, "margin-top"); got != "12px" {
			t.Errorf("margin-top: got %q", got)
		}
		if got := dom.Style(res.Wrapper, "margin-bottom"); got != "" {
			t.Errorf("margin-bottom: got %q, want none", got)
		}
		if dom.TextContent(res.Wrapper) != "donate" {
			t.Errorf("content: got %q", dom.TextContent(res.Wrapper))
		}
	})
	if res.MountID != "m1" || res.Position != "after" || res.Message {
		t.Errorf("result: %+v", res)
	}
	if res.XPath != "/html/body/div/article/div[3]" {
		t.Errorf("xpath: got %q", res.XPath)
	}
}

func TestMount_DirectMessageScenario(t *testing.T) {
	// WHAT: A DM wrapper is prepended to the text's grandparent with both margins.
	doc, ex, m, byID := setup(t)
	c, ok := ex.Extract(doc, byID("dm"))
	if !ok {
		t.Fatal("no candidate")
	}
	res, err := m.Mount(doc, c, renderRoot("tip"))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	entry := byID("entry")
	doc.View(func(*html.Node) {
		if entry.FirstChild != res.Wrapper {
			t.Error("wrapper should be the first child of the message entry")
		}
		if got := dom.Style(res.Wrapper, "margin-top"); got != "12px" {
			t.Errorf("margin-top: got %q", got)
		}
		if got := dom.Style(res.Wrapper, "margin-bottom"); got != "8px" {
			t.Errorf("margin-bottom: got %q", got)
		}
		if !dom.HasClass(res.Wrapper, candidate.DefaultMessageClass) {
			t.Error("message class missing")
		}
	})
	if !res.Message || res.Position != "prepend" {
		t.Errorf("result: %+v", res)
	}
}

func TestMount_DoubleMountSupersedes(t *testing.T) {
	doc, ex, m, byID := setup(t)
	c, ok := ex.Extract(doc, byID("card"))
	if !ok {
		t.Fatal("no candidate")
	}
	first, err := m.Mount(doc, c, renderRoot("first"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Mount(doc, c, renderRoot("second"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Wrapper != second.Wrapper || !second.Reused {
		t.Error("second mount should reuse the wrapper")
	}
	if second.MountID != first.MountID {
		t.Errorf("mount id changed: %q -> %q", first.MountID, second.MountID)
	}
	if n := countWrappers(doc); n != 1 {
		t.Errorf("wrappers: got %d, want 1", n)
	}
	doc.View(func(*html.Node) {
		if got := dom.TextContent(second.Wrapper); got != "second" {
			t.Errorf("content: got %q, want only the second render", got)
		}
		if kids := dom.ElementChildren(second.Wrapper); len(kids) != 1 {
			t.Errorf("children: got %d, want 1", len(kids))
		}
	})
}

func TestMount_CardReplacesExistingWrapper(t *testing.T) {
	src := `<html><body><article data-testid="tweet">
	<div class="actionwatch-root" id="old" data-mount-id="stale"><span>old</span></div>
	<div data-testid="card.wrapper" id="card"><a href="https://t.co/c">c</a></div>
	</article></body></html>`
	doc, err := dom.ParseString(src, "https://x.com/")
	if err != nil {
		t.Fatal(err)
	}
	var card *html.Node
	doc.View(func(root *html.Node) { card = dom.QuerySelector(root, dom.MustCompile("#card")) })

	ex := candidate.NewExtractor(candidate.X, NewMarks())
	c, ok := ex.Extract(doc, card)
	if !ok || c.Existing == nil {
		t.Fatal("expected candidate with existing wrapper")
	}
	res, err := New(WithIDGenerator(idgen.Sequence("n"))).Mount(doc, c, renderRoot("new"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Replaced) != 1 || res.Reused {
		t.Errorf("result: %+v", res)
	}
	if n := countWrappers(doc); n != 1 {
		t.Errorf("wrappers: got %d, want 1", n)
	}
	if !strings.Contains(doc.Render(), `data-mount-id="n1"`) || strings.Contains(doc.Render(), "stale") {
		t.Error("old wrapper should be gone and new one present")
	}
}

func TestMount_TextYieldsToCard(t *testing.T) {
	// WHAT: A text candidate extracted before the card mounted is refused afterwards.
	doc, ex, m, byID := setup(t)
	text := dom.ElementChildren(byID("tweet"))[0]
	ct, ok := ex.Extract(doc, text)
	if !ok || ct.Kind != candidate.Text {
		t.Fatalf("text candidate: %+v", ct)
	}
	cc, ok := ex.Extract(doc, byID("card"))
	if !ok {
		t.Fatal("no card candidate")
	}
	if _, err := m.Mount(doc, cc, renderRoot("card")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Mount(doc, ct, renderRoot("text")); !errors.Is(err, ErrTaken) {
		t.Errorf("expected ErrTaken, got %v", err)
	}
	if n := countWrappers(doc); n != 1 {
		t.Errorf("wrappers: got %d, want 1", n)
	}
	if strings.Contains(doc.Render(), ">text<") {
		t.Error("text render should not be mounted")
	}
}

func TestMount_CardTakesOverTextWrapper(t *testing.T) {
	// WHAT: A card mounted after a text wrapper appeared in its post ends with the only wrapper.
	doc, ex, m, byID := setup(t)
	cc, ok := ex.Extract(doc, byID("card"))
	if !ok || cc.Existing != nil {
		t.Fatalf("card candidate: %+v", cc)
	}
	ct, ok := ex.Extract(doc, dom.ElementChildren(byID("tweet"))[0])
	if !ok {
		t.Fatal("no text candidate")
	}
	if _, err := m.Mount(doc, ct, renderRoot("text")); err != nil {
		t.Fatal(err)
	}
	res, err := m.Mount(doc, cc, renderRoot("card"))
	if err != nil {
		t.Fatal(err)
	}
	if n := countWrappers(doc); n != 1 {
		t.Errorf("wrappers: got %d, want 1", n)
	}
	card := byID("card")
	doc.View(func(*html.Node) {
		if dom.NextElement(card) != res.Wrapper {
			t.Error("wrapper should be the card's next sibling")
		}
		if got := dom.TextContent(res.Wrapper); got != "card" {
			t.Errorf("content: got %q", got)
		}
	})
}

func TestMount_Detached(t *testing.T) {
	doc, ex, m, byID := setup(t)
	c, ok := ex.Extract(doc, byID("card"))
	if !ok {
		t.Fatal("no candidate")
	}
	tweet := byID("tweet")
	doc.Update(func(mu *dom.Mutator) { mu.Remove(tweet) })

	if _, err := m.Mount(doc, c, renderRoot("x")); !errors.Is(err, ErrDetached) {
		t.Errorf("expected ErrDetached, got %v", err)
	}
	if countWrappers(doc) != 0 {
		t.Error("no wrapper should be created")
	}
}

func TestMarks_ClaimOnce(t *testing.T) {
	m := NewMarks()
	n := dom.NewElement("div")
	if !m.Claim(n) {
		t.Fatal("first claim should succeed")
	}
	if m.Claim(n) {
		t.Fatal("second claim should fail")
	}
	if !m.Has(n) || m.Len() != 1 {
		t.Errorf("Has=%v Len=%d", m.Has(n), m.Len())
	}
	if m.Has(dom.NewElement("div")) {
		t.Error("unclaimed node reported as claimed")
	}
	runtime.KeepAlive(n)
}

//go:noinline
func claimFresh(m *Marks) {
	m.Claim(dom.NewElement("div"))
}

func TestMarks_CollectedNodesAreForgotten(t *testing.T) {
	m := NewMarks()
	claimFresh(m)
	if m.Len() != 1 {
		t.Fatalf("Len: got %d", m.Len())
	}
	deadline := time.Now().Add(5 * time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("entry not removed after collection")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}
