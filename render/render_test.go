package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/dom"
	"github.com/hazyhaar/actionwatch/security"
)

func descriptor() *action.Descriptor {
	return &action.Descriptor{
		Type:        action.TypeAction,
		Icon:        "https://cdn.example/icon.png",
		Title:       `Donate <script>alert(1)</script>`,
		Description: `Support <b>us</b> &amp; <a href="https://evil.example">friends</a>`,
		Label:       "Donate",
		URL:         "https://actions.example/api/donate",
		Links: &action.Links{Actions: []action.LinkedAction{
			{Href: "https://actions.example/api/donate/1", Label: "1 SOL"},
			{Href: "https://actions.example/api/donate/{amount}", Label: "Custom",
				Parameters: []action.Parameter{{Name: "amount", Label: "Amount", Required: true}}},
		}},
	}
}

func TestPresent_SanitisesAndHasNoAnchors(t *testing.T) {
	p := NewHTMLPresenter()
	root, err := p.Present(Payload{
		Descriptor: descriptor(),
		ActionURL:  "https://actions.example/api/donate",
		Branch:     "website",
		Policy:     security.DefaultPolicy(),
		State:      security.Trusted,
	})
	if err != nil {
		t.Fatal(err)
	}
	out := dom.OuterHTML(root)

	if strings.Contains(out, "<script") || strings.Contains(out, "<a ") || strings.Contains(out, "<b>") {
		t.Errorf("markup leaked: %s", out)
	}
	if len(dom.ElementsByTag(root, "a")) != 0 {
		t.Error("render root must not contain anchors")
	}
	if got := len(dom.ElementsByTag(root, "button")); got != 2 {
		t.Errorf("buttons: got %d, want 2", got)
	}
	inputs := dom.ElementsByTag(root, "input")
	if len(inputs) != 1 || dom.Attr(inputs[0], "name") != "amount" || !dom.HasAttr(inputs[0], "required") {
		t.Errorf("inputs: %s", out)
	}
	if !strings.Contains(out, "Support us &amp; friends") {
		t.Errorf("description text: %s", out)
	}
	if dom.Attr(root, "data-state") != "trusted" || dom.Attr(root, "data-branch") != "website" {
		t.Errorf("card attrs: %s", out)
	}
}

func TestPresent_SingleActionAndDisabled(t *testing.T) {
	d := &action.Descriptor{
		Icon:     "javascript:alert(1)",
		Title:    "Vote",
		Label:    "Vote yes",
		Disabled: true,
		Error:    &action.Error{Message: "Voting closed"},
		URL:      "https://actions.example/vote",
	}
	root, err := NewHTMLPresenter().Present(Payload{Descriptor: d})
	if err != nil {
		t.Fatal(err)
	}
	if len(dom.ElementsByTag(root, "img")) != 0 {
		t.Error("non-http icon must be dropped")
	}
	btns := dom.ElementsByTag(root, "button")
	if len(btns) != 1 {
		t.Fatalf("buttons: got %d", len(btns))
	}
	if !dom.HasAttr(btns[0], "disabled") || dom.Attr(btns[0], "data-href") != "https://actions.example/vote" {
		t.Errorf("button: %s", dom.OuterHTML(btns[0]))
	}
	if !strings.Contains(dom.TextContent(root), "Voting closed") {
		t.Error("error message missing")
	}
}

func TestPresent_NoDescriptor(t *testing.T) {
	if _, err := NewHTMLPresenter().Present(Payload{}); !errors.Is(err, ErrNoDescriptor) {
		t.Errorf("got %v", err)
	}
}
