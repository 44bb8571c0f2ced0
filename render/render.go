// Package render turns an approved action into the subtree mounted in the
// page. The presentation layer is replaceable; HTMLPresenter is a plain,
// script-free rendition suitable for mirrored documents and sink payloads.
package render

import (
	"errors"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/dom"
	"github.com/hazyhaar/actionwatch/security"
)

// ErrNoDescriptor is returned when a payload has no descriptor.
var ErrNoDescriptor = errors.New("render: no descriptor")

// Payload is everything the presentation layer receives for one mount.
type Payload struct {
	Descriptor  *action.Descriptor
	OriginalURL string
	ActionURL   string
	Branch      string
	Policy      security.Policy
	State       security.TrustState
}

// Presenter builds the render root for a payload.
type Presenter interface {
	Present(p Payload) (*html.Node, error)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(p Payload) (*html.Node, error)

// Present calls f.
func (f PresenterFunc) Present(p Payload) (*html.Node, error) { return f(p) }

// Class names used by HTMLPresenter.
const (
	ClassCard        = "actionwatch-card"
	ClassIcon        = "actionwatch-icon"
	ClassTitle       = "actionwatch-title"
	ClassDescription = "actionwatch-description"
	ClassError       = "actionwatch-error"
	ClassActions     = "actionwatch-actions"
	ClassButton      = "actionwatch-button"
	ClassInput       = "actionwatch-input"
)

// HTMLPresenter renders descriptors as inert markup. Descriptor text is
// stripped of markup, icons are limited to http(s), and no anchors are
// produced, so the mounted subtree never becomes a new candidate.
type HTMLPresenter struct {
	policy *bluemonday.Policy
}

// NewHTMLPresenter creates a presenter.
func NewHTMLPresenter() *HTMLPresenter {
	return &HTMLPresenter{policy: bluemonday.StrictPolicy()}
}

// Present builds the card.
func (p *HTMLPresenter) Present(pl Payload) (*html.Node, error) {
	d := pl.Descriptor
	if d == nil {
		return nil, ErrNoDescriptor
	}

	card := dom.NewElement("div",
		"class", ClassCard,
		"data-action-url", pl.ActionURL,
		"data-branch", pl.Branch,
		"data-state", string(pl.State),
		"data-type", d.Type,
	)

	if icon := safeIcon(d.Icon); icon != "" {
		card.AppendChild(dom.NewElement("img", "class", ClassIcon, "src", icon, "alt", ""))
	}
	card.AppendChild(p.textBlock(ClassTitle, d.Title))
	if d.Description != "" {
		card.AppendChild(p.textBlock(ClassDescription, d.Description))
	}
	if d.Error != nil && d.Error.Message != "" {
		card.AppendChild(p.textBlock(ClassError, d.Error.Message))
	}

	actions := dom.NewElement("div", "class", ClassActions)
	linked := []action.LinkedAction{{Href: d.URL, Label: d.Label}}
	if d.Links != nil && len(d.Links.Actions) > 0 {
		linked = d.Links.Actions
	}
	for _, la := range linked {
		for _, param := range la.Parameters {
			in := dom.NewElement("input",
				"class", ClassInput,
				"name", p.clean(param.Name),
				"placeholder", p.clean(param.Label))
			if param.Required {
				dom.SetAttr(in, "required", "")
			}
			actions.AppendChild(in)
		}
		btn := dom.NewElement("button", "class", ClassButton, "type", "button", "data-href", la.Href)
		if d.Disabled || d.Type == action.TypeCompleted {
			dom.SetAttr(btn, "disabled", "")
		}
		btn.AppendChild(dom.NewText(p.clean(la.Label)))
		actions.AppendChild(btn)
	}
	card.AppendChild(actions)
	return card, nil
}

func (p *HTMLPresenter) textBlock(class, text string) *html.Node {
	n := dom.NewElement("div", "class", class)
	n.AppendChild(dom.NewText(p.clean(text)))
	return n
}

// clean strips markup. The result is plain text; escaping happens when the
// tree is rendered.
func (p *HTMLPresenter) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(p.policy.Sanitize(s)))
}

func safeIcon(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
