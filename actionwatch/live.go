package actionwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ysmood/gson"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/actionwatch/internal/browser"
	"github.com/hazyhaar/actionwatch/actionwatch/internal/sink"
	"github.com/hazyhaar/actionwatch/candidate"
	"github.com/hazyhaar/actionwatch/dom"
)

const bindingName = "__actionwatchAdded"

// observerJS reports every element inserted outside a wrapper, with the
// XPath of its parent in the shape dom.XPath produces.
const observerJS = `(wrapperClass, binding) => {
	if (window.__actionwatchObserver) return;
	const xpath = (n) => {
		const parts = [];
		for (; n && n.nodeType === 1; n = n.parentElement) {
			const tag = n.localName;
			const p = n.parentElement;
			if (!p) { parts.unshift(tag); break; }
			const same = Array.from(p.children).filter((c) => c.localName === tag);
			parts.unshift(same.length > 1 ? tag + '[' + (same.indexOf(n) + 1) + ']' : tag);
		}
		return '/' + parts.join('/');
	};
	const obs = new MutationObserver((muts) => {
		for (const m of muts) {
			if (m.target.nodeType !== 1) continue;
			for (const n of m.addedNodes) {
				if (n.nodeType !== 1 || !n.isConnected || n.closest('.' + wrapperClass)) continue;
				window[binding](JSON.stringify({
					parent: xpath(m.target),
					index: Array.from(m.target.children).indexOf(n),
					html: n.outerHTML,
				}));
			}
		}
	});
	obs.observe(document.documentElement, {childList: true, subtree: true});
	window.__actionwatchObserver = obs;
}`

// mountJS replays an Instruction. Nodes are located before any change so
// that the recorded XPaths still hold.
const mountJS = `(ins) => {
	const at = (p) => p ? document.evaluate(p, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue : null;
	const ref = at(ins.ref_xpath);
	const replaced = (ins.replaced || []).map(at).filter(Boolean);
	if (!ref) return false;
	const tpl = document.createElement('template');
	tpl.innerHTML = ins.wrapper_html;
	const wrapper = tpl.content.firstElementChild;
	if (!wrapper) return false;
	replaced.forEach((n) => n.remove());
	const cls = wrapper.classList[0];
	const near = {
		after: () => ref.nextElementSibling,
		before: () => ref.previousElementSibling,
		prepend: () => ref.firstElementChild,
		append: () => ref.lastElementChild,
	}[ins.position] || (() => null);
	const existing = near();
	if (existing && existing.classList.contains(cls)) {
		existing.replaceWith(wrapper);
		return true;
	}
	switch (ins.position) {
	case 'after': ref.after(wrapper); break;
	case 'before': ref.before(wrapper); break;
	case 'prepend': ref.prepend(wrapper); break;
	default: ref.append(wrapper);
	}
	return true;
}`

// Browser runs live observation of real pages in Chrome.
type Browser struct {
	mgr    *browser.Manager
	logger *slog.Logger
}

// NewBrowser creates a Browser. Call Start before Observe.
func NewBrowser(cfg BrowserConfig, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Remote,
			Stealth:          cfg.Stealth,
			ResourceBlocking: cfg.ResourceBlocking,
			NavTimeout:       cfg.NavTimeout,
			Logger:           logger,
		}),
		logger: logger,
	}
}

// Start launches or connects to Chrome.
func (b *Browser) Start(ctx context.Context) error {
	_, err := b.mgr.Start(ctx)
	return err
}

// Close shuts Chrome down.
func (b *Browser) Close() error { return b.mgr.Close() }

// Live is one observed tab. The tab's document is mirrored into a
// dom.Document; insertions in the tab are replayed into the mirror, where
// the Watcher dispatches them, and mounts are replayed back into the tab.
type Live struct {
	tab     *browser.Tab
	watcher *Watcher
	mirror  *mirror
	unbind  func() error
	logger  *slog.Logger
}

// Observe opens page in a new tab, sweeps what is already there, and
// watches further insertions until ctx is cancelled or Stop is called.
func (b *Browser) Observe(ctx context.Context, page PageConfig, adapter action.Adapter, cb Callbacks, opts ...Option) (*Live, error) {
	tab, err := b.mgr.OpenTab(ctx, page.URL, page.ID)
	if err != nil {
		return nil, fmt.Errorf("actionwatch: open tab: %w", err)
	}
	src, err := tab.OuterHTML(ctx)
	if err != nil {
		tab.Close()
		return nil, err
	}
	doc, err := dom.ParseString(src, page.URL)
	if err != nil {
		tab.Close()
		return nil, err
	}

	opts = append(opts, WithSinks(&pageSink{tab: tab}))
	if page.Platform != "" {
		if p, ok := candidate.Lookup(page.Platform); ok {
			opts = append(opts, WithPlatform(p))
		}
	}
	w, err := New(doc, adapter, cb, opts...)
	if err != nil {
		tab.Close()
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		tab.Close()
		return nil, err
	}

	l := &Live{tab: tab, watcher: w, mirror: &mirror{doc: doc}, logger: b.logger}
	l.unbind, err = tab.Page.Expose(bindingName, func(j gson.JSON) (any, error) {
		if err := l.mirror.applyJSON(j.Str()); err != nil {
			l.logger.Debug("live: mirror insert skipped", "page", page.URL, "error", err)
		}
		return nil, nil
	})
	if err != nil {
		l.Stop()
		return nil, fmt.Errorf("actionwatch: expose binding: %w", err)
	}
	if _, err := tab.Page.Context(ctx).Eval(observerJS, wrapperClassOf(w.opts.platform), bindingName); err != nil {
		l.Stop()
		return nil, fmt.Errorf("actionwatch: inject observer: %w", err)
	}

	if _, err := w.Sweep(ctx); err != nil {
		b.logger.Warn("live: initial sweep", "page", page.URL, "error", err)
	}
	b.logger.Info("live: observing page", "url", page.URL, "id", page.ID)
	return l, nil
}

// Watcher returns the watcher dispatching the mirrored insertions.
func (l *Live) Watcher() *Watcher { return l.watcher }

// Stop stops observation and closes the tab.
func (l *Live) Stop() {
	if l.unbind != nil {
		if err := l.unbind(); err != nil {
			l.logger.Debug("live: unbind", "error", err)
		}
	}
	l.watcher.Stop()
	l.tab.Close()
}

func wrapperClassOf(p candidate.Platform) string {
	if p.WrapperClass != "" {
		return p.WrapperClass
	}
	return candidate.DefaultWrapperClass
}

// addedEvent is what the injected observer reports per inserted element.
type addedEvent struct {
	Parent string `json:"parent"`
	Index  int    `json:"index"`
	HTML   string `json:"html"`
}

// mirror applies tab insertions to the mirrored document.
type mirror struct {
	doc *dom.Document
}

func (m *mirror) applyJSON(raw string) error {
	var ev addedEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return m.apply(ev)
}

func (m *mirror) apply(ev addedEvent) error {
	nodes, err := dom.ParseFragment(ev.HTML)
	if err != nil {
		return err
	}
	var applied bool
	m.doc.Update(func(mu *dom.Mutator) {
		parent := dom.FindXPath(mu.Root(), ev.Parent)
		if parent == nil {
			return
		}
		idx := ev.Index
		for _, n := range nodes {
			if !dom.IsElement(n) {
				continue
			}
			mu.InsertAt(parent, n, idx)
			idx++
			applied = true
		}
	})
	if !applied {
		return fmt.Errorf("parent %s not found or empty fragment", ev.Parent)
	}
	return nil
}

// pageSink replays mounts into the live tab.
type pageSink struct {
	tab *browser.Tab
}

func (s *pageSink) Send(ctx context.Context, ins sink.Instruction) error {
	res, err := s.tab.Page.Context(ctx).Eval(mountJS, ins)
	if err != nil {
		return fmt.Errorf("live: replay mount: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("live: mount reference %s not found in page", ins.RefXPath)
	}
	return nil
}

func (s *pageSink) SendRejection(context.Context, sink.Rejection) error { return nil }

func (s *pageSink) Close() error { return nil }
