// Package actionwatch discovers action links in a growing content tree,
// resolves each one to an action endpoint through trust checkpoints, fetches
// the action, and mounts its rendering next to the link.
//
// Every inserted element is dispatched independently on its own goroutine.
// A dispatch either mounts exactly one wrapper or is dropped with a
// *Rejection; rejections never escape the dispatch.
package actionwatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/actionwatch/internal/sink"
	"github.com/hazyhaar/actionwatch/candidate"
	"github.com/hazyhaar/actionwatch/dom"
	"github.com/hazyhaar/actionwatch/idgen"
	"github.com/hazyhaar/actionwatch/mount"
	"github.com/hazyhaar/actionwatch/render"
	"github.com/hazyhaar/actionwatch/resolve"
)

// Watcher observes one document.
type Watcher struct {
	doc       *dom.Document
	adapter   action.Adapter
	cb        Callbacks
	opts      options
	extractor *candidate.Extractor
	resolver  *resolve.Resolver
	mounter   *mount.Mounter
	sinkR     *sink.Router
	insIDs    idgen.Generator
	logger    *slog.Logger

	mu        sync.Mutex
	ready     bool
	started   bool
	stop      func()
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	dispatched atomic.Int64
	mounted    atomic.Int64
	rejected   atomic.Int64
}

// Stats counts finished dispatches. Dispatched includes elements dropped by
// the quick reject.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Mounted    int64 `json:"mounted"`
	Rejected   int64 `json:"rejected"`
}

// New builds a Watcher without starting observation.
func New(doc *dom.Document, adapter action.Adapter, cb Callbacks, opts ...Option) (*Watcher, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.finish()

	marks := mount.NewMarks()
	return &Watcher{
		doc:       doc,
		adapter:   adapter,
		cb:        cb,
		opts:      o,
		extractor: candidate.NewExtractor(o.platform, marks),
		resolver: resolve.New(resolve.Config{
			Policy:         o.policy,
			Oracle:         o.oracle,
			Decoder:        o.decoder,
			Mapper:         o.mapper,
			Proxy:          o.proxy,
			Getter:         o.fetcher,
			ShortenerHosts: o.platform.ShortenerHosts,
			DirectPrefixes: o.directPrefixes,
			Logger:         o.logger,
		}),
		mounter: mount.New(
			mount.WithIDGenerator(idgen.Prefixed("mnt_", o.ids)),
			mount.WithLogger(o.logger),
		),
		sinkR:  sink.NewRouter(o.logger, o.sinks...),
		insIDs: idgen.Prefixed("ins_", o.ids),
		logger: o.logger,
	}, nil
}

// Setup builds a Watcher and starts observing. It fails, and nothing is
// observed, if the registry cannot be initialised or the observation root
// is missing.
func Setup(ctx context.Context, doc *dom.Document, adapter action.Adapter, cb Callbacks, opts ...Option) (*Watcher, error) {
	w, err := New(doc, adapter, cb, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Start initialises the registry and subscribes to insertions under the
// platform's observation root. Dispatches run until ctx is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.init(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrStarted
	}

	var root *html.Node
	w.doc.View(func(r *html.Node) { root = w.opts.platform.FindRoot(r) })
	if root == nil {
		return ErrNoRoot
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.stop = w.doc.Observe(root, func(recs []dom.Record) { w.onRecords(runCtx, recs) })
	w.started = true

	w.logger.Info("watcher: observing",
		"page", w.doc.URL(), "platform", w.opts.platform.Name, "root", dom.XPath(root))
	return nil
}

// Stop detaches the observer, cancels in-flight dispatches and waits for
// them to return. Sinks are closed on the first call; later calls only wait.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.started = false
	w.mu.Unlock()

	w.wg.Wait()
	w.closeOnce.Do(func() {
		if err := w.sinkR.Close(); err != nil {
			w.logger.Warn("watcher: close sinks", "error", err)
		}
	})
}

// Wait blocks until the dispatches spawned so far have returned.
func (w *Watcher) Wait() { w.wg.Wait() }

// Stats returns the dispatch counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Dispatched: w.dispatched.Load(),
		Mounted:    w.mounted.Load(),
		Rejected:   w.rejected.Load(),
	}
}

// Document returns the observed document.
func (w *Watcher) Document() *dom.Document { return w.doc }

func (w *Watcher) init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ready {
		return nil
	}
	if w.opts.registry != nil && !w.opts.registryReady {
		if err := w.opts.registry.Init(ctx); err != nil {
			return fmt.Errorf("actionwatch: registry init: %w", err)
		}
	}
	w.ready = true
	return nil
}

func (w *Watcher) onRecords(ctx context.Context, recs []dom.Record) {
	for _, rec := range recs {
		for _, n := range rec.Added {
			if n.Type != html.ElementNode {
				continue
			}
			w.spawn(ctx, n)
		}
	}
}

// spawn dispatches n on its own goroutine. Deliveries that race with Stop
// are dropped so that Add never runs concurrently with Stop's Wait.
func (w *Watcher) spawn(ctx context.Context, n *html.Node) {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("watcher: dispatch panic", "page", w.doc.URL(), "panic", r)
			}
		}()
		_, _ = w.Dispatch(ctx, n)
	}()
}

// Dispatch runs the full pipeline for one element: extract, resolve, fetch,
// support check, render, mount. On success the mount instruction is sent to
// the sinks and OnMount. Any other result is a *Rejection; rejections after
// extraction are also sent to the sinks and OnReject.
func (w *Watcher) Dispatch(ctx context.Context, n *html.Node) (*Instruction, error) {
	defer w.dispatched.Add(1)

	ins, rej := w.dispatch(ctx, n)
	if rej != nil {
		if rej.Stage != StageExtract {
			w.rejected.Add(1)
			w.report(ctx, rej)
		}
		return nil, rej
	}
	w.mounted.Add(1)
	if err := w.sinkR.Send(ctx, *ins); err != nil {
		w.logger.Debug("watcher: sink delivery incomplete", "mount_id", ins.MountID, "error", err)
	}
	if w.cb.OnMount != nil {
		w.cb.OnMount(*ins)
	}
	return ins, nil
}

func (w *Watcher) dispatch(ctx context.Context, n *html.Node) (*Instruction, *Rejection) {
	var applicable bool
	w.doc.View(func(*html.Node) { applicable = n.Parent != nil && w.extractor.Accepts(n) })
	if !applicable {
		return nil, &Rejection{Class: ErrNotApplicable, Stage: StageExtract}
	}
	c, ok := w.extractor.Extract(w.doc, n)
	if !ok {
		return nil, &Rejection{Class: ErrNotApplicable, Stage: StageExtract}
	}

	out := w.resolver.Resolve(ctx, c.Href)
	if !out.OK() {
		return nil, rejectOutcome(out)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.opts.timeout)
	desc, err := w.adapter.Fetch(fetchCtx, out.ActionURL)
	cancel()
	if err == nil && desc == nil {
		err = errors.New("adapter returned no descriptor")
	}
	if err != nil {
		return nil, &Rejection{Class: ErrFetchFailed, Stage: StageActionFetch, URL: c.Href, Err: err}
	}

	if w.opts.isSupported != nil {
		supported, err := w.opts.isSupported(ctx, action.SupportContext{
			OriginalURL: c.Href,
			ActionURL:   out.ActionURL,
			Descriptor:  desc,
			State:       out.State,
			Branch:      out.Kind.String(),
		})
		if err != nil || !supported {
			return nil, &Rejection{Class: ErrUnsupportedAction, Stage: StageSupported, URL: c.Href, Err: err}
		}
	}

	root, err := w.opts.presenter.Present(render.Payload{
		Descriptor:  desc,
		OriginalURL: c.Href,
		ActionURL:   out.ActionURL,
		Branch:      out.Kind.String(),
		Policy:      w.opts.policy,
		State:       out.State,
	})
	if err != nil {
		return nil, &Rejection{Class: ErrUnsupportedAction, Stage: StageRender, URL: c.Href, Err: err}
	}

	res, err := w.mounter.Mount(w.doc, c, root)
	if err != nil {
		return nil, &Rejection{Class: ErrNotApplicable, Stage: StageMount, URL: c.Href, Err: err}
	}

	return &Instruction{
		ID:          w.insIDs(),
		MountID:     res.MountID,
		PageURL:     w.doc.URL(),
		OriginalURL: c.Href,
		ActionURL:   out.ActionURL,
		Branch:      out.Kind.String(),
		State:       string(out.State),
		Message:     res.Message,
		MountXPath:  res.XPath,
		RefXPath:    res.RefXPath,
		Position:    res.Position,
		Replaced:    res.Replaced,
		Reused:      res.Reused,
		WrapperHTML: res.WrapperHTML,
		Descriptor:  desc,
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

func (w *Watcher) report(ctx context.Context, rej *Rejection) {
	w.logger.Debug("watcher: dispatch rejected",
		"page", w.doc.URL(), "url", rej.URL, "stage", rej.Stage, "error", rej)

	msg := ""
	if rej.Err != nil {
		msg = rej.Err.Error()
	}
	ev := RejectionEvent{
		ID:        w.insIDs(),
		PageURL:   w.doc.URL(),
		URL:       rej.URL,
		Class:     className(rej.Class),
		Stage:     rej.Stage,
		Error:     msg,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := w.sinkR.SendRejection(ctx, ev); err != nil {
		w.logger.Debug("watcher: sink delivery incomplete", "url", rej.URL, "error", err)
	}
	if w.cb.OnReject != nil {
		w.cb.OnReject(rej)
	}
}

func className(class error) string {
	switch class {
	case ErrSecurityRejected:
		return "security"
	case ErrResolutionFailed:
		return "resolution"
	case ErrFetchFailed:
		return "fetch"
	case ErrUnsupportedAction:
		return "unsupported"
	default:
		return "not-applicable"
	}
}

// Resolve runs only the classification protocol for rawURL.
func (w *Watcher) Resolve(ctx context.Context, rawURL string) (resolve.Outcome, error) {
	if err := w.init(ctx); err != nil {
		return resolve.Outcome{}, err
	}
	return w.resolver.Resolve(ctx, rawURL), nil
}

// Sweep dispatches every candidate element already in the document, as if
// each had just been inserted, and returns the mounts produced. Cards go
// first so that text candidates in the same post see their wrapper.
func (w *Watcher) Sweep(ctx context.Context) ([]Instruction, error) {
	if err := w.init(ctx); err != nil {
		return nil, err
	}

	var cards, rest []*html.Node
	w.doc.View(func(r *html.Node) {
		root := w.opts.platform.FindRoot(r)
		if root == nil {
			return
		}
		p := w.opts.platform
		dom.Walk(root, func(n *html.Node) {
			if !w.extractor.Accepts(n) {
				return
			}
			switch {
			case !p.Card.Empty() && p.Card.Match(n):
				cards = append(cards, n)
			case !p.Text.Empty() && p.Text.Match(n):
				rest = append(rest, n)
			case p.ContainerFirst && (p.Container.Empty() || p.Container.Match(n)):
				rest = append(rest, n)
			}
		})
	})

	var (
		mu  sync.Mutex
		out []Instruction
	)
	for _, phase := range [][]*html.Node{cards, rest} {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.opts.concurrency)
		for _, n := range phase {
			g.Go(func() error {
				ins, err := w.Dispatch(gctx, n)
				if err != nil {
					return nil
				}
				mu.Lock()
				out = append(out, *ins)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	slices.SortFunc(out, func(a, b Instruction) int { return cmp.Compare(a.MountXPath, b.MountXPath) })
	w.logger.Info("watcher: sweep done", "page", w.doc.URL(), "candidates", len(cards)+len(rest), "mounted", len(out))
	return out, ctx.Err()
}
