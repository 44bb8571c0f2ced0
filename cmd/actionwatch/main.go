// Command actionwatch discovers, resolves and mounts actions in web pages.
//
// Usage:
//
//	actionwatch -config actionwatch.yaml              # observe configured pages live
//	actionwatch -url https://x.com/home               # observe a single page live
//	actionwatch -scan page.html -page-url https://... # one-shot scan of a saved document
//	actionwatch -resolve https://dial.to/?action=...  # classify one link
//	actionwatch -http 127.0.0.1:8088                  # HTTP API
//	actionwatch -mcp                                  # MCP tools on stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/actionwatch/actionwatch"
	"github.com/hazyhaar/actionwatch/idgen"
)

type flags struct {
	config   string
	url      string
	scan     string
	pageURL  string
	resolve  string
	httpAddr string
	mcp      bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to actionwatch.yaml config file")
	flag.StringVar(&f.url, "url", "", "observe a single URL live (stdout sink)")
	flag.StringVar(&f.scan, "scan", "", "scan a saved HTML document and exit")
	flag.StringVar(&f.pageURL, "page-url", "", "page URL of the -scan document")
	flag.StringVar(&f.resolve, "resolve", "", "resolve one link and exit")
	flag.StringVar(&f.httpAddr, "http", "", "serve the HTTP API on this address")
	flag.BoolVar(&f.mcp, "mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("actionwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg := actionwatch.DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = actionwatch.LoadConfigFile(f.config); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	stack, err := actionwatch.BuildStack(cfg, logger)
	if err != nil {
		return err
	}

	switch {
	case f.resolve != "":
		return runResolve(ctx, stack, f.resolve)
	case f.scan != "":
		return runScan(ctx, stack, f.scan, f.pageURL)
	case f.mcp:
		return runMCP(ctx, stack)
	case f.httpAddr != "":
		return runHTTP(ctx, logger, stack, f.httpAddr)
	case f.url != "":
		cfg.Pages = []actionwatch.PageConfig{{ID: idgen.New(), URL: f.url, Platform: cfg.Platform}}
		return runLive(ctx, logger, cfg, stack)
	case f.config != "" && len(cfg.Pages) > 0:
		return runLive(ctx, logger, cfg, stack)
	case f.config != "":
		return runHTTP(ctx, logger, stack, cfg.HTTP.Addr)
	}

	fmt.Fprintln(os.Stderr, "usage: actionwatch -config <file> | -url <url> | -scan <file> | -resolve <url> | -http <addr> | -mcp")
	os.Exit(2)
	return nil
}

func newService(stack *actionwatch.Stack) (*actionwatch.Service, error) {
	return actionwatch.NewService(stack.Adapter, stack.Options...)
}

func runResolve(ctx context.Context, stack *actionwatch.Stack, link string) error {
	svc, err := newService(stack)
	if err != nil {
		return err
	}
	out, err := svc.Resolve(ctx, link)
	if err != nil {
		return err
	}
	return printJSON(actionwatch.ResolveResult{OK: out.OK(), Outcome: out, Error: out.Error()})
}

func runScan(ctx context.Context, stack *actionwatch.Stack, path, pageURL string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	svc, err := newService(stack)
	if err != nil {
		return err
	}
	res, err := svc.Scan(ctx, actionwatch.ScanRequest{HTML: string(data), URL: pageURL})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runMCP(ctx context.Context, stack *actionwatch.Stack) error {
	svc, err := newService(stack)
	if err != nil {
		return err
	}
	if err := svc.Init(ctx); err != nil {
		return err
	}
	go stack.Registry.Run(ctx)

	srv := mcp.NewServer(&mcp.Implementation{Name: "actionwatch", Version: "1.0.0"}, nil)
	svc.RegisterMCP(srv)
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func runHTTP(ctx context.Context, logger *slog.Logger, stack *actionwatch.Stack, addr string) error {
	svc, err := newService(stack)
	if err != nil {
		return err
	}
	if err := svc.Init(ctx); err != nil {
		return err
	}
	go stack.Registry.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("actionwatch: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func runLive(ctx context.Context, logger *slog.Logger, cfg *actionwatch.Config, stack *actionwatch.Stack) error {
	sinks, err := actionwatch.SinksFromConfig(cfg.Sinks, os.Stdout, logger)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		sinks = append(sinks, actionwatch.NewStdoutSink(os.Stdout))
	}

	if err := stack.Registry.Init(ctx); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	go stack.Registry.Run(ctx)

	b := actionwatch.NewBrowser(cfg.Browser, logger)
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	opts := append(stack.Options, actionwatch.WithSinks(sinks...))
	var lives []*actionwatch.Live
	for _, page := range cfg.Pages {
		l, err := b.Observe(ctx, page, stack.Adapter, actionwatch.Callbacks{}, opts...)
		if err != nil {
			logger.Error("actionwatch: failed to observe page", "url", page.URL, "error", err)
			continue
		}
		lives = append(lives, l)
	}
	if len(lives) == 0 {
		return errors.New("no page could be observed")
	}

	<-ctx.Done()
	for _, l := range lives {
		l.Stop()
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
