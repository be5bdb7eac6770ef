// Package internal provides the application wiring and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/monologue/internal/api"
	"github.com/starford/monologue/internal/archive"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/inbox"
	"github.com/starford/monologue/internal/index"
	"github.com/starford/monologue/internal/journal"
	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/mcpserver"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/parser"
	"github.com/starford/monologue/internal/sse"
	"github.com/starford/monologue/internal/storage"
	"github.com/starford/monologue/internal/targets"
	"github.com/starford/monologue/internal/targets/buttondown"
	"github.com/starford/monologue/internal/targets/notion"
	"github.com/starford/monologue/internal/targets/slack"
)

// App is a fully wired monologue instance.
type App struct {
	Config     *Config
	Logger     *slog.Logger
	Files      storage.Provider
	Store      *archive.Store
	DB         *index.DB
	Rewriter   *links.Rewriter
	Dispatcher *dispatch.Dispatcher
	Importer   *inbox.Importer
	Service    *journal.Service
	Broker     *sse.Broker
}

// NewLogger creates the application logger.
func NewLogger(format string, level slog.Level, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New wires the archive, index, targets and dispatcher from configuration.
func New(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg.App.LogFormat, cfg.App.LogLevel, os.Stderr)
	}

	logger.Debug("Configuration loaded",
		slog.String("archive_path", cfg.Archive.Path),
		slog.String("inbox_path", cfg.Archive.Inbox),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Archive.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Archive.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	store, err := archive.Open(ctx, files, archive.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if err := index.Sync(db, files, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	rw := links.NewRewriter(cfg.Links.Workspace)
	ts := app.targets
	if ts == nil {
		ts = BuildTargets(&cfg.Targets, rw, logger)
	}

	broker := sse.NewBroker(2 * time.Second)
	d := dispatch.New(store, ts,
		dispatch.WithLogger(logger),
		dispatch.WithParserOptions(parser.WithRewriter(rw)),
		dispatch.WithObserver(index.NewRecorder(db, files, logger)),
		dispatch.WithObserver(broker),
	)

	var imp *inbox.Importer
	svcOpts := []journal.Option{}
	if cfg.Archive.Inbox != "" {
		if err := os.MkdirAll(cfg.Archive.Inbox, 0o755); err != nil {
			broker.Close()
			db.Close()
			return nil, fmt.Errorf("create inbox dir: %w", err)
		}
		imp = inbox.New(cfg.Archive.Inbox, store, rw, inbox.WithLogger(logger), inbox.WithDispatcher(d))
		svcOpts = append(svcOpts, journal.WithImporter(imp))
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Files:      files,
		Store:      store,
		DB:         db,
		Rewriter:   rw,
		Dispatcher: d,
		Importer:   imp,
		Service:    journal.NewService(store, db, d, rw, svcOpts...),
		Broker:     broker,
	}, nil
}

// BuildTargets creates the publish targets in dispatch order. Targets without
// credentials report skipped.
func BuildTargets(cfg *TargetsConfig, rw *links.Rewriter, logger *slog.Logger) []targets.Target {
	ts := make([]targets.Target, 0, len(models.AllTargets))

	if cfg.Notion.Enabled() {
		client := notion.NewClient(cfg.Notion.Token, notion.WithBaseURL(cfg.Notion.BaseURL))
		ts = append(ts, notion.New(client, cfg.Notion.ParentPageID, notion.WithLogger(logger), notion.WithRewriter(rw)))
	} else {
		ts = append(ts, targets.Unavailable(models.TargetNotion, cfg.Notion.Missing()+" not set"))
	}

	if cfg.Buttondown.Enabled() {
		client := buttondown.NewClient(cfg.Buttondown.APIKey, buttondown.WithBaseURL(cfg.Buttondown.BaseURL))
		ts = append(ts, buttondown.New(client, logger))
	} else {
		ts = append(ts, targets.Unavailable(models.TargetButtondown, "BUTTONDOWN_API_KEY not set"))
	}

	if cfg.Slack.Enabled() {
		ts = append(ts, slack.New(slack.NewAPI(cfg.Slack.Token, cfg.Slack.APIURL), cfg.Slack.Channel, logger))
	} else {
		ts = append(ts, targets.Unavailable(models.TargetSlack, "SLACK_BOT_TOKEN not set"))
	}

	return ts
}

// Close releases the index and stops the event broker.
func (a *App) Close() error {
	a.Broker.Close()
	return a.DB.Close()
}

// WatchInbox imports new exports as they land in the inbox until ctx is
// cancelled.
func (a *App) WatchInbox(ctx context.Context, opts inbox.Options, cb inbox.ImportCallback) error {
	if a.Importer == nil {
		return journal.ErrNoInbox
	}
	return inbox.Watch(ctx, a.Importer, opts, inbox.DefaultDebounce, a.Logger, func(sum *inbox.Summary, err error) {
		if err == nil {
			a.Broker.Publish(sse.Event{Type: sse.EventInboxImported, Data: sum})
		}
		if cb != nil {
			cb(sum, err)
		}
	})
}

// ServeMCP serves the MCP tools on stdin/stdout.
func (a *App) ServeMCP(version string) error {
	return mcpserver.New(a.Service, version).ServeStdio()
}

// ServeOptions tune Serve.
type ServeOptions struct {
	// WatchInbox imports inbox exports as they arrive.
	WatchInbox bool
	Import     inbox.Options
}

// Handler returns the HTTP handler: health checks plus the API under /api.
func (a *App) Handler() http.Handler {
	cfg := a.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if _, _, err := a.DB.ListEntries(1, 0); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(a.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, a.Broker, cfg.Archive.Inbox))
	return r
}

// Serve runs the HTTP API, the archive index watcher and optionally the inbox
// watcher until ctx is cancelled or a shutdown signal arrives.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	cfg := a.Config
	logger := a.Logger

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Keep the index and SSE clients in step with archive edits.
	g.Go(func() error {
		return index.Watch(gCtx, a.DB, a.Files, cfg.Archive.Path, logger, func(kind, name string) {
			a.Broker.PublishEntryEvent(kind, name)
		})
	})

	if opts.WatchInbox && a.Importer != nil {
		g.Go(func() error {
			return a.WatchInbox(gCtx, opts.Import, func(sum *inbox.Summary, err error) {
				if err != nil {
					logger.Error("inbox import failed", slog.String("error", err.Error()))
					return
				}
				logger.Info("inbox imported", slog.Int("files", len(sum.Files)))
			})
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		cancel()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
