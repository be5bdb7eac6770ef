package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/monologue/internal"
	"github.com/starford/monologue/internal/dispatch"
	"github.com/starford/monologue/internal/inbox"
	"github.com/starford/monologue/internal/index"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/render"
	"github.com/starford/monologue/internal/targets"
	pkgconfig "github.com/starford/monologue/pkg/config"
)

var version = "dev"

// errFailed signals a run that completed but must exit non-zero.
var errFailed = errors.New("one or more steps failed")

func loadApp(ctx context.Context, cmd *cli.Command) (*internal.App, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	app, err := internal.New(ctx, internal.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("app init error: %w", err)
	}
	return app, nil
}

// withApp loads the application around an action and closes it afterwards.
func withApp(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		app, err := loadApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				app.Logger.Warn("close failed", slog.String("error", err.Error()))
			}
		}()
		return fn(ctx, cmd, app)
	}
}

func publish(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("publish: file argument is required")
	}
	to := cmd.StringSlice("to")
	if cmd.Bool("draft") && !slices.Contains(to, models.TargetButtondown) {
		to = append(to, models.TargetButtondown)
	}
	req := dispatch.Request{
		Targets: to,
		Options: targets.Options{
			DryRun:   cmd.Bool("dry-run"),
			AsCanvas: cmd.Bool("canvas"),
		},
	}
	rep, err := app.Dispatcher.DispatchFile(ctx, path, req)
	if rep != nil {
		render.New(os.Stdout).Report(rep)
	}
	if err != nil {
		return err
	}
	if !rep.OK() {
		return fmt.Errorf("%w: %s", errFailed, strings.Join(rep.Failed(), ", "))
	}
	return nil
}

func info(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("info: file argument is required")
	}
	out, err := app.Service.InfoFile(ctx, path)
	if err != nil {
		return err
	}
	render.New(os.Stdout).Info(out)
	return nil
}

func check(_ context.Context, cmd *cli.Command, app *internal.App) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("check: at least one file is required")
	}
	p := render.New(os.Stdout)
	dirty := false
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("check: %w", err)
		}
		found := app.Service.Check(content)
		p.Findings(path, found)
		if len(found) > 0 {
			dirty = true
		}
	}
	if dirty {
		return fmt.Errorf("%w: internal links found", errFailed)
	}
	return nil
}

func importOptions(cmd *cli.Command) inbox.Options {
	return inbox.Options{Draft: cmd.Bool("draft"), Force: cmd.Bool("force")}
}

func runImport(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	sum, err := app.Service.Import(ctx, importOptions(cmd))
	if sum != nil {
		render.New(os.Stdout).ImportSummary(sum)
	}
	if err != nil {
		return err
	}
	if sum.Failed() {
		return errFailed
	}
	return nil
}

func watch(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := render.New(os.Stdout)
	app.Logger.Info("watching inbox", slog.String("dir", app.Config.Archive.Inbox))
	err := app.WatchInbox(ctx, importOptions(cmd), func(sum *inbox.Summary, err error) {
		if err != nil {
			app.Logger.Error("inbox import failed", slog.String("error", err.Error()))
			return
		}
		p.ImportSummary(sum)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func search(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if query == "" {
		return errors.New("search: query is required")
	}
	results, err := app.Service.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	render.New(os.Stdout).SearchResults(results)
	return nil
}

func history(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	rows, err := app.Service.History(ctx, cmd.Args().First(), int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	render.New(os.Stdout).History(rows)
	return nil
}

func repair(ctx context.Context, _ *cli.Command, app *internal.App) error {
	rep, err := app.Store.Repair(ctx)
	if err != nil {
		return err
	}
	render.New(os.Stdout).Repair(rep)
	return index.Sync(app.DB, app.Files, app.Logger)
}

func serve(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	return app.Serve(ctx, internal.ServeOptions{
		WatchInbox: cmd.Bool("watch-inbox"),
		Import:     importOptions(cmd),
	})
}

func serveMCP(_ context.Context, _ *cli.Command, app *internal.App) error {
	return app.ServeMCP(version)
}

func importFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "draft", Usage: "Send newly archived entries to the newsletter as drafts"},
		&cli.BoolFlag{Name: "force", Usage: "Replace archived entries even when the export is not newer"},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "monologue",
		Usage:   "Publish markdown diary entries to Notion, Buttondown and Slack",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("MONOLOGUE_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "Publish an entry file to the configured targets",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "to", Aliases: []string{"t"}, Usage: "Target to publish to (repeatable, default all)"},
					&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Preview without writing anything"},
					&cli.BoolFlag{Name: "canvas", Usage: "Publish to Slack as a canvas"},
					&cli.BoolFlag{Name: "draft", Usage: "Shorthand for --to buttondown"},
				},
				Action: withApp(publish),
			},
			{
				Name:      "info",
				Usage:     "Show how an entry file would be published",
				ArgsUsage: "<file>",
				Action:    withApp(info),
			},
			{
				Name:      "check",
				Usage:     "Report internal page links left in entry files",
				ArgsUsage: "<file>...",
				Action:    withApp(check),
			},
			{
				Name:   "import",
				Usage:  "Import exports from the inbox into the archive",
				Flags:  importFlags(),
				Action: withApp(runImport),
			},
			{
				Name:   "watch",
				Usage:  "Import inbox exports as they arrive",
				Flags:  importFlags(),
				Action: withApp(watch),
			},
			{
				Name:      "search",
				Usage:     "Full-text search the archive",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum results"},
				},
				Action: withApp(search),
			},
			{
				Name:      "history",
				Usage:     "Show recent publish attempts",
				ArgsUsage: "[date]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum rows"},
				},
				Action: withApp(history),
			},
			{
				Name:   "repair",
				Usage:  "Remove stale and duplicate archive files and rebuild the index",
				Action: withApp(repair),
			},
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Flags: append(importFlags(),
					&cli.BoolFlag{Name: "watch-inbox", Usage: "Import inbox exports as they arrive"},
				),
				Action: withApp(serve),
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: withApp(serveMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
