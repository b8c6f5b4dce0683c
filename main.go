package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"ragdocs/internal/app"
	"ragdocs/internal/config"
	"ragdocs/internal/extract"
	"ragdocs/internal/logger"
	"ragdocs/internal/worker"
)

const drainPollInterval = 200 * time.Millisecond

// loadConfig is replaced in tests.
var loadConfig = config.Load

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:   "ragdocs",
		Usage:  "Ingest documentation pages into a vector index and search them",
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serveCommand,
			},
			{
				Name:      "enqueue",
				Usage:     "Queue URLs and ingest them",
				ArgsUsage: "<url> [url...]",
				Action:    enqueueCommand,
			},
			{
				Name:   "drain",
				Usage:  "Ingest every pending queue item",
				Action: drainCommand,
			},
			{
				Name:   "queue",
				Usage:  "Print the queue",
				Action: queueCommand,
			},
			{
				Name:   "clear",
				Usage:  "Remove every queue item that is not being processed",
				Action: clearCommand,
			},
			{
				Name:   "retry-failed",
				Usage:  "Re-queue failed items and ingest them",
				Action: retryFailedCommand,
			},
			{
				Name:   "sources",
				Usage:  "List the indexed pages",
				Action: sourcesCommand,
			},
			{
				Name:      "remove",
				Usage:     "Remove indexed pages",
				ArgsUsage: "<url> [url...]",
				Action:    removeCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Remove every indexed page",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the indexed pages",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"k"},
						Usage:   "Number of results (0 uses SEARCH_TOP_K)",
					},
				},
			},
			{
				Name:      "extract-urls",
				Usage:     "List the links on a page",
				ArgsUsage: "<url>",
				Action:    extractURLsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "add-to-queue",
						Usage: "Queue the extracted links and ingest them",
					},
					&cli.BoolFlag{
						Name:  "same-host",
						Usage: "Keep only links on the page's host",
					},
					&cli.StringFlag{
						Name:  "path-prefix",
						Usage: "Keep only links whose path starts with this prefix",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "Drop links containing this substring (repeatable)",
					},
				},
			},
		},
	}
}

// withApp loads configuration, wires the application, runs fn and releases
// everything afterwards. Logs go to logOut so command output on stdout stays
// machine readable.
func withApp(c *cli.Context, logOut io.Writer, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logOut, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := deps.Close(); cErr != nil {
			log.Warn("failed to release dependencies", "error", cErr)
		}
	}()

	return fn(ctx, app.New(cfg, deps, log))
}

func serveCommand(c *cli.Context) error {
	return withApp(c, os.Stdout, func(ctx context.Context, a *app.App) error {
		// Items recovered from an interrupted run are picked up right away.
		a.Worker.Trigger(ctx)
		return a.Run(ctx)
	})
}

func enqueueCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one url is required", 2)
	}
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		if _, err := a.Ingest.Enqueue(ctx, c.Args().Slice()); err != nil {
			return err
		}
		return drainAndReport(ctx, c, a)
	})
}

func drainCommand(c *cli.Context) error {
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		return drainAndReport(ctx, c, a)
	})
}

func queueCommand(c *cli.Context) error {
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		items, err := a.Ingest.Snapshot(ctx)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, items)
	})
}

func clearCommand(c *cli.Context) error {
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		n, err := a.Ingest.Clear(ctx)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, map[string]int{"removed": n})
	})
}

func retryFailedCommand(c *cli.Context) error {
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		if _, err := a.Ingest.RetryFailed(ctx); err != nil {
			return err
		}
		return drainAndReport(ctx, c, a)
	})
}

func sourcesCommand(c *cli.Context) error {
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		sources, err := a.Sources.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, sources)
	})
}

func removeCommand(c *cli.Context) error {
	all := c.Bool("all")
	if all == (c.NArg() > 0) {
		return cli.Exit("pass either urls or --all", 2)
	}
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		var (
			n   int
			err error
		)
		if all {
			n, err = a.Sources.RemoveAll(ctx)
		} else {
			n, err = a.Sources.Remove(ctx, c.Args().Slice())
		}
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, map[string]int{"removed": n})
	})
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return cli.Exit("a query is required", 2)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must not be negative", 2)
	}
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		results, err := a.Search.Search(ctx, query, c.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, results)
	})
}

func extractURLsCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one url is required", 2)
	}
	filter, err := linkFilter(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	return withApp(c, os.Stderr, func(ctx context.Context, a *app.App) error {
		res, err := a.Sources.ExtractURLs(ctx, c.Args().First(), filter, c.Bool("add-to-queue"))
		if err != nil {
			return err
		}
		if len(res.Queued) > 0 {
			if err := drainAll(ctx, a.Worker); err != nil {
				return err
			}
		}
		return printJSON(c.App.Writer, res)
	})
}

// linkFilter builds the extract-urls filter. It has the same meaning as the
// same_host, path_prefix and exclusions fields of POST /extract-urls.
func linkFilter(c *cli.Context) (extract.LinkFilter, error) {
	filter := extract.LinkFilter{
		SameHost:   c.Bool("same-host"),
		PathPrefix: c.Bool("path-prefix"),
		Exclude:    c.StringSlice("exclude"),
	}
	return filter, filter.Validate()
}

func drainAndReport(ctx context.Context, c *cli.Context, a *app.App) error {
	if err := drainAll(ctx, a.Worker); err != nil {
		return err
	}
	items, err := a.Ingest.Snapshot(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, items)
}

// drainAll runs a drain in the foreground. When a background drain holds the
// slot it is asked for another pass and drainAll waits for the slot.
func drainAll(ctx context.Context, w *worker.Worker) error {
	for !w.Drain(ctx) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(drainPollInterval):
		}
	}
	return ctx.Err()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
