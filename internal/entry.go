// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/typsite/internal/build"
	"github.com/starford/typsite/internal/devserver"
	"github.com/starford/typsite/internal/index"
	"github.com/starford/typsite/internal/logging"
	"github.com/starford/typsite/internal/rebuild"
	"github.com/starford/typsite/internal/render"
	"github.com/starford/typsite/internal/site"
	"github.com/starford/typsite/internal/sse"
	"github.com/starford/typsite/internal/storage"
	"github.com/starford/typsite/internal/watch"
)

// Components are the wired building blocks shared by Run and the MCP
// command.
type Components struct {
	Site     *site.Config
	Logger   *slog.Logger
	Renderer *render.Runner
	Store    *storage.FS
	Index    *index.DB
	Executor *build.Executor
}

// Close releases the output index.
func (c *Components) Close() error {
	return c.Index.Close()
}

// Setup resolves the configuration and wires the executor. Logs go to w.
func Setup(cfg *Config, projectRoot string, w io.Writer, verbose, trace bool) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if w == nil {
		w = os.Stdout
	}

	logger := logging.New(w, logging.Options{
		Level:   cfg.App.LogLevel,
		Verbose: verbose,
		Trace:   trace,
	})

	sc, err := cfg.Resolve(projectRoot)
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		slog.String("project_root", sc.ProjectRoot),
		slog.String("content_root", sc.ContentRoot()),
		slog.String("template_root", sc.TemplateRoot()),
		slog.String("output_root", sc.OutputRoot()),
		slog.String("file_listing", sc.FileListing.String()),
		slog.String("log_level", logging.Options{Level: cfg.App.LogLevel, Verbose: verbose, Trace: trace}.Effective().String()))

	runner := render.New(sc, logger)
	if err := runner.CheckInstalled(); err != nil {
		return nil, err
	}

	store, err := storage.NewFS(sc.OutputRoot())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.IndexPath(sc.ProjectRoot))
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if n, err := index.Reconcile(db, store, logger); err != nil {
		logger.Warn("index reconcile failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("index reconciled with output tree", slog.Int("rows", n))
	}

	return &Components{
		Site:     sc,
		Logger:   logger,
		Renderer: runner,
		Store:    store,
		Index:    db,
		Executor: build.NewExecutor(sc, runner, store, db, logger),
	}, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	c, err := Setup(app.config, app.projectRoot, app.logOutput, app.verbose, app.trace)
	if err != nil {
		return err
	}
	defer c.Close()

	logger := c.Logger
	slog.SetDefault(logger)

	if !app.ignoreInitial {
		if err := c.Executor.FromScratch(ctx); err != nil {
			return fmt.Errorf("initial build: %w", err)
		}
	}

	if !app.watch {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	var notifier rebuild.Notifier
	if app.serve {
		broker := sse.NewBroker(logger, 2*time.Second)
		defer broker.Close()
		notifier = broker

		serveCfg := app.config.Serve
		ln, err := devserver.Listen(serveCfg.Host, serveCfg.PortLow, serveCfg.PortCount)
		if err != nil {
			return err
		}
		srv := devserver.New(ln, devserver.NewRouter(c.Store, broker, logger), logger)
		if app.ready != nil {
			app.ready(srv.URL())
		}

		g.Go(func() error {
			return srv.Serve(gCtx)
		})
	}

	batches := make(chan watch.Batch)

	g.Go(func() error {
		return watch.Watch(gCtx, c.Site.ProjectRoot, watch.Options{
			Skip: []string{c.Site.OutputRoot()},
		}, logger, batches)
	})

	g.Go(func() error {
		return rebuild.NewController(c.Site, c.Executor, notifier, logger).Run(gCtx, batches)
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped watching")
	return nil
}
