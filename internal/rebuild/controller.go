// Package rebuild maps debounced change batches to full or targeted
// recompilation and emits reload signals afterwards.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/typsite/internal/apperr"
	"github.com/starford/typsite/internal/site"
	"github.com/starford/typsite/internal/watch"
)

// Builder is the executor surface the controller drives.
type Builder interface {
	FromScratch(ctx context.Context) error
	CompileBatch(ctx context.Context, paths []string) error
}

// Notifier receives one reload pulse per rebuild that changed the site.
type Notifier interface {
	Notify() error
}

// Controller processes change batches one at a time.
type Controller struct {
	cfg      *site.Config
	builder  Builder
	notifier Notifier
	logger   *slog.Logger

	// StopOnError makes Run return the first rebuild error instead of
	// logging it and waiting for the next batch.
	StopOnError bool
}

// NewController returns a controller. notifier is nil when no live-reload
// server is running.
func NewController(cfg *site.Config, builder Builder, notifier Notifier, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, builder: builder, notifier: notifier, logger: logger}
}

// Outcome describes what Handle did with a batch.
type Outcome struct {
	Paths    []string
	Full     bool
	Signaled bool
	Err      error
}

// Run consumes batches in arrival order until ctx is cancelled or the
// channel closes. Each rebuild completes before the next batch is read.
func (c *Controller) Run(ctx context.Context, batches <-chan watch.Batch) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			out := c.Handle(ctx, b)
			if out.Err == nil {
				continue
			}
			if errors.Is(out.Err, apperr.ErrReloadClosed) || c.StopOnError {
				return out.Err
			}
			c.logger.Warn("rebuild failed", slog.String("error", out.Err.Error()))
		}
	}
}

// Handle runs the rebuild for one batch. Paths outside the content and
// template roots are ignored; a batch that creates files triggers a full
// rebuild since new files can change sibling routing.
func (c *Controller) Handle(ctx context.Context, b watch.Batch) Outcome {
	var relevant []string
	created := false
	for _, ch := range b.Changes {
		if !c.cfg.Watched(ch.Path) {
			continue
		}
		relevant = append(relevant, ch.Path)
		created = created || ch.Created
	}
	if len(relevant) == 0 {
		return Outcome{}
	}

	out := Outcome{Paths: relevant, Full: created}
	if created {
		out.Err = c.builder.FromScratch(ctx)
	} else {
		out.Err = c.builder.CompileBatch(ctx, relevant)
	}

	if c.notifier != nil && (out.Full || c.affectsSite(relevant)) {
		if err := c.notifier.Notify(); err != nil {
			out.Err = errors.Join(out.Err, fmt.Errorf("reload signal: %w", err))
		} else {
			out.Signaled = true
		}
	}

	if len(relevant) == 1 {
		c.logger.Info("recompiled path", slog.String("path", relevant[0]), slog.Bool("full", out.Full))
	} else {
		c.logger.Info("recompiled paths", slog.Any("paths", relevant), slog.Bool("full", out.Full))
	}
	return out
}

// affectsSite reports whether any path maps to an action other than Noop.
func (c *Controller) affectsSite(paths []string) bool {
	for _, p := range paths {
		action, err := site.Classify(p, c.cfg)
		if err != nil {
			c.logger.Debug("classify for reload failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if action.Kind != site.Noop {
			return true
		}
	}
	return false
}
