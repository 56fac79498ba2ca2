package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/typsite/internal/site"
)

// Result is the outcome of compiling one file within a batch.
type Result struct {
	Path string
	Err  error
}

// CompileBatch compiles every path concurrently and blocks until all of
// them have finished. Siblings are never cancelled; when any file fails the
// first failure in paths order is returned.
//
// A batch containing a template change is served by one FromScratch call,
// which already recompiles every content file.
func (e *Executor) CompileBatch(ctx context.Context, paths []string) error {
	for _, p := range paths {
		action, err := site.Classify(p, e.cfg)
		if err == nil && action.Kind == site.RecompileAll {
			e.logger.Debug("template changed, rebuilding everything", slog.String("path", p))
			return e.FromScratch(ctx)
		}
	}
	return e.runBatch(ctx, paths, false)
}

func (e *Executor) runBatch(ctx context.Context, paths []string, nested bool) error {
	start := time.Now()
	results := e.Compile(ctx, paths, nested)

	var first error
	failed := 0
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		failed++
		e.logger.Error("compilation failed",
			slog.String("path", r.Path), slog.String("error", r.Err.Error()))
		if first == nil {
			first = r.Err
		}
	}

	e.logger.Info("compiled batch of files",
		slog.Int("files", len(paths)),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(start)))

	if first != nil {
		return fmt.Errorf("%d of %d files failed: %w", failed, len(paths), first)
	}
	return nil
}

// Compile runs one goroutine per path and returns the per-file results in
// the order of paths.
func (e *Executor) Compile(ctx context.Context, paths []string, nested bool) []Result {
	results := make([]Result, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		results[i].Path = p
		g.Go(func() error {
			e.logger.Debug("trying to compile", slog.String("path", p))
			results[i].Err = e.compile(ctx, p, nested)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
