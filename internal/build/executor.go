// Package build compiles source files into the output tree: one file at a
// time, in concurrent batches, or the whole project from scratch.
package build

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/typsite/internal/checksum"
	"github.com/starford/typsite/internal/index"
	"github.com/starford/typsite/internal/logging"
	"github.com/starford/typsite/internal/site"
	"github.com/starford/typsite/internal/storage"
)

// Compiler is the renderer surface the executor needs.
type Compiler interface {
	Compile(ctx context.Context, path string) ([]byte, error)
	Query(ctx context.Context, path string) ([]byte, error)
	RunInit(ctx context.Context) error
}

// Executor runs compilations for one project.
type Executor struct {
	cfg      *site.Config
	compiler Compiler
	store    storage.Provider
	ledger   index.OutputIndex
	logger   *slog.Logger
}

// NewExecutor wires an executor. ledger may be nil, in which case every
// output is written unconditionally and collisions go unreported.
func NewExecutor(cfg *site.Config, compiler Compiler, store storage.Provider, ledger index.OutputIndex, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, compiler: compiler, store: store, ledger: ledger, logger: logger}
}

// Config returns the configuration the executor was built with.
func (e *Executor) Config() *site.Config { return e.cfg }

// SourceFiles returns every regular file under root in lexical order.
// Entries that fail during traversal (missing root, permission denied) are
// skipped silently.
func SourceFiles(root string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	return out
}

// FromScratch runs the init command, writes the file listing when enabled
// and compiles every file under the content root.
func (e *Executor) FromScratch(ctx context.Context) error {
	start := time.Now()

	if err := e.compiler.RunInit(ctx); err != nil {
		return fmt.Errorf("running init command failed: %w", err)
	}

	if e.cfg.FileListing == site.ListingDisabled {
		e.logger.Log(ctx, logging.LevelTrace, "not file listing")
	} else {
		path := e.cfg.ManifestPath()
		e.logger.Info("generating file listing", slog.String("path", path))
		data, err := e.FilesJSON(ctx)
		if err != nil {
			return fmt.Errorf("file listing: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write file listing %s: %w", path, err)
		}
	}

	e.logger.Info("starting compilation")
	if err := e.runBatch(ctx, SourceFiles(e.cfg.ContentRoot()), true); err != nil {
		return err
	}

	e.logger.Info("compiled project from scratch",
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// CompileSingle compiles one source file according to its classification.
// A template change runs FromScratch.
func (e *Executor) CompileSingle(ctx context.Context, path string) error {
	return e.compile(ctx, path, false)
}

// compile handles one file. nested is true while a full rebuild is in
// progress: a RecompileAll reached from there is skipped, so a template
// root placed inside the content root adds at most one level of rebuild.
func (e *Executor) compile(ctx context.Context, path string, nested bool) error {
	action, err := site.Classify(path, e.cfg)
	if err != nil {
		return err
	}
	e.logger.Log(ctx, logging.LevelTrace, "classified",
		slog.String("path", path), slog.String("action", action.String()))

	switch action.Kind {
	case site.Noop:
		return nil

	case site.RecompileAll:
		if nested {
			e.logger.Debug("template inside content tree, already rebuilding",
				slog.String("path", path))
			return nil
		}
		return e.FromScratch(ctx)

	case site.Passthrough:
		if err := e.copyFile(ctx, path, action.Destination); err != nil {
			return err
		}
		e.logger.Log(ctx, logging.LevelTrace, "passthrough copied",
			slog.String("path", path), slog.String("destination", action.Destination))
		return nil

	case site.CompileToPath:
		data, err := e.compiler.Compile(ctx, path)
		if err != nil {
			return err
		}
		if err := e.write(ctx, path, action.Destination, data); err != nil {
			return err
		}
		e.logger.Log(ctx, logging.LevelTrace, "document compiled",
			slog.String("path", path), slog.String("destination", action.Destination))
		return nil
	}
	return fmt.Errorf("unknown action %v for %s", action.Kind, path)
}

// write persists data at dst, consulting the ledger to skip identical
// outputs and to report two sources claiming one destination.
func (e *Executor) write(ctx context.Context, src, dst string, data []byte) error {
	rel, err := e.store.Rel(dst)
	if err != nil {
		return err
	}
	sum := checksum.Sum(data)
	if e.unchanged(ctx, src, dst, rel, sum) {
		return nil
	}

	if err := e.store.Write(rel, data); err != nil {
		return fmt.Errorf("failed to write output to %s: %w", dst, err)
	}
	e.record(src, dst, sum)
	return nil
}

// copyFile streams a passthrough asset to dst. The source is read once to
// hash it and once more to copy it, never held in memory whole.
func (e *Executor) copyFile(ctx context.Context, src, dst string) error {
	rel, err := e.store.Rel(dst)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("read passthrough %s: %w", src, err)
	}
	defer f.Close()

	sum, err := checksum.SumReader(f)
	if err != nil {
		return fmt.Errorf("read passthrough %s: %w", src, err)
	}
	if e.unchanged(ctx, src, dst, rel, sum) {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("read passthrough %s: %w", src, err)
	}

	if err := e.store.WriteFrom(rel, f); err != nil {
		return fmt.Errorf("failed to write output to %s: %w", dst, err)
	}
	e.record(src, dst, sum)
	return nil
}

// unchanged reports whether dst already holds sum from src. It also warns
// when a different source wrote dst before.
func (e *Executor) unchanged(ctx context.Context, src, dst, rel, sum string) bool {
	if e.ledger == nil {
		return false
	}
	row, err := e.ledger.Lookup(dst)
	if err != nil {
		e.logger.Warn("output ledger lookup failed", slog.String("error", err.Error()))
	}
	if row == nil {
		return false
	}
	if row.Source != src {
		e.logger.Warn("destination collision, last writer wins",
			slog.String("destination", dst),
			slog.String("previous_source", row.Source),
			slog.String("source", src))
		return false
	}
	if row.Checksum == sum && e.store.Exists(rel) {
		e.logger.Log(ctx, logging.LevelTrace, "output unchanged", slog.String("destination", dst))
		return true
	}
	return false
}

func (e *Executor) record(src, dst, sum string) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Record(index.OutputRow{Destination: dst, Source: src, Checksum: sum}); err != nil {
		e.logger.Warn("output ledger record failed", slog.String("error", err.Error()))
	}
}
