// Package watch turns raw fsnotify events into debounced change batches.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWindow is the quiet period that closes a batch. Editors that write
// several times per save land in one batch.
const DefaultWindow = 200 * time.Millisecond

// Change is one path touched within a batch.
type Change struct {
	Path string
	// Created is true when the path appeared during the batch, as opposed
	// to being modified in place.
	Created bool
}

// Batch is a coalesced set of changes, in first-seen order.
type Batch struct {
	Changes []Change
}

// Paths returns the changed paths.
func (b Batch) Paths() []string {
	out := make([]string, len(b.Changes))
	for i, c := range b.Changes {
		out[i] = c.Path
	}
	return out
}

// AnyCreated reports whether any change is a creation.
func (b Batch) AnyCreated() bool {
	for _, c := range b.Changes {
		if c.Created {
			return true
		}
	}
	return false
}

// Options tunes a watcher.
type Options struct {
	// Window is the debounce quiet period; DefaultWindow when zero.
	Window time.Duration
	// Skip lists directories that are never watched (e.g. the output root).
	Skip []string
}

// Watch watches root recursively and sends a Batch on out whenever events
// have been quiet for the debounce window. Batches are delivered in
// arrival order; events that arrive while a batch waits to be received are
// collected into the next one. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, root string, opts Options, logger *slog.Logger, out chan<- Batch) error {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	skip := make(map[string]struct{}, len(opts.Skip))
	for _, s := range opts.Skip {
		skip[filepath.Clean(s)] = struct{}{}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Paths present before an event. A Create for one of them is a file
	// renamed into place, which counts as a modification.
	known := make(map[string]struct{})
	if err := addDirsRecursive(w, root, skip, known, logger); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var (
		pending = newAccumulator()
		queue   []Batch
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(opts.Window)
			timerC = timer.C
		} else {
			timer.Reset(opts.Window)
		}
	}

	for {
		var sendC chan<- Batch
		var head Batch
		if len(queue) > 0 {
			sendC = out
			head = queue[0]
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case sendC <- head:
			queue = queue[1:]

		case <-timerC:
			if b, ok := pending.flush(); ok {
				if b, ok = dropVanished(b); ok {
					queue = append(queue, b)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if _, skipped := skip[name]; skipped {
				continue
			}

			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(known, name)
			}
			if ev.Op&fsnotify.Create != 0 {
				_, existed := known[name]
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name, skip, known, logger); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				} else {
					known[name] = struct{}{}
				}
				pending.add(ev.Name, !existed)
				schedule()
				continue
			}
			if ev.Op&fsnotify.Write != 0 {
				pending.add(ev.Name, false)
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// accumulator coalesces events per path, remembering first-seen order.
type accumulator struct {
	order   []string
	created map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{created: make(map[string]bool)}
}

func (a *accumulator) add(path string, created bool) {
	prev, seen := a.created[path]
	if !seen {
		a.order = append(a.order, path)
	}
	a.created[path] = prev || created
}

func (a *accumulator) flush() (Batch, bool) {
	if len(a.order) == 0 {
		return Batch{}, false
	}
	b := Batch{Changes: make([]Change, len(a.order))}
	for i, p := range a.order {
		b.Changes[i] = Change{Path: p, Created: a.created[p]}
	}
	a.order = nil
	a.created = make(map[string]bool)
	return b, true
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// except skipped ones, and records every path it passes in known. Entries
// that cannot be read or watched are logged and skipped; only a failure on
// root itself is returned.
func addDirsRecursive(w *fsnotify.Watcher, root string, skip map[string]struct{}, known map[string]struct{}, logger *slog.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("watcher: skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		clean := filepath.Clean(path)
		if _, ok := skip[clean]; ok && d.IsDir() {
			return filepath.SkipDir
		}
		known[clean] = struct{}{}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			logger.Warn("watcher: cannot watch directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

// dropVanished removes changes whose path no longer exists, such as the
// temporary file of an atomic save.
func dropVanished(b Batch) (Batch, bool) {
	kept := b.Changes[:0]
	for _, c := range b.Changes {
		if _, err := os.Lstat(c.Path); err == nil {
			kept = append(kept, c)
		}
	}
	b.Changes = kept
	return b, len(kept) > 0
}
