package rebuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/typsite/internal/apperr"
	"github.com/starford/typsite/internal/build"
	"github.com/starford/typsite/internal/logging"
	"github.com/starford/typsite/internal/render"
	"github.com/starford/typsite/internal/site"
	"github.com/starford/typsite/internal/storage"
	"github.com/starford/typsite/internal/testutil"
	"github.com/starford/typsite/internal/watch"
)

type fakeBuilder struct {
	mu      sync.Mutex
	full    int
	batches [][]string
	err     error
}

func (f *fakeBuilder) FromScratch(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full++
	return f.err
}

func (f *fakeBuilder) CompileBatch(_ context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, paths)
	return f.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	pulses int
	err    error
}

func (f *fakeNotifier) Notify() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pulses++
	return nil
}

func testConfig() *site.Config {
	return &site.Config{
		ProjectRoot: filepath.FromSlash("/proj"),
		ContentDir:  "src",
		TemplateDir: "templates",
		OutputDir:   "_site",
		Passthrough: []string{"**/*.css"},
	}
}

func change(path string, created bool) watch.Change {
	return watch.Change{Path: filepath.FromSlash(path), Created: created}
}

func TestHandle_IgnoresIrrelevantPaths(t *testing.T) {
	b, n := &fakeBuilder{}, &fakeNotifier{}
	c := NewController(testConfig(), b, n, logging.Discard())

	out := c.Handle(context.Background(), watch.Batch{Changes: []watch.Change{
		change("/proj/_site/index.html", false),
		change("/proj/typsite.yaml", true),
	}})

	assert.Empty(t, out.Paths)
	assert.Zero(t, b.full)
	assert.Empty(t, b.batches)
	assert.Zero(t, n.pulses)
}

func TestHandle_ModificationCompilesExactPaths(t *testing.T) {
	b, n := &fakeBuilder{}, &fakeNotifier{}
	c := NewController(testConfig(), b, n, logging.Discard())

	out := c.Handle(context.Background(), watch.Batch{Changes: []watch.Change{
		change("/proj/src/a.typ", false),
		change("/proj/src/b.typ", false),
		change("/proj/other/c.typ", false),
	}})

	require.NoError(t, out.Err)
	assert.False(t, out.Full)
	require.Len(t, b.batches, 1)
	assert.Equal(t, []string{filepath.FromSlash("/proj/src/a.typ"), filepath.FromSlash("/proj/src/b.typ")}, b.batches[0])
	assert.Equal(t, 1, n.pulses, "one pulse per batch")
}

func TestHandle_CreationRunsFullRebuild(t *testing.T) {
	b, n := &fakeBuilder{}, &fakeNotifier{}
	c := NewController(testConfig(), b, n, logging.Discard())

	out := c.Handle(context.Background(), watch.Batch{Changes: []watch.Change{
		change("/proj/src/a.typ", false),
		change("/proj/src/notes.txt", true),
	}})

	assert.True(t, out.Full)
	assert.Equal(t, 1, b.full)
	assert.Empty(t, b.batches)
	assert.Equal(t, 1, n.pulses, "full rebuilds always signal")
}

func TestHandle_NoopChangeDoesNotSignal(t *testing.T) {
	b, n := &fakeBuilder{}, &fakeNotifier{}
	c := NewController(testConfig(), b, n, logging.Discard())

	out := c.Handle(context.Background(), watch.Batch{Changes: []watch.Change{
		change("/proj/src/notes.txt", false),
	}})

	assert.Len(t, b.batches, 1)
	assert.False(t, out.Signaled)
	assert.Zero(t, n.pulses)
}

func TestHandle_PassthroughSignals(t *testing.T) {
	b, n := &fakeBuilder{}, &fakeNotifier{}
	c := NewController(testConfig(), b, n, logging.Discard())

	out := c.Handle(context.Background(), watch.Batch{Changes: []watch.Change{
		change("/proj/src/style.css", false),
	}})
	assert.True(t, out.Signaled)
}

func TestHandle_NoServerNoSignal(t *testing.T) {
	b := &fakeBuilder{}
	c := NewController(testConfig(), b, nil, logging.Discard())

	out := c.Handle(context.Background(), watch.Batch{Changes: []watch.Change{change("/proj/src/a.typ", false)}})
	assert.False(t, out.Signaled)
	assert.NoError(t, out.Err)
}

func TestRun_ContinuesAfterBuildError(t *testing.T) {
	b := &fakeBuilder{err: errors.New("boom")}
	c := NewController(testConfig(), b, nil, logging.Discard())

	batches := make(chan watch.Batch, 2)
	batches <- watch.Batch{Changes: []watch.Change{change("/proj/src/a.typ", false)}}
	batches <- watch.Batch{Changes: []watch.Change{change("/proj/src/b.typ", false)}}
	close(batches)

	require.NoError(t, c.Run(context.Background(), batches))
	assert.Len(t, b.batches, 2)
}

func TestRun_StopOnError(t *testing.T) {
	b := &fakeBuilder{err: errors.New("boom")}
	c := NewController(testConfig(), b, nil, logging.Discard())
	c.StopOnError = true

	batches := make(chan watch.Batch, 2)
	batches <- watch.Batch{Changes: []watch.Change{change("/proj/src/a.typ", false)}}
	batches <- watch.Batch{Changes: []watch.Change{change("/proj/src/b.typ", false)}}
	close(batches)

	require.Error(t, c.Run(context.Background(), batches))
	assert.Len(t, b.batches, 1)
}

func TestRun_ClosedReloadChannelIsTerminal(t *testing.T) {
	b := &fakeBuilder{}
	n := &fakeNotifier{err: apperr.ErrReloadClosed}
	c := NewController(testConfig(), b, n, logging.Discard())

	batches := make(chan watch.Batch, 1)
	batches <- watch.Batch{Changes: []watch.Change{change("/proj/src/a.typ", false)}}

	err := c.Run(context.Background(), batches)
	require.ErrorIs(t, err, apperr.ErrReloadClosed)
}

func TestWatchLoop_TemplateChangeRebuildsEverything(t *testing.T) {
	p := testutil.NewProject(t)
	p.WriteFile(t, "src/index.typ", "home")
	p.WriteFile(t, "src/about.typ", "about")
	tmpl := p.WriteFile(t, "templates/base.typ", "v1")

	logger := logging.Discard()
	store, err := storage.NewFS(p.Config.OutputRoot())
	require.NoError(t, err)
	exec := build.NewExecutor(p.Config, render.New(p.Config, logger), store, nil, logger)
	require.NoError(t, exec.FromScratch(context.Background()))
	before := len(p.Invocations(t))

	n := &fakeNotifier{}
	c := NewController(p.Config, exec, n, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches := make(chan watch.Batch)
	go watch.Watch(ctx, p.Root, watch.Options{Window: 100 * time.Millisecond, Skip: []string{p.Config.OutputRoot()}}, logger, batches)
	go c.Run(ctx, batches)
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, writeFile(tmpl, "v2"))

	assert.Eventually(t, func() bool {
		calls := p.Invocations(t)[before:]
		seen := map[string]bool{}
		for _, call := range calls {
			seen[strings.TrimPrefix(call, "compile ")] = true
		}
		return seen[filepath.Join(p.Root, "src", "index.typ")] && seen[filepath.Join(p.Root, "src", "about.typ")]
	}, 5*time.Second, 50*time.Millisecond, "template change should recompile the whole content tree")

	assert.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.pulses >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
