// Package render runs the external document compiler and the optional
// post-processing filter and init command around it.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/starford/typsite/internal/apperr"
	"github.com/starford/typsite/internal/logging"
	"github.com/starford/typsite/internal/site"
)

// DataQuery is the metadata tag queried for the file listing.
const DataQuery = "<data>"

const downloadHint = "maybe it is not installed? See https://typst.app/open-source/#download"

// Runner invokes the renderer for one project configuration.
type Runner struct {
	cfg    *site.Config
	logger *slog.Logger
}

// New returns a Runner for cfg.
func New(cfg *site.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// CheckInstalled fails with apperr.ErrRendererMissing when the renderer
// binary cannot be found on PATH.
func (r *Runner) CheckInstalled() error {
	if _, err := exec.LookPath(r.cfg.Renderer); err != nil {
		return fmt.Errorf("%w: %q, %s", apperr.ErrRendererMissing, r.cfg.Renderer, downloadHint)
	}
	return nil
}

// CompileArgs returns the renderer arguments used to compile path to
// standard output.
func (r *Runner) CompileArgs(path string) []string {
	args := []string{
		"compile", path, "-",
		"--features", "html",
		"--format", "html",
		"--root", r.cfg.ProjectRoot,
	}
	return append(args, r.cfg.ExtraArgs...)
}

// QueryArgs returns the renderer arguments used to query path for the
// embedded metadata tag.
func (r *Runner) QueryArgs(path string) []string {
	args := []string{
		"query", path, DataQuery,
		"--features", "html",
		"--root", r.cfg.ProjectRoot,
	}
	return append(args, r.cfg.ExtraArgs...)
}

// Compile renders path and returns the final bytes, piped through the
// post-processing command when one is configured.
func (r *Runner) Compile(ctx context.Context, path string) ([]byte, error) {
	renderer := exec.CommandContext(ctx, r.cfg.Renderer, r.CompileArgs(path)...)
	renderer.Dir = r.cfg.ProjectRoot
	var rendererErr bytes.Buffer
	renderer.Stderr = &rendererErr

	if len(r.cfg.PostProcessing) == 0 {
		var out bytes.Buffer
		renderer.Stdout = &out
		if err := renderer.Start(); err != nil {
			return nil, r.spawnError(err)
		}
		waitErr := renderer.Wait()
		r.logStderr("renderer", path, rendererErr.String())
		if waitErr != nil {
			return nil, processError(waitErr, renderer.Args, path,
				apperr.StderrCapture{Source: "renderer", Text: rendererErr.String()})
		}
		return out.Bytes(), nil
	}

	pp := exec.CommandContext(ctx, r.cfg.PostProcessing[0], r.cfg.PostProcessing[1:]...)
	pp.Dir = r.cfg.ProjectRoot
	var ppErr, out bytes.Buffer
	pp.Stderr = &ppErr
	pp.Stdout = &out

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipe renderer to post-processing: %w", err)
	}
	renderer.Stdout = pw
	pp.Stdin = pr

	if err := renderer.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, r.spawnError(err)
	}
	if err := pp.Start(); err != nil {
		pr.Close()
		pw.Close()
		_ = renderer.Wait()
		return nil, fmt.Errorf("start post-processing %q: %w", r.cfg.PostProcessing, err)
	}
	// The children hold their own copies of the pipe ends.
	pw.Close()
	pr.Close()

	rendererWait := renderer.Wait()
	ppWait := pp.Wait()
	r.logStderr("renderer", path, rendererErr.String())
	r.logStderr("post-processing", path, ppErr.String())

	stderr := []apperr.StderrCapture{
		{Source: "renderer", Text: rendererErr.String()},
		{Source: "post-processing", Text: ppErr.String()},
	}
	if rendererWait != nil {
		return nil, processError(rendererWait, renderer.Args, path, stderr...)
	}
	if ppWait != nil {
		return nil, processError(ppWait, pp.Args, path, stderr...)
	}
	return out.Bytes(), nil
}

// Query returns the JSON the renderer prints for the metadata tag in path.
func (r *Runner) Query(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.cfg.Renderer, r.QueryArgs(path)...)
	cmd.Dir = r.cfg.ProjectRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, r.spawnError(err)
	}
	waitErr := cmd.Wait()
	r.logStderr("renderer query", path, stderr.String())
	if waitErr != nil {
		return nil, processError(waitErr, cmd.Args, path,
			apperr.StderrCapture{Source: "renderer query", Text: stderr.String()})
	}
	return stdout.Bytes(), nil
}

// RunInit runs the configured init command to completion. It is a no-op
// when no init command is configured.
func (r *Runner) RunInit(ctx context.Context) error {
	if len(r.cfg.Init) == 0 {
		return nil
	}
	r.logger.Info("running init command", slog.Any("command", r.cfg.Init))

	cmd := exec.CommandContext(ctx, r.cfg.Init[0], r.cfg.Init[1:]...)
	cmd.Dir = r.cfg.ProjectRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.logStderr("init", "", stderr.String())
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("couldn't init, tried running %q: %w", r.cfg.Init, err)
		}
		return processError(err, cmd.Args, "", apperr.StderrCapture{Source: "init", Text: stderr.String()})
	}
	r.logStderr("init", "", stderr.String())
	if s := strings.TrimSpace(stdout.String()); s != "" {
		r.logger.Debug("init stdout", slog.String("output", s))
	}
	r.logger.Log(ctx, logging.LevelTrace, "finished init")
	return nil
}

func (r *Runner) spawnError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to run %q, %s: %w", r.cfg.Renderer, downloadHint,
			errors.Join(apperr.ErrRendererMissing, err))
	}
	return fmt.Errorf("failed to run %q: %w", r.cfg.Renderer, err)
}

func (r *Runner) logStderr(source, path, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	attrs := []any{slog.String("source", source), slog.String("stderr", text)}
	if path != "" {
		attrs = append(attrs, slog.String("path", path))
	}
	r.logger.Warn("process stderr", attrs...)
}

// processError converts a Wait error into *apperr.ProcessError when the
// process ran and exited unsuccessfully.
func processError(err error, argv []string, path string, stderr ...apperr.StderrCapture) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("waiting for %q: %w", argv, err)
	}
	return &apperr.ProcessError{
		Command:  argv,
		Path:     path,
		ExitCode: exitErr.ExitCode(),
		Stderr:   stderr,
	}
}
