// Package apperr defines the error kinds shared across the build pipeline.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRendererMissing = errors.New("renderer not found")
	ErrProcessFailed   = errors.New("process exited unsuccessfully")
	ErrReloadClosed    = errors.New("reload channel closed")
	ErrOutsideRoots    = errors.New("path is outside content and template roots")
	ErrNoProjectRoot   = errors.New("no project root found")
)

// StderrCapture is the standard error text of one process in a pipeline.
type StderrCapture struct {
	Source string
	Text   string
}

// ProcessError reports a non-zero exit of the renderer, the post-processor
// or the init command.
type ProcessError struct {
	Command  []string
	Path     string
	ExitCode int
	Stderr   []StderrCapture
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		fmt.Fprintf(&b, "compiling %s failed", e.Path)
	} else {
		fmt.Fprintf(&b, "running %q failed", e.Command)
	}
	fmt.Fprintf(&b, " (exit status %d)", e.ExitCode)
	for _, s := range e.Stderr {
		if text := strings.TrimSpace(s.Text); text != "" {
			fmt.Fprintf(&b, "\n%s stderr:\n%s", s.Source, text)
		}
	}
	return b.String()
}

// Is lets errors.Is(err, ErrProcessFailed) match any ProcessError.
func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessFailed
}

// Chain returns err followed by each error it wraps, outermost first.
// Only the first branch of a joined error is followed.
func Chain(err error) []error {
	var out []error
	for err != nil {
		out = append(out, err)
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return out
			}
			err = errs[0]
		default:
			return out
		}
	}
	return out
}

// Layers renders each link of Chain(err) on its own, with the text of the
// wrapped error trimmed off the end so no message repeats.
func Layers(err error) []string {
	chain := Chain(err)
	out := make([]string, 0, len(chain))
	for i, e := range chain {
		msg := e.Error()
		if i+1 < len(chain) {
			inner := chain[i+1].Error()
			if trimmed, ok := strings.CutSuffix(msg, inner); ok && trimmed != "" {
				msg = strings.TrimRight(trimmed, ": ")
			}
		}
		out = append(out, msg)
	}
	return out
}
