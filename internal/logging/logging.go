// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"log/slog"
)

// LevelTrace sits below Debug for per-file classification and process details.
const LevelTrace = slog.Level(-8)

// Options selects the effective log level.
type Options struct {
	Level   slog.Level
	Verbose bool
	Trace   bool
}

// Effective returns the level implied by the flags, falling back to Level.
func (o Options) Effective() slog.Level {
	switch {
	case o.Trace:
		return LevelTrace
	case o.Verbose:
		return slog.LevelDebug
	default:
		return o.Level
	}
}

// New returns a JSON logger writing to w at the effective level.
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: opts.Effective(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
