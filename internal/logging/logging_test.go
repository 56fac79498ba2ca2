package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestEffectiveLevel(t *testing.T) {
	cases := []struct {
		opts Options
		want slog.Level
	}{
		{Options{Level: slog.LevelInfo}, slog.LevelInfo},
		{Options{Level: slog.LevelWarn, Verbose: true}, slog.LevelDebug},
		{Options{Level: slog.LevelInfo, Verbose: true, Trace: true}, LevelTrace},
	}
	for _, tc := range cases {
		if got := tc.opts.Effective(); got != tc.want {
			t.Errorf("Effective(%+v) = %v, want %v", tc.opts, got, tc.want)
		}
	}
}

func TestTraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Trace: true})
	logger.Log(context.Background(), LevelTrace, "classified")
	if !strings.Contains(buf.String(), `"level":"TRACE"`) {
		t.Errorf("trace level not labelled: %s", buf.String())
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelInfo})
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %s", buf.String())
	}
}
