package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config        *Config
	projectRoot   string
	watch         bool
	serve         bool
	ignoreInitial bool
	verbose       bool
	trace         bool
	logOutput     io.Writer
	ready         func(url string)
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithProjectRoot sets the directory all site roots are relative to.
func WithProjectRoot(root string) Option {
	return func(a *application) {
		a.projectRoot = root
	}
}

// WithWatch keeps rebuilding on file changes after the initial build.
func WithWatch(enabled bool) Option {
	return func(a *application) {
		a.watch = enabled
	}
}

// WithServe starts the development server. Serving implies watching.
func WithServe(enabled bool) Option {
	return func(a *application) {
		a.serve = enabled
		if enabled {
			a.watch = true
		}
	}
}

// WithIgnoreInitial skips the initial full build.
func WithIgnoreInitial(enabled bool) Option {
	return func(a *application) {
		a.ignoreInitial = enabled
	}
}

// WithVerbosity raises the log level to debug or trace.
func WithVerbosity(verbose, trace bool) Option {
	return func(a *application) {
		a.verbose = verbose
		a.trace = trace
	}
}

// WithLogOutput redirects the JSON log stream (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithReadyHook is called with the dev server URL once it is listening.
func WithReadyHook(fn func(url string)) Option {
	return func(a *application) {
		a.ready = fn
	}
}
