// Package devserver serves the output tree over HTTP during development and
// mounts the live-reload stream next to it.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/typsite/internal/storage"
)

// Defaults for the candidate port range.
const (
	DefaultHost      = "0.0.0.0"
	DefaultPortLow   = 8000
	DefaultPortCount = 50
)

// Listen binds the first free port in [low, low+count). A port that is
// already in use moves on to the next one; any other error is returned.
func Listen(host string, low, count int) (net.Listener, error) {
	for port := low; port < low+count; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if errors.Is(err, syscall.EADDRINUSE) {
			continue
		}
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return nil, fmt.Errorf("no free port in range %d-%d", low, low+count-1)
}

// NewRouter returns the dev server routes: GET /livereload is handed to
// reload, every other GET is served from store. Everything else is a 404.
func NewRouter(store storage.Provider, reload http.Handler, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	if reload != nil {
		r.Get("/livereload", reload.ServeHTTP)
	}
	r.Get("/*", (&staticHandler{store: store, logger: logger}).ServeHTTP)

	return r
}

// Server is the development HTTP server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// New wraps handler in a server bound to ln.
func New(ln net.Listener, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// URL returns a browsable URL for the bound address.
func (s *Server) URL() string {
	port := s.listener.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("http://localhost:%d", port)
}

// Serve accepts connections until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving site", slog.String("url", s.URL()))
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dev server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("dev server shutdown error", slog.String("error", err.Error()))
	}
	return <-errCh
}
