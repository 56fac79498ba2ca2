// Package sse implements the live-reload Server-Sent Events broker.
package sse

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/typsite/internal/apperr"
)

const (
	streamHeader = "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/event-stream\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Connection: keep-alive\r\n" +
		"Access-Control-Allow-Origin: *\r\n\r\n"

	reloadFrame = "data: reload\n\n"
)

// Broker tracks open live-reload streams and pushes a reload frame to each
// of them whenever a signal arrives.
//
// Concurrency model: Notify may be called from any goroutine and only
// enqueues a pulse. A single broadcast goroutine drains pulses. The client
// registry is shared with ServeHTTP and guarded by mu, which is held only
// while the slice is copied or mutated, never across a network write.
type Broker struct {
	logger       *slog.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	clients []net.Conn

	signals chan struct{}
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker and starts its broadcast goroutine.
func NewBroker(logger *slog.Logger, writeTimeout time.Duration) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}

	b := &Broker{
		logger:       logger,
		writeTimeout: writeTimeout,
		signals:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	for {
		select {
		case <-b.stopCh:
			b.mu.Lock()
			clients := b.clients
			b.clients = nil
			b.mu.Unlock()
			for _, c := range clients {
				_ = c.Close()
			}
			return

		case <-b.signals:
			b.Broadcast()
		}
	}
}

// Notify enqueues a reload pulse. Pulses that arrive while one is already
// pending are merged into it. After Close it returns apperr.ErrReloadClosed.
func (b *Broker) Notify() error {
	if b.closed.Load() {
		return apperr.ErrReloadClosed
	}
	select {
	case b.signals <- struct{}{}:
	default:
	}
	return nil
}

// Broadcast writes a reload frame to every registered stream and drops the
// ones whose write fails. It returns the number of streams still tracked.
func (b *Broker) Broadcast() int {
	b.mu.Lock()
	snapshot := make([]net.Conn, len(b.clients))
	copy(snapshot, b.clients)
	b.mu.Unlock()

	var dead []net.Conn
	for _, c := range snapshot {
		_ = c.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if _, err := c.Write([]byte(reloadFrame)); err != nil {
			dead = append(dead, c)
			_ = c.Close()
		}
	}

	b.mu.Lock()
	if len(dead) > 0 {
		kept := b.clients[:0]
		for _, c := range b.clients {
			if !contains(dead, c) {
				kept = append(kept, c)
			}
		}
		b.clients = kept
	}
	n := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug("tracking streams for hot reloading",
		slog.Int("streams", n), slog.Int("dropped", len(dead)))
	return n
}

func contains(conns []net.Conn, c net.Conn) bool {
	for _, x := range conns {
		if x == c {
			return true
		}
	}
	return false
}

// Register adds an already-open stream to the registry.
func (b *Broker) Register(c net.Conn) {
	if b.closed.Load() {
		_ = c.Close()
		return
	}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
}

// ClientCount returns the number of tracked streams.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close stops the broadcast goroutine and closes every stream.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// ServeHTTP is the live-reload endpoint (GET /livereload). The connection
// is taken over from net/http and kept open until a write to it fails.
func (b *Broker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if b.closed.Load() {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		b.logger.Warn("livereload hijack failed", slog.String("error", err.Error()))
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
	if _, err := rw.WriteString(streamHeader); err != nil {
		_ = conn.Close()
		return
	}
	if err := rw.Flush(); err != nil {
		_ = conn.Close()
		return
	}
	b.Register(conn)
}
