package devserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/typsite/internal/logging"
	"github.com/starford/typsite/internal/storage"
)

func newStore(t *testing.T, files map[string]string) *storage.FS {
	t.Helper()
	s, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		require.NoError(t, s.Write(rel, []byte(content)))
	}
	return s
}

func get(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestInjectReloadScript(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"body", "<html><body>x</body></html>", "<html><body>x" + ReloadScript + "</body></html>"},
		{"last body wins", "<body></body><body></body>", "<body></body><body>" + ReloadScript + "</body>"},
		{"html only", "<html>x</html>", "<html>x" + ReloadScript + "</html>"},
		{"neither", "<p>x</p>", "<p>x</p>" + ReloadScript},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(InjectReloadScript([]byte(tc.in))))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/html; charset=utf-8", ContentType("a/index.html"))
	assert.Equal(t, "image/jpeg", ContentType("p.jpeg"))
	assert.Equal(t, "font/woff2", ContentType("f.woff2"))
	assert.Equal(t, "application/octet-stream", ContentType("archive.tar.gz"))
	assert.Equal(t, "application/octet-stream", ContentType("Makefile"))
}

func TestStatic_RootServesIndexWithScript(t *testing.T) {
	store := newStore(t, map[string]string{"index.html": "<html><body>home</body></html>"})
	r := NewRouter(store, nil, logging.Discard())

	w := get(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assert.Equal(t, "0", w.Header().Get("Expires"))
	assert.Contains(t, w.Body.String(), "home"+ReloadScript+"</body>")
	assert.Equal(t, w.Header().Get("Content-Length"), strconv.Itoa(w.Body.Len()))
}

func TestStatic_PrettyURLDirectory(t *testing.T) {
	store := newStore(t, map[string]string{"about/index.html": "<body>about</body>"})
	r := NewRouter(store, nil, logging.Discard())

	for _, p := range []string{"/about", "/about/"} {
		w := get(t, r, http.MethodGet, p)
		require.Equal(t, http.StatusOK, w.Code, p)
		assert.Contains(t, w.Body.String(), "about")
	}
}

func TestStatic_ExtensionlessFallback(t *testing.T) {
	store := newStore(t, map[string]string{"notes.html": "<html><body>notes</body></html>"})
	r := NewRouter(store, nil, logging.Discard())

	w := get(t, r, http.MethodGet, "/notes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasSuffix(w.Body.String(), ReloadScript+"</body></html>"))
}

func TestStatic_NonHTMLUntouched(t *testing.T) {
	store := newStore(t, map[string]string{"style.css": "body{}"})
	r := NewRouter(store, nil, logging.Discard())

	w := get(t, r, http.MethodGet, "/style.css")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{}", w.Body.String())
	assert.Equal(t, "text/css; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestStatic_NotFound(t *testing.T) {
	store := newStore(t, map[string]string{"index.html": "x", "secret.txt": "s"})
	r := NewRouter(store, nil, logging.Discard())

	assert.Equal(t, http.StatusNotFound, get(t, r, http.MethodGet, "/missing").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, http.MethodGet, "/missing.png").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, http.MethodPost, "/index.html").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, http.MethodDelete, "/").Code)
}

func TestStatic_TraversalStaysInRoot(t *testing.T) {
	store := newStore(t, map[string]string{"index.html": "<body>root</body>"})
	r := NewRouter(store, nil, logging.Discard())

	w := get(t, r, http.MethodGet, "/../../etc/passwd")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLivereloadRoute(t *testing.T) {
	store := newStore(t, nil)
	called := false
	reload := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	r := NewRouter(store, reload, logging.Discard())

	assert.Equal(t, http.StatusOK, get(t, r, http.MethodGet, "/livereload").Code)
	assert.True(t, called)
	assert.Equal(t, http.StatusNotFound, get(t, r, http.MethodPost, "/livereload").Code)
}

func TestListen_SkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	ln, err := Listen("127.0.0.1", port, 3)
	if err != nil {
		t.Skipf("neighbouring ports unavailable: %v", err)
	}
	defer ln.Close()
	assert.NotEqual(t, port, ln.Addr().(*net.TCPAddr).Port)
}

func TestListen_RangeExhausted(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	_, err = Listen("127.0.0.1", port, 1)
	assert.Error(t, err)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	store := newStore(t, map[string]string{"index.html": "<body>hi</body>"})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ln, NewRouter(store, nil, logging.Discard()), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "hi")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
