package devserver

import (
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/typsite/internal/site"
	"github.com/starford/typsite/internal/storage"
)

// ReloadScript is inserted into every HTML page the dev server returns.
const ReloadScript = `<script>
    const source = new EventSource('/livereload');
    source.onmessage = () => {
        source.close();
        location.reload();
    };
    source.onerror = () => {
        source.close();
    };
    window.onbeforeunload = () => {
        source.close();
    };
</script>`

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".pdf":   "application/pdf",
}

// ContentType maps a file name to the MIME type served for it.
func ContentType(name string) string {
	if ct, ok := contentTypes[filepath.Ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// InjectReloadScript places ReloadScript before the last </body>, else
// before the last </html>, else at the end of the document.
func InjectReloadScript(html []byte) []byte {
	s := string(html)
	for _, tag := range []string{"</body>", "</html>"} {
		if i := strings.LastIndex(s, tag); i >= 0 {
			return []byte(s[:i] + ReloadScript + s[i:])
		}
	}
	return []byte(s + ReloadScript)
}

type staticHandler struct {
	store  storage.Provider
	logger *slog.Logger
}

// resolve maps a URL path to a file under the output root.
func (h *staticHandler) resolve(urlPath string) (string, bool) {
	rel := filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+urlPath), "/"))
	if h.store.IsDir(rel) {
		rel = filepath.Join(rel, site.IndexFile)
	}
	if h.store.Exists(rel) {
		return rel, true
	}
	if filepath.Ext(rel) == "" && h.store.Exists(rel+site.HTMLExt) {
		return rel + site.HTMLExt, true
	}
	return "", false
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel, ok := h.resolve(r.URL.Path)
	if !ok {
		notFound(w, r)
		return
	}

	body, err := h.store.Read(rel)
	if err != nil {
		h.logger.Warn("read output file", slog.String("path", rel), slog.String("error", err.Error()))
		notFound(w, r)
		return
	}

	ct := ContentType(rel)
	if strings.HasPrefix(ct, "text/html") {
		body = InjectReloadScript(body)
	}

	hdr := w.Header()
	hdr.Set("Content-Type", ct)
	hdr.Set("Content-Length", strconv.Itoa(len(body)))
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Error 404."))
}
