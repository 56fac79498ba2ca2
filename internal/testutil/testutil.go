// Package testutil provides shared test helpers for scaffolding projects
// and faking the external renderer with shell scripts.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/typsite/internal/index"
	"github.com/starford/typsite/internal/site"
)

// Markers understood by the fake renderer.
const (
	CompileFail = "COMPILE_FAIL"
	QueryFail   = "QUERY_FAIL"
	DataPrefix  = "DATA:"
)

const fakeRenderer = `#!/bin/sh
mode="$1"
src="$2"
echo "$mode $src" >> '%LOG%'
case "$mode" in
compile)
	if grep -q '` + CompileFail + `' "$src"; then
		echo "error: cannot compile $src" >&2
		exit 1
	fi
	echo "warning: rendering $src" >&2
	printf '<html><body>'
	cat "$src"
	printf '</body></html>'
	;;
query)
	if grep -q '` + QueryFail + `' "$src"; then
		echo "error: query failed for $src" >&2
		exit 1
	fi
	data=$(sed -n 's/^` + DataPrefix + `//p' "$src")
	if [ -n "$data" ]; then printf '%s' "$data"; else printf '[]'; fi
	;;
*)
	echo "unknown mode $mode" >&2
	exit 2
	;;
esac
`

// Project is a scratch site with a fake renderer wired into its config.
type Project struct {
	Root   string
	Config *site.Config
	// Log receives one "<mode> <path>" line per renderer invocation.
	Log string
}

// NewProject creates src/ and templates/ under a temp root and a fake
// renderer that wraps each document's text in a minimal HTML page.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"src", "templates"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	bin := t.TempDir()
	logPath := filepath.Join(bin, "invocations.log")
	renderer := WriteScript(t, bin, "fake-typst", strings.ReplaceAll(fakeRenderer, "%LOG%", logPath))

	return &Project{
		Root: root,
		Log:  logPath,
		Config: &site.Config{
			ProjectRoot: root,
			ContentDir:  "src",
			TemplateDir: "templates",
			OutputDir:   "_site",
			Renderer:    renderer,
		},
	}
}

// WriteFile writes content at rel under the project root and returns the
// absolute path.
func (p *Project) WriteFile(t *testing.T, rel, content string) string {
	t.Helper()
	abs := filepath.Join(p.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

// Output reads a file under the output root, failing the test if absent.
func (p *Project) Output(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.Config.OutputRoot(), filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read output %s: %v", rel, err)
	}
	return string(data)
}

// Invocations returns the renderer calls recorded so far.
func (p *Project) Invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(p.Log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// WriteScript writes an executable shell script into dir.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestIndex creates a temporary output ledger that is automatically closed.
func TestIndex(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "typsite-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
