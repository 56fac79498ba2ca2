package site

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/typsite/internal/apperr"
)

// Kind enumerates the build actions a source file can map to.
type Kind int

const (
	Noop Kind = iota
	Passthrough
	RecompileAll
	CompileToPath
)

func (k Kind) String() string {
	switch k {
	case Passthrough:
		return "passthrough"
	case RecompileAll:
		return "recompile_all"
	case CompileToPath:
		return "compile"
	default:
		return "noop"
	}
}

// Action is the outcome of classifying one source file. Destination is set
// for Passthrough and CompileToPath only.
type Action struct {
	Kind        Kind
	Destination string
}

func (a Action) String() string {
	if a.Destination == "" {
		return a.Kind.String()
	}
	return a.Kind.String() + " -> " + a.Destination
}

// Classify maps an absolute source path to its build action. It inspects
// the path string only and never touches the filesystem.
//
// Rules apply in order: passthrough glob, document extension, template
// root, content root. A document outside both roots is an invariant
// violation reported as apperr.ErrOutsideRoots.
func Classify(path string, cfg *Config) (Action, error) {
	contentRoot := cfg.ContentRoot()

	if rel, ok := relUnder(contentRoot, path); ok && matchesAny(cfg.Passthrough, rel) {
		return Action{Kind: Passthrough, Destination: filepath.Join(cfg.OutputRoot(), rel)}, nil
	}

	// A bare ".typ" is a dotfile without an extension.
	if filepath.Ext(path) != DocumentExt || filepath.Base(path) == DocumentExt {
		return Action{Kind: Noop}, nil
	}

	if _, ok := relUnder(cfg.TemplateRoot(), path); ok {
		return Action{Kind: RecompileAll}, nil
	}

	rel, ok := relUnder(contentRoot, path)
	if !ok {
		return Action{}, fmt.Errorf("classify %s: %w", path, apperr.ErrOutsideRoots)
	}

	parent := filepath.Join(cfg.OutputRoot(), filepath.Dir(rel))
	base := filepath.Base(rel)

	var dst string
	if base == IndexDocument || cfg.LiteralPaths {
		dst = filepath.Join(parent, strings.TrimSuffix(base, DocumentExt)+HTMLExt)
	} else {
		dst = filepath.Join(parent, strings.TrimSuffix(base, DocumentExt), IndexFile)
	}
	return Action{Kind: CompileToPath, Destination: dst}, nil
}

// ValidatePatterns rejects malformed passthrough globs.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid passthrough glob %q", p)
		}
	}
	return nil
}

// matchesAny matches rel (slash separated) against the passthrough globs.
// Wildcards never cross a separator except through "**", and they match
// leading dots.
func matchesAny(patterns []string, rel string) bool {
	slashed := filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, slashed); err == nil && ok {
			return true
		}
	}
	return false
}

// relUnder returns path relative to root when path is strictly below root.
func relUnder(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || filepath.IsAbs(rel) || rel == ".." || hasDotDotPrefix(rel) {
		return "", false
	}
	return rel, true
}
