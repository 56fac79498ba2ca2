// Package site holds the resolved, immutable project configuration and the
// path classifier that decides what happens to every source file.
package site

import (
	"path/filepath"
	"strings"
)

const (
	// DocumentExt is the extension of renderable documents.
	DocumentExt = ".typ"
	// IndexDocument is the reserved document name that keeps its own name.
	IndexDocument = "index" + DocumentExt
	// IndexFile is the reserved output name for directory indexes.
	IndexFile = "index.html"
	// HTMLExt is the extension written for compiled documents.
	HTMLExt = ".html"
	// ManifestFile is written at project root when file listing is enabled.
	ManifestFile = "files.json"
)

// FileListing selects whether and how files.json is produced.
type FileListing int

const (
	ListingDisabled FileListing = iota
	ListingEnabled
	ListingIncludeData
)

func (l FileListing) String() string {
	switch l {
	case ListingEnabled:
		return "enabled"
	case ListingIncludeData:
		return "include_data"
	default:
		return "disabled"
	}
}

// Config is the fully resolved configuration. It is built once at startup
// and never mutated; components receive it explicitly.
type Config struct {
	ProjectRoot string

	// Roots relative to ProjectRoot.
	ContentDir  string
	TemplateDir string
	OutputDir   string

	Passthrough    []string
	Init           []string
	PostProcessing []string
	LiteralPaths   bool
	FileListing    FileListing

	Renderer  string
	ExtraArgs []string
}

// ContentRoot returns the absolute content root.
func (c *Config) ContentRoot() string { return filepath.Join(c.ProjectRoot, c.ContentDir) }

// TemplateRoot returns the absolute template root.
func (c *Config) TemplateRoot() string { return filepath.Join(c.ProjectRoot, c.TemplateDir) }

// OutputRoot returns the absolute output root.
func (c *Config) OutputRoot() string { return filepath.Join(c.ProjectRoot, c.OutputDir) }

// ManifestPath returns where files.json is written.
func (c *Config) ManifestPath() string { return filepath.Join(c.ProjectRoot, ManifestFile) }

// Watched reports whether path lies under the content or template root.
func (c *Config) Watched(path string) bool {
	return within(c.ContentRoot(), path) || within(c.TemplateRoot(), path)
}

// within reports whether path equals root or is nested below it.
func within(root, path string) bool {
	if filepath.Clean(root) == filepath.Clean(path) {
		return true
	}
	_, ok := relUnder(root, path)
	return ok
}

func hasDotDotPrefix(rel string) bool {
	return strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
