package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/typsite/internal/devserver"
	"github.com/starford/typsite/internal/site"
)

// File listing modes accepted in site.file_listing.
const (
	FileListingDisabled    = "disabled"
	FileListingEnabled     = "enabled"
	FileListingIncludeData = "include_data"
)

// Config represents the contents of typsite.yaml.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Site     SiteConfig        `yaml:"site"`
	Commands CommandsConfig    `yaml:"commands"`
	Renderer RendererConfig    `yaml:"renderer"`
	Serve    ServeConfig       `yaml:"serve"`
	Index    IndexConfig       `yaml:"index"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Renderer.Validate(); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	if err := c.Serve.Validate(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// SiteConfig describes the project layout and routing options.
type SiteConfig struct {
	ContentRoot  string   `yaml:"content_root"`
	TemplateRoot string   `yaml:"template_root"`
	OutputRoot   string   `yaml:"output_root"`
	Passthrough  []string `yaml:"passthrough"`
	LiteralPaths bool     `yaml:"literal_paths"`
	FileListing  string   `yaml:"file_listing"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	if c.FileListing == "" {
		c.FileListing = FileListingDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ContentRoot, validation.Required),
		validation.Field(&c.TemplateRoot, validation.Required),
		validation.Field(&c.OutputRoot, validation.Required),
		validation.Field(&c.FileListing, validation.In(FileListingDisabled, FileListingEnabled, FileListingIncludeData)),
	); err != nil {
		return err
	}
	return site.ValidatePatterns(c.Passthrough)
}

func (c *SiteConfig) listing() site.FileListing {
	switch c.FileListing {
	case FileListingEnabled:
		return site.ListingEnabled
	case FileListingIncludeData:
		return site.ListingIncludeData
	default:
		return site.ListingDisabled
	}
}

// CommandsConfig holds the optional init and post-processing commands.
// Each is an argv vector; empty means not configured.
type CommandsConfig struct {
	Init           []string `yaml:"init"`
	PostProcessing []string `yaml:"post_processing"`
}

// RendererConfig selects the renderer binary and extra arguments.
type RendererConfig struct {
	Binary    string   `yaml:"binary"`
	ExtraArgs []string `yaml:"extra_args"`
}

// Validate validates the renderer configuration.
func (c *RendererConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
	)
}

// ServeConfig holds the development server bind settings.
type ServeConfig struct {
	Host      string `yaml:"host"`
	PortLow   int    `yaml:"port_low"`
	PortCount int    `yaml:"port_count"`
}

// Validate validates the serve configuration.
func (c *ServeConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.PortLow, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.PortCount, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.PortLow+c.PortCount-1 > 65535 {
		return fmt.Errorf("port range %d+%d exceeds 65535", c.PortLow, c.PortCount)
	}
	return nil
}

// IndexConfig holds the output index database location. An empty path
// keeps the index in memory for the lifetime of the process.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Resolve produces the immutable site configuration for projectRoot.
func (c *Config) Resolve(projectRoot string) (*site.Config, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if err := site.ValidatePatterns(c.Site.Passthrough); err != nil {
		return nil, err
	}
	return &site.Config{
		ProjectRoot:    root,
		ContentDir:     c.Site.ContentRoot,
		TemplateDir:    c.Site.TemplateRoot,
		OutputDir:      c.Site.OutputRoot,
		Passthrough:    c.Site.Passthrough,
		Init:           c.Commands.Init,
		PostProcessing: c.Commands.PostProcessing,
		LiteralPaths:   c.Site.LiteralPaths,
		FileListing:    c.Site.listing(),
		Renderer:       c.Renderer.Binary,
		ExtraArgs:      c.Renderer.ExtraArgs,
	}, nil
}

// IndexPath returns the index database path, relative paths being taken
// from projectRoot.
func (c *Config) IndexPath(projectRoot string) string {
	if c.Index.Path == "" || filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(projectRoot, c.Index.Path)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Site: SiteConfig{
			ContentRoot:  "src",
			TemplateRoot: "templates",
			OutputRoot:   "_site",
			FileListing:  FileListingDisabled,
		},
		Renderer: RendererConfig{
			Binary: "typst",
		},
		Serve: ServeConfig{
			Host:      devserver.DefaultHost,
			PortLow:   devserver.DefaultPortLow,
			PortCount: devserver.DefaultPortCount,
		},
	}
}
