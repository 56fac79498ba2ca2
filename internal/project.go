package internal

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/starford/typsite/internal/apperr"
	pkgconfig "github.com/starford/typsite/pkg/config"
)

// MarkerFile marks a project root and holds its configuration.
const MarkerFile = "typsite.yaml"

// LoadProject locates and loads the project configuration. When configPath
// is set it names the marker directly; otherwise the marker is searched for
// upward from start. The project root is the marker's directory.
func LoadProject(start, configPath string) (*Config, string, error) {
	marker := configPath
	if marker == "" {
		found, err := pkgconfig.FindUp(start, MarkerFile)
		if errors.Is(err, pkgconfig.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: no %s in %s or any parent directory",
				apperr.ErrNoProjectRoot, MarkerFile, start)
		}
		if err != nil {
			return nil, "", err
		}
		marker = found
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(marker, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	root, err := filepath.Abs(filepath.Dir(marker))
	if err != nil {
		return nil, "", fmt.Errorf("resolve project root: %w", err)
	}
	return cfg, root, nil
}
