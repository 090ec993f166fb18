package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is looked up in the working directory and its parents
	// and overrides the user config where set.
	ProjectConfigFile = "compmap.yaml"

	// DefaultDatabaseFile is created next to the user config when no layer
	// sets a storage path.
	DefaultDatabaseFile = "compmap.db"

	userConfigDir  = ".config/compmap"
	userConfigFile = "config.yaml"
)

// Loader assembles the effective configuration from layered sources.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load merges configuration layers, lowest precedence first: built-in
// defaults, the user config under ~/.config/compmap, and the nearest
// project compmap.yaml. A missing layer is skipped; an unreadable one is
// logged and skipped.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{userConfigPath(), nearestProjectConfig()} {
		if path == "" {
			continue
		}
		layer, err := LoadFromFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				l.logger.Warn("Skipping unreadable config layer",
					slog.String("path", path), slog.String("error", err.Error()))
			}
			continue
		}
		l.logger.Debug("Applied config layer", slog.String("path", path))
		cfg.Merge(layer)
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultStoragePath()
		l.logger.Debug("Using default storage path", slog.String("path", cfg.Storage.Path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureUserConfig writes the default user config if none exists yet.
func (l *Loader) EnsureUserConfig() error {
	path := userConfigPath()
	if path == "" {
		return errors.New("cannot resolve home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	l.logger.Info("Created default user config", slog.String("path", path))
	return nil
}

func userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, userConfigDir, userConfigFile)
}

// defaultStoragePath places the database next to the user config, falling
// back to the working directory when no home is resolvable.
func defaultStoragePath() string {
	if user := userConfigPath(); user != "" {
		return filepath.Join(filepath.Dir(user), DefaultDatabaseFile)
	}
	return DefaultDatabaseFile
}

// nearestProjectConfig walks from the working directory toward the
// filesystem root and returns the first ProjectConfigFile found.
func nearestProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
