// Package app wires configuration, logging, metrics and the library together.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/azyu/folioseek/internal/storage"
	"github.com/azyu/folioseek/pkg/types"
)

// Environment variables that override the configuration file.
const (
	EnvLibraryDir = "FOLIOSEEK_LIBRARY_DIR"
	EnvLogLevel   = "FOLIOSEEK_LOG_LEVEL"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigStore reads and writes the user configuration file.
type ConfigStore struct {
	path   string
	cached *types.GlobalConfig
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/folioseek/config.yaml, with
// ~/.config standing in for an unset XDG_CONFIG_HOME.
func DefaultConfigPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "folioseek", "config.yaml"), nil
}

// NewConfigStore returns a store for the file at path, or for the default
// location when path is empty.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &ConfigStore{path: path}, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// Load reads the configuration. A missing file yields the defaults, and
// settings absent from the file keep their default values. Environment
// overrides apply after the file.
func (s *ConfigStore) Load() (*types.GlobalConfig, error) {
	if s.cached != nil {
		return s.cached, nil
	}

	cfg := types.DefaultGlobalConfig()
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if dir := os.Getenv(EnvLibraryDir); dir != "" {
		cfg.LibraryDir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.LibraryDir = expandPath(cfg.LibraryDir)

	s.cached = cfg
	return cfg, nil
}

// Save validates cfg and replaces the configuration file atomically.
func (s *ConfigStore) Save(cfg *types.GlobalConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := storage.WriteYAML(s.path, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	s.cached = cfg
	return nil
}

// Validate rejects settings the search engine cannot run with.
func Validate(cfg *types.GlobalConfig) error {
	var problem string
	switch {
	case cfg.LibraryDir == "":
		problem = "library_dir is empty"
	case cfg.Search.BatchSize < 0:
		problem = "search.batch_size must not be negative"
	case cfg.Search.MinResults < 0:
		problem = "search.min_results must not be negative"
	case cfg.Search.Workers < 0:
		problem = "search.workers must not be negative"
	case cfg.Search.SnippetRadius < 0 || cfg.Search.SnippetMaxLength < 0:
		problem = "snippet settings must not be negative"
	case cfg.Index.ChunkSize < 0:
		problem = "index.chunk_size must not be negative"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, problem)
}

func expandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
