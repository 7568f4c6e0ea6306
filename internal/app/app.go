package app

import (
	"fmt"

	"github.com/azyu/folioseek/internal/library"
	"github.com/azyu/folioseek/internal/logger"
	"github.com/azyu/folioseek/internal/metrics"
	"github.com/azyu/folioseek/pkg/types"
)

// App represents the main application instance.
type App struct {
	Config  *ConfigStore
	Global  *types.GlobalConfig
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Library *library.Manager
	Current *library.Volume
}

// Options overrides parts of the loaded configuration.
type Options struct {
	// ConfigPath replaces the default configuration file location.
	ConfigPath string
	// LogLevel replaces logging.level when set.
	LogLevel string
	// Metrics forces metric collection on.
	Metrics bool
}

// New creates a new application instance.
func New(opts Options) (*App, error) {
	store, err := NewConfigStore(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to locate config: %w", err)
	}

	globalConfig, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := globalConfig.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log := logger.New(logger.Config{
		Level:  level,
		Pretty: globalConfig.Logging.Pretty,
	})

	var m *metrics.Metrics
	if globalConfig.Metrics.Enabled || opts.Metrics {
		m = metrics.New(nil)
	}

	manager, err := library.NewManager(globalConfig, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize library: %w", err)
	}

	return &App{
		Config:  store,
		Global:  globalConfig,
		Log:     log,
		Metrics: m,
		Library: manager,
	}, nil
}

// OpenBook opens a book and makes it current, closing the previous one.
func (a *App) OpenBook(path string) (*library.Volume, error) {
	vol, err := a.Library.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open book: %w", err)
	}
	if a.Current != nil {
		a.Current.Close()
	}
	a.Current = vol
	return vol, nil
}

// ListBooks returns the books in the library.
func (a *App) ListBooks() ([]*library.Entry, error) {
	return a.Library.List()
}

// Close cleans up application resources.
func (a *App) Close() error {
	if a.Current != nil {
		err := a.Current.Close()
		a.Current = nil
		return err
	}
	return nil
}
