// Package app provides the application context and dependency management
// for the directory CLI. It centralizes configuration, logging and the
// construction of pipelines from settings.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/cired/directory"
	"github.com/cired/directory/internal/config"
	"github.com/cired/directory/pkg/errors"
)

// App represents the directory application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Settings source (lazy-initialized, singleton)
	mu    sync.Mutex
	viper *viper.Viper
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	// Load configuration
	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.NewConfigError("app", "loading config", err)
	}
	app.config = cfg

	// Initialize logger
	logger := NewLogger(cfg)
	app.logger = &logger

	// Apply any custom options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Viper returns the settings source, reading the config file on first use.
func (a *App) Viper() (*viper.Viper, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.viper != nil {
		return a.viper, nil
	}
	v, err := config.New(a.config.ConfigFile)
	if err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		a.logger.Debug().Str("file", used).Msg("Loaded config file")
	}
	a.viper = v
	return v, nil
}

// Settings decodes and validates the pipeline settings.
func (a *App) Settings() (*config.Settings, error) {
	v, err := a.Viper()
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}

// Pipeline builds a pipeline from settings. Extra options are applied last.
func (a *App) Pipeline(s *config.Settings, extra ...directory.Option) (directory.Pipeline, error) {
	opts, err := pipelineOptions(s)
	if err != nil {
		return nil, err
	}
	return directory.New(append(opts, extra...)...)
}

// Shutdown performs graceful shutdown of the application. A run holds no
// background resources; output files are replaced atomically.
func (a *App) Shutdown(_ context.Context) error {
	a.logger.Debug().Msg("Shutting down")
	return nil
}

// pipelineOptions maps settings onto pipeline options.
func pipelineOptions(s *config.Settings) ([]directory.Option, error) {
	asOf, err := s.Instant()
	if err != nil {
		return nil, err
	}
	mode, err := directory.ParseExclusionMode(s.ExclusionMode)
	if err != nil {
		return nil, err
	}

	opts := []directory.Option{
		directory.WithInputs(s.Inputs...),
		directory.WithOutputDir(s.OutputDir),
		directory.WithRanking(s.Origins...),
		directory.WithAuthorities(s.Authorities...),
		directory.WithAliases(s.Aliases),
		directory.WithExclusionMode(mode),
		directory.WithAsOf(asOf),
		directory.WithWorkers(s.Workers),
	}
	if len(s.SingleValued) > 0 {
		opts = append(opts, directory.WithSingleValued(s.SingleValued...))
	}
	if len(s.Attributed) > 0 {
		opts = append(opts, directory.WithAttributed(s.Attributed...))
	}
	if s.ExclusionFile != "" {
		opts = append(opts, directory.WithExclusionFile(s.ExclusionFile))
	}
	if s.ConsentFile != "" {
		opts = append(opts, directory.WithConsentFile(s.ConsentFile))
	}
	if s.MetricsFile != "" {
		opts = append(opts, directory.WithMetricsFile(s.MetricsFile))
	}
	return opts, nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(cfg *Config) Option {
	return func(a *App) error {
		a.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithViper sets a custom settings source (useful for testing).
func WithViper(v *viper.Viper) Option {
	return func(a *App) error {
		a.viper = v
		return nil
	}
}
