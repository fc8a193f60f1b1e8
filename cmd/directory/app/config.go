package app

import (
	"os"

	"github.com/cired/directory/internal/config"
	"github.com/cired/directory/pkg/constants"
)

// Config holds the CLI-level configuration: global flags and logging.
// Pipeline settings are decoded separately by internal/config.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool

	// Config file
	ConfigFile string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads the logging configuration from the environment, after
// .env files. Flags are applied later by UpdateFromFlags.
func LoadConfig() (*Config, error) {
	config.LoadEnvFiles()

	return &Config{
		LogLevel:  os.Getenv(envKey("LOG_LEVEL")),
		LogFormat: getEnvOrDefault(envKey("LOG_FORMAT"), "auto"),
		LogOutput: getEnvOrDefault(envKey("LOG_OUTPUT"), "stderr"),
	}, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// Flag values take precedence over the environment.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

func envKey(name string) string {
	return constants.EnvPrefix + "_" + name
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
