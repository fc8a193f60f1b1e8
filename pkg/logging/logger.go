// Package logging provides structured logging for the directory pipeline using
// zerolog. Console output is used when stderr is a terminal, JSON otherwise.
//
// Example usage:
//
//	log := logging.Default()
//	log.Info().Str("origin", "askHAL").Int("records", 42).Msg("Parsed input")
//
//	ctx := logging.WithLogger(context.Background(), log)
//	ctx = logging.WithIdentity(ctx, "marie dubois")
//	logging.FromContext(ctx).Debug().Msg("Merging group")
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger zerolog.Logger

	// Nop logger for discarding output.
	Nop = zerolog.Nop()
)

func init() {
	defaultLogger = NewLoggerFromConfig(&Config{
		Level:      getLogLevel(),
		Format:     getEnvOrDefault("LOG_FORMAT", "auto"),
		Output:     "stderr",
		TimeFormat: "kitchen",
		NoColor:    os.Getenv("NO_COLOR") != "",
	})
}

// Default returns the default global logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault sets the default global logger, the one FromContext falls back
// to when a context carries none.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// New creates a new JSON logger writing to w.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		Level(zerolog.GlobalLevel()).
		With().
		Timestamp().
		Logger()
}

// getLogLevel returns the log level from environment or defaults.
func getLogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	if os.Getenv("DEBUG") != "" {
		return "debug"
	}
	return "info"
}
