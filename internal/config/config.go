// Package config decodes pipeline settings from viper.
//
// Values come, in order of precedence, from command-line flags bound by the
// CLI, DIRECTORY_* environment variables (optionally loaded from .env files),
// the .directory.yaml config file and the defaults set by SetDefaults.
package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/constants"
	"github.com/cired/directory/pkg/errors"
)

// Exclusion modes.
const (
	ExclusionDrop        = "drop"
	ExclusionPassthrough = "passthrough"
)

// Settings holds the pipeline configuration.
type Settings struct {
	Inputs        []string          `mapstructure:"inputs"`
	OutputDir     string            `mapstructure:"output_dir"`
	Origins       []string          `mapstructure:"origins"` // most authoritative first
	Authorities   []authority.Field `mapstructure:"authorities"`
	SingleValued  []string          `mapstructure:"single_valued"`
	Attributed    []string          `mapstructure:"attributed"`
	Aliases       map[string]string `mapstructure:"aliases"`
	ExclusionFile string            `mapstructure:"exclusion_file"`
	ExclusionMode string            `mapstructure:"exclusion_mode"`
	ConsentFile   string            `mapstructure:"consent_file"`
	AsOf          string            `mapstructure:"as_of"`
	Workers       int               `mapstructure:"workers"`
	MetricsFile   string            `mapstructure:"metrics_file"`
}

// Keys lists every setting, so each can be set from the environment.
var Keys = []string{
	"inputs", "output_dir", "origins", "authorities", "single_valued",
	"attributed", "aliases", "exclusion_file", "exclusion_mode",
	"consent_file", "as_of", "workers", "metrics_file",
	"log_level", "log_format", "log_output",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("inputs", []string{constants.DefaultInputPattern})
	v.SetDefault("output_dir", constants.DefaultOutputDir)
	v.SetDefault("exclusion_mode", ExclusionDrop)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// New returns a viper instance reading the environment and, when present,
// the config file. An empty configFile searches ".directory.yaml" in the
// home and working directories.
func New(configFile string) (*viper.Viper, error) {
	LoadEnvFiles()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range Keys {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.ConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "reading config file", err)
		}
	}
	return v, nil
}

// LoadEnvFiles loads environment variables from .env files. .env.local
// overrides .env; variables already set in the environment win over both.
func LoadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.NewConfigError("config", "decoding settings", err)
	}
	// list values from the environment arrive as one comma-separated string
	s.Inputs = splitList(s.Inputs)
	s.Origins = splitList(s.Origins)
	s.SingleValued = splitList(s.SingleValued)
	s.Attributed = splitList(s.Attributed)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks value ranges and formats.
func (s *Settings) Validate() error {
	if len(s.Inputs) == 0 {
		return errors.NewValidationError("inputs", "", "at least one input pattern is required")
	}
	if s.OutputDir == "" {
		return errors.NewValidationError("output_dir", "", "is required")
	}
	switch s.ExclusionMode {
	case ExclusionDrop, ExclusionPassthrough:
	default:
		return errors.NewValidationError("exclusion_mode", s.ExclusionMode, "must be drop or passthrough")
	}
	if s.Workers < 1 {
		return errors.NewValidationError("workers", s.Workers, "must be at least 1")
	}
	if _, err := s.Instant(); err != nil {
		return err
	}
	for _, f := range s.Authorities {
		if f.Path == "" || f.Origin == "" {
			return errors.NewValidationError("authorities", f, "property and origin are required")
		}
	}
	return nil
}

// Instant returns the consent evaluation instant: as_of when set, else now.
func (s *Settings) Instant() (time.Time, error) {
	if s.AsOf == "" {
		return time.Now().UTC(), nil
	}
	t, err := consent.ParseTime(s.AsOf)
	if err != nil {
		return time.Time{}, errors.WrapValidation("as_of", err)
	}
	return t, nil
}

// Passthrough reports whether excluded records go to a side output.
func (s *Settings) Passthrough() bool {
	return s.ExclusionMode == ExclusionPassthrough
}

// splitList splits comma-separated entries. Commas inside glob braces such
// as "{askHAL,askCIRED}.vcf" do not split.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		depth, start := 0, 0
		for i, r := range v {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
			case ',':
				if depth == 0 {
					out = appendTrimmed(out, v[start:i])
					start = i + 1
				}
			}
		}
		out = appendTrimmed(out, v[start:])
	}
	return out
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}
