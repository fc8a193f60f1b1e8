package directory

import (
	"time"

	"github.com/cired/directory/internal/metrics"
	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/sources"
)

// ExclusionMode decides what happens to records on the exclusion list.
type ExclusionMode string

// Exclusion modes.
const (
	// ExclusionDrop removes excluded records entirely
	ExclusionDrop ExclusionMode = "drop"
	// ExclusionPassthrough writes excluded records unmerged to excluded.vcf,
	// which is never exported
	ExclusionPassthrough ExclusionMode = "passthrough"
)

// ParseExclusionMode parses "drop" or "passthrough".
func ParseExclusionMode(s string) (ExclusionMode, error) {
	switch m := ExclusionMode(s); m {
	case ExclusionDrop, ExclusionPassthrough:
		return m, nil
	case "":
		return ExclusionDrop, nil
	default:
		return "", errors.NewValidationError("exclusion_mode", s, "must be drop or passthrough")
	}
}

// config holds the pipeline configuration.
type config struct {
	patterns []string
	sources  []sources.Source

	outputDir string
	dryRun    bool

	ranking      []string
	authorities  []authority.Field
	singleValued []string
	attributed   []string
	workers      int

	aliases       map[string]string
	exclusions    []string
	exclusionFile string
	exclusionMode ExclusionMode

	grants      map[string][]consent.Grant
	consentFile string
	asOf        time.Time

	metrics     *metrics.Metrics
	metricsFile string
}

func defaultConfig() *config {
	return &config{
		exclusionMode: ExclusionDrop,
	}
}

// Option is a function that configures a Pipeline instance
type Option func(*config) error

func (c *config) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	if c.asOf.IsZero() {
		c.asOf = time.Now().UTC()
	}
	if c.metricsFile != "" && c.metrics == nil {
		c.metrics = metrics.New()
	}
	return nil
}

// WithInputs adds glob patterns (with ** support) of collector files. The
// origin of each file is its base name without extension.
func WithInputs(patterns ...string) Option {
	return func(c *config) error {
		c.patterns = append(c.patterns, patterns...)
		return nil
	}
}

// WithSources adds sources read alongside the input files.
func WithSources(srcs ...sources.Source) Option {
	return func(c *config) error {
		c.sources = append(c.sources, srcs...)
		return nil
	}
}

// WithOutputDir configures where outputs are written.
func WithOutputDir(dir string) Option {
	return func(c *config) error {
		c.outputDir = dir
		return nil
	}
}

// WithDryRun runs every stage but writes nothing.
func WithDryRun(enabled bool) Option {
	return func(c *config) error {
		c.dryRun = enabled
		return nil
	}
}

// WithRanking sets the origin priority, most authoritative first.
func WithRanking(origins ...string) Option {
	return func(c *config) error {
		c.ranking = origins
		return nil
	}
}

// WithAuthorities adds per-property origin authorities.
func WithAuthorities(fields ...authority.Field) Option {
	return func(c *config) error {
		c.authorities = append(c.authorities, fields...)
		return nil
	}
}

// WithSingleValued replaces the single-valued property set.
func WithSingleValued(names ...string) Option {
	return func(c *config) error {
		c.singleValued = names
		return nil
	}
}

// WithAttributed replaces the set of multi-valued properties tagged with
// their origin.
func WithAttributed(names ...string) Option {
	return func(c *config) error {
		c.attributed = names
		return nil
	}
}

// WithWorkers bounds the number of identity groups merged concurrently.
func WithWorkers(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return errors.NewValidationError("workers", n, "must be at least 1")
		}
		c.workers = n
		return nil
	}
}

// WithAliases sets the name alias table, display name to canonical name.
func WithAliases(aliases map[string]string) Option {
	return func(c *config) error {
		c.aliases = aliases
		return nil
	}
}

// WithExclusions adds names to the exclusion list.
func WithExclusions(names ...string) Option {
	return func(c *config) error {
		c.exclusions = append(c.exclusions, names...)
		return nil
	}
}

// WithExclusionFile reads additional exclusions from a YAML file.
func WithExclusionFile(path string) Option {
	return func(c *config) error {
		c.exclusionFile = path
		return nil
	}
}

// WithExclusionMode configures what happens to excluded records.
func WithExclusionMode(mode ExclusionMode) Option {
	return func(c *config) error {
		if _, err := ParseExclusionMode(string(mode)); err != nil {
			return err
		}
		c.exclusionMode = mode
		return nil
	}
}

// WithConsent adds sidecar consent grants keyed by display name.
func WithConsent(grants map[string][]consent.Grant) Option {
	return func(c *config) error {
		if c.grants == nil {
			c.grants = make(map[string][]consent.Grant, len(grants))
		}
		for name, gs := range grants {
			c.grants[name] = append(c.grants[name], gs...)
		}
		return nil
	}
}

// WithConsentFile reads sidecar consent grants from a YAML file.
func WithConsentFile(path string) Option {
	return func(c *config) error {
		c.consentFile = path
		return nil
	}
}

// WithAsOf sets the instant at which consent is evaluated.
func WithAsOf(t time.Time) Option {
	return func(c *config) error {
		if t.IsZero() {
			return errors.NewValidationError("as_of", t, "must not be zero")
		}
		c.asOf = t.UTC()
		return nil
	}
}

// WithMetrics records run counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// WithMetricsFile writes run counters to a node-exporter textfile.
func WithMetricsFile(path string) Option {
	return func(c *config) error {
		c.metricsFile = path
		return nil
	}
}
