package reconciler

import (
	"runtime"
	"strings"
	"time"

	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/vcard"
)

// DefaultSingleValued lists the properties overwritten rather than
// accumulated during merge.
var DefaultSingleValued = []string{
	vcard.PropFN, vcard.PropN, vcard.PropORG,
	"TITLE", "ROLE", "BDAY", "ANNIVERSARY", "GENDER", "KIND", "TZ", "GEO",
}

// DefaultAttributed lists the multi-valued properties tagged with the origin
// that supplied them.
var DefaultAttributed = []string{vcard.PropNote, vcard.PropHistory}

// Options configures a reconciler.
type options struct {
	strategy     Strategy
	authorities  authority.Authority
	ranking      authority.Ranking
	singleValued map[string]bool
	attributed   map[string]bool
	tracking     bool
	workers      int
	asOf         time.Time
	book         *consent.Book
}

func defaultOptions() *options {
	return &options{
		authorities:  authority.New(),
		singleValued: nameSet(DefaultSingleValued),
		attributed:   nameSet(DefaultAttributed),
		tracking:     true,
		workers:      runtime.NumCPU(),
		asOf:         time.Now().UTC(),
	}
}

// Option is a function that configures a Reconciler.
type Option func(*options) error

func (options *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	// the default strategy depends on the final ranking and authorities
	if options.strategy == nil {
		if len(options.authorities.List()) > 0 {
			options.strategy = NewAuthorityStrategy(options.authorities, options.ranking)
		} else {
			options.strategy = NewSourceOrderStrategy(options.ranking)
		}
	}
	return options, nil
}

// newOptions returns reconciler options with default values.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithStrategy sets the merge strategy.
func WithStrategy(strategy Strategy) Option {
	return func(r *options) error {
		if strategy == nil {
			return &errors.ValidationError{
				Field:   "strategy",
				Message: "cannot be nil",
			}
		}
		r.strategy = strategy
		return nil
	}
}

// WithRanking sets the origin ranking, most authoritative first.
func WithRanking(origins ...string) Option {
	return func(r *options) error {
		seen := make(map[string]bool, len(origins))
		for _, o := range origins {
			if o == "" {
				return &errors.ValidationError{Field: "origins", Message: "origin name cannot be empty"}
			}
			if seen[o] {
				return &errors.ValidationError{Field: "origins", Value: o, Message: "origin listed twice"}
			}
			seen[o] = true
		}
		r.ranking = authority.Ranking(origins)
		return nil
	}
}

// WithAuthorities sets per-property origin overrides. Unless a strategy is
// set explicitly, conflicts are then resolved by AuthorityStrategy.
func WithAuthorities(authorities authority.Authority) Option {
	return func(r *options) error {
		if authorities == nil {
			return &errors.ValidationError{
				Field:   "authorities",
				Message: "cannot be nil",
			}
		}
		r.authorities = authorities
		return nil
	}
}

// WithSingleValued replaces the set of single-valued properties.
func WithSingleValued(names ...string) Option {
	return func(r *options) error {
		r.singleValued = nameSet(names)
		return nil
	}
}

// WithAttributed replaces the set of properties tagged with their origin.
func WithAttributed(names ...string) Option {
	return func(r *options) error {
		r.attributed = nameSet(names)
		return nil
	}
}

// WithProvenance enables property-level tracking.
func WithProvenance(enabled bool) Option {
	return func(r *options) error {
		r.tracking = enabled
		return nil
	}
}

// WithWorkers bounds the number of groups merged concurrently.
func WithWorkers(n int) Option {
	return func(r *options) error {
		if n < 1 {
			return &errors.ValidationError{Field: "workers", Value: n, Message: "must be at least 1"}
		}
		r.workers = n
		return nil
	}
}

// WithAsOf sets the instant consent lines are evaluated at when splitting
// groups by visibility.
func WithAsOf(t time.Time) Option {
	return func(r *options) error {
		if t.IsZero() {
			return &errors.ValidationError{Field: "as_of", Message: "cannot be zero"}
		}
		r.asOf = t
		return nil
	}
}

// WithBook adds the sidecar consent grants taken into account when splitting
// groups by visibility.
func WithBook(book *consent.Book) Option {
	return func(r *options) error {
		r.book = book
		return nil
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.ToUpper(strings.TrimSpace(n)); n != "" {
			set[n] = true
		}
	}
	return set
}
