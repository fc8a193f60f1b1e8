// Package directory consolidates contact records collected from several
// independent sources into one canonical directory, then produces
// privacy-filtered exports governed by per-person, per-level consent.
//
// A Pipeline wires the stages: vCard inputs are parsed, grouped by identity
// (minus the exclusion list), merged into canonical records under a
// field-level conflict policy and projected into the public, members and
// admin exports.
//
//	p, err := directory.New(
//		directory.WithInputs("data/**/*.vcf"),
//		directory.WithRanking("askCIRED", "askHAL", "askREPEC", "askEmail", "others"),
//		directory.WithOutputDir("out"),
//	)
//	if err != nil {
//		return err
//	}
//	result, err := p.Run(ctx)
package directory

import (
	"context"
	"fmt"
)

// Pipeline runs the directory batch with event hooks
type Pipeline interface {
	// Run executes every stage and writes the outputs
	Run(ctx context.Context) (*Result, error)

	// Validate parses the inputs and reports format errors only
	Validate(ctx context.Context) (*Result, error)

	// OnCanonical registers a callback for canonical records
	OnCanonical(CanonicalHook)

	// OnConflict registers a callback for discarded values
	OnConflict(ConflictHook)

	// OnExported registers a callback for exported records
	OnExported(ExportedHook)

	// OnNoActiveConsent registers a callback for records left out of every export
	OnNoActiveConsent(NoActiveConsentHook)
}

// pipeline is the internal implementation of the Pipeline interface
type pipeline struct {
	config *config

	// Event hooks
	*hooks
}

// New creates a new Pipeline instance with the given options
func New(opts ...Option) (Pipeline, error) {
	cfg := defaultConfig()
	if err := cfg.apply(opts...); err != nil {
		return nil, fmt.Errorf("applying options: %w", err)
	}

	return &pipeline{
		config: cfg,
		hooks:  newHooks(),
	}, nil
}
