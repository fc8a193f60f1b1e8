package directory

import (
	"context"
	"fmt"
	"time"

	internalsources "github.com/cired/directory/internal/sources"
	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/export"
	"github.com/cired/directory/pkg/identity"
	"github.com/cired/directory/pkg/logging"
	"github.com/cired/directory/pkg/provenance"
	"github.com/cired/directory/pkg/reconciler"
	"github.com/cired/directory/pkg/sources"
)

// Run executes the pipeline stages in order.
func (p *pipeline) Run(ctx context.Context) (*Result, error) {
	// Step 0: Set context
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx = logging.WithOperation(ctx, "run")
	logger := logging.FromContext(ctx)

	// Step 1: Parse every input
	result, batch, err := p.parse(ctx)
	if err != nil {
		return nil, err
	}

	// Step 2: Load the exclusion list and the consent sidecar
	exclusions, err := p.loadExclusions()
	if err != nil {
		return nil, err
	}
	book, err := p.loadBook()
	if err != nil {
		return nil, err
	}

	// Step 3: Group records by identity
	resolver := identity.NewResolver(
		identity.WithAliases(p.config.aliases),
		identity.WithExclusions(exclusions...),
	)
	resolution := resolver.Resolve(batch.Records)
	result.Excluded = resolution.Excluded
	for _, rec := range resolution.Excluded {
		logging.FromContext(logging.WithOrigin(ctx, rec.Origin)).Debug().
			Str("name", identity.Name(rec)).
			Msg("Excluded record")
	}
	logger.Info().
		Int("groups", len(resolution.Groups)).
		Int("excluded", len(resolution.Excluded)).
		Msg("Resolved identities")

	// Step 4: Merge each group into canonical records
	rec, err := reconciler.New(append(p.reconcilerOptions(), reconciler.WithBook(book))...)
	if err != nil {
		return nil, err
	}
	result.Merge, err = rec.Groups(ctx, resolution.Groups)
	if err != nil {
		return nil, err
	}

	// Step 5: Project canonical records by consent
	exporter := export.New(export.WithAsOf(result.AsOf), export.WithBook(book))
	result.Exports = exporter.Run(result.Merge.Canonicals)
	for _, err := range result.Exports.Errors {
		logger.Warn().Err(err).Msg("Skipped malformed consent line")
	}
	for _, entry := range result.Exports.NoActiveConsent {
		logging.FromContext(logging.WithIdentity(ctx, entry.Key)).Debug().
			Str("reason", string(entry.Reason)).
			Msg("No active consent")
	}

	// Step 6: Build the audit trail
	result.Audit = buildAudit(result)

	// Step 7: Write outputs unless dry run
	result.DryRun = p.config.dryRun
	if p.config.dryRun {
		logger.Info().Bool("dry_run", true).Msg("Dry run completed - no outputs written")
	} else if err := p.save(ctx, result); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)

	// Step 8: Record metrics
	if err := p.observe(result); err != nil {
		return nil, err
	}

	// Step 9: Notify hooks
	p.trigger(result.Merge, result.Exports)

	logger.Info().Msg(result.Summary())
	return result, nil
}

// Validate parses the inputs and reports format errors only.
func (p *pipeline) Validate(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	result, _, err := p.parse(logging.WithOperation(ctx, "validate"))
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// parse discovers the input files and parses every source.
func (p *pipeline) parse(ctx context.Context) (*Result, *sources.Batch, error) {
	srcs, err := internalsources.Discover(p.config.patterns, p.config.outputDir)
	if err != nil {
		return nil, nil, err
	}
	srcs = append(srcs, p.config.sources...)
	if len(srcs) == 0 {
		logging.FromContext(ctx).Warn().Strs("inputs", p.config.patterns).Msg("No input matched")
	}

	batch, err := sources.Fetch(ctx, srcs)
	if err != nil {
		return nil, nil, err
	}

	return &Result{
		AsOf:        p.config.asOf,
		Parsed:      len(batch.Records),
		Counts:      batch.Counts,
		Diagnostics: batch.Diagnostics,
	}, batch, nil
}

func (p *pipeline) loadExclusions() ([]string, error) {
	names := append([]string(nil), p.config.exclusions...)
	if p.config.exclusionFile == "" {
		return names, nil
	}
	fromFile, err := identity.LoadExclusions(p.config.exclusionFile)
	if err != nil {
		return nil, err
	}
	return append(names, fromFile...), nil
}

// loadBook keys sidecar grants by identity key, aliases included.
func (p *pipeline) loadBook() (*consent.Book, error) {
	byName := make(map[string][]consent.Grant, len(p.config.grants))
	for name, grants := range p.config.grants {
		byName[name] = append(byName[name], grants...)
	}
	if p.config.consentFile != "" {
		fromFile, err := consent.LoadBook(p.config.consentFile)
		if err != nil {
			return nil, err
		}
		for name, grants := range fromFile {
			byName[name] = append(byName[name], grants...)
		}
	}
	if len(byName) == 0 {
		return nil, nil
	}
	return consent.NewBook(byName, identity.NewNormalizer(p.config.aliases).Key), nil
}

func (p *pipeline) reconcilerOptions() []reconciler.Option {
	opts := []reconciler.Option{
		reconciler.WithAsOf(p.config.asOf),
		reconciler.WithRanking(p.config.ranking...),
		reconciler.WithAuthorities(authority.New(p.config.authorities...)),
	}
	if p.config.singleValued != nil {
		opts = append(opts, reconciler.WithSingleValued(p.config.singleValued...))
	}
	if p.config.attributed != nil {
		opts = append(opts, reconciler.WithAttributed(p.config.attributed...))
	}
	if p.config.workers > 0 {
		opts = append(opts, reconciler.WithWorkers(p.config.workers))
	}
	return opts
}

// buildAudit collects conflicts, origins and diagnostics of a run.
func buildAudit(r *Result) *provenance.AuditFile {
	audit := &provenance.AuditFile{
		AsOf:      r.AsOf,
		Origins:   make(map[string][]string, len(r.Merge.Canonicals)),
		Conflicts: r.Merge.Conflicts,
		Summary: map[string]int{
			"parsed":     r.Parsed,
			"skipped":    r.Skipped(),
			"excluded":   len(r.Excluded),
			"canonicals": r.Merge.Metadata.Stats.CanonicalsProduced,
			"conflicts":  len(r.Merge.Conflicts),
			"unresolved": r.Merge.Metadata.Stats.ConflictsUnresolved,
		},
	}
	for _, level := range consent.Levels {
		audit.Summary[level.String()] = r.Exported(level)
	}
	for _, c := range r.Merge.Canonicals {
		audit.Origins[c.Key] = c.Origins
	}
	for _, entry := range r.Exports.NoActiveConsent {
		audit.NoActiveConsent = append(audit.NoActiveConsent, provenance.Entry{
			Key:    entry.Key,
			Reason: string(entry.Reason),
		})
	}
	for _, rec := range r.Excluded {
		audit.Excluded = append(audit.Excluded, provenance.Entry{
			Key:    identity.Name(rec),
			Origin: rec.Origin,
		})
	}
	for _, err := range r.Diagnostics {
		audit.ParseErrors = append(audit.ParseErrors, err.Error())
	}
	for _, err := range r.Exports.Errors {
		audit.ParseErrors = append(audit.ParseErrors, fmt.Sprintf("consent: %v", err))
	}
	return audit
}

// observe records the run counters and writes the metrics textfile.
func (p *pipeline) observe(r *Result) error {
	m := p.config.metrics
	for origin, n := range r.Counts {
		m.AddParsed(origin, n)
	}
	m.AddSkipped(r.Skipped())
	m.AddExcluded(len(r.Excluded))
	m.AddCanonicals(r.Merge.Metadata.Stats.CanonicalsProduced)
	m.AddConflicts(r.Merge.Metadata.Stats.ConflictsResolved, r.Merge.Metadata.Stats.ConflictsUnresolved)
	for _, level := range consent.Levels {
		m.AddExported(level.String(), r.Exported(level))
	}
	for _, entry := range r.Exports.NoActiveConsent {
		m.IncrementNoActiveConsent(string(entry.Reason))
	}
	m.ObserveRun(r.Duration, time.Now())

	if p.config.metricsFile == "" || r.DryRun {
		return nil
	}
	return m.WriteTextfile(p.config.metricsFile)
}
