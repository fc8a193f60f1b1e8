// Package reconciler merges same-identity contact records into canonical
// records. Single-valued properties are decided by origin priority or
// per-property authorities, multi-valued properties are unioned, and every
// discarded value is kept in a conflict audit trail.
package reconciler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/identity"
	"github.com/cired/directory/pkg/logging"
	"github.com/cired/directory/pkg/provenance"
)

// Reconciler is the main interface for merging identity groups.
type Reconciler interface {
	// Group merges one identity group. A group whose contributors carry
	// different active consent levels yields one canonical record per level
	// set, and each level is exported from only one of them.
	Group(group identity.Group) ([]Canonical, error)

	// Groups merges every group with a bounded worker pool. The result keeps
	// the order of groups regardless of completion order.
	Groups(ctx context.Context, groups []identity.Group) (*Result, error)
}

// reconciler is the default implementation of Reconciler.
type reconciler struct {
	strategy   Strategy
	merger     Merger
	filter     *filter
	provenance provenance.Tracker
	workers    int
}

// New creates a new Reconciler with options.
func New(opts ...Option) (Reconciler, error) {
	// Create options with defaults
	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	tracker := provenance.NewTracker(options.tracking)
	r := &reconciler{
		strategy:   options.strategy,
		merger:     newMerger(options, tracker),
		filter:     newFilter(options.asOf, options.ranking, options.book),
		provenance: tracker,
		workers:    options.workers,
	}
	return r, nil
}

// Group merges one identity group.
func (r *reconciler) Group(group identity.Group) ([]Canonical, error) {
	if len(group.Records) == 0 {
		return nil, &errors.ValidationError{
			Field:   "group",
			Value:   group.Key,
			Message: "has no records",
		}
	}

	parts := r.filter.split(group.Key, group.Records)
	out := make([]Canonical, 0, len(parts))
	for _, part := range parts {
		key := group.Key
		if len(parts) > 1 {
			key = group.Key + "#" + part.label
		}
		c := r.merger.Merge(key, part.records)
		c.Identity = group.Key
		c.Levels = part.levels
		c.Split = len(parts) > 1
		c.Exported = part.exported
		out = append(out, c)
	}
	return out, nil
}

// Groups merges groups concurrently.
func (r *reconciler) Groups(ctx context.Context, groups []identity.Group) (*Result, error) {
	logger := logging.FromContext(ctx)
	result := NewResult()
	result.Metadata.Strategy = r.strategy
	result.Metadata.Workers = r.workers

	logger.Debug().
		Int("groups", len(groups)).
		Int("workers", r.workers).
		Str("strategy", r.strategy.Type().String()).
		Msg("Merging identity groups")

	// Each worker writes its own slot so output order follows group order
	merged := make([][]Canonical, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, group := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			canonicals, err := r.Group(group)
			if err != nil {
				return err
			}
			merged[i] = canonicals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, canonicals := range merged {
		result.add(canonicals, len(groups[i].Records))
		for _, c := range canonicals {
			for _, err := range c.Errors {
				logging.FromContext(logging.WithIdentity(ctx, c.Key)).Warn().
					Err(err).
					Msg("Conflict decided by default tie-break")
			}
		}
	}
	result.Provenance = r.provenance.Map()
	result.Finalize()

	logger.Info().
		Int("groups", result.Metadata.Stats.GroupsProcessed).
		Int("canonicals", result.Metadata.Stats.CanonicalsProduced).
		Int("conflicts", len(result.Conflicts)).
		Int("unresolved", result.Metadata.Stats.ConflictsUnresolved).
		Msg("Merge completed")

	return result, nil
}
