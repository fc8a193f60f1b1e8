package reconciler

import (
	"fmt"
	"time"

	"github.com/cired/directory/pkg/provenance"
	"github.com/cired/directory/pkg/vcard"
)

// Result represents the outcome of a reconciliation operation.
type Result struct {
	// Core data, ordered by identity key
	Canonicals []Canonical

	// Audit trail
	Conflicts  []provenance.Conflict
	Provenance provenance.Map

	// Metadata
	Metadata ResultMetadata

	// Issues: unresolved conflicts, never fatal
	Errors   []error
	Warnings []string
}

// ResultMetadata contains metadata about the reconciliation process.
type ResultMetadata struct {
	// StartTime when reconciliation started
	StartTime time.Time

	// EndTime when reconciliation completed
	EndTime time.Time

	// Duration of the reconciliation
	Duration time.Duration

	// Strategy used for reconciliation
	Strategy Strategy

	// Workers bounding concurrent group merges
	Workers int

	// Statistics about the reconciliation
	Stats ResultStatistics
}

// ResultStatistics contains statistics about the reconciliation.
type ResultStatistics struct {
	GroupsProcessed     int
	GroupsSplit         int
	RecordsMerged       int
	CanonicalsProduced  int
	ConflictsResolved   int
	ConflictsUnresolved int
	TotalTimeMs         int64
}

// Records returns the canonical records in key order.
func (r *Result) Records() []*vcard.Record {
	out := make([]*vcard.Record, len(r.Canonicals))
	for i, c := range r.Canonicals {
		out[i] = c.Record
	}
	return out
}

// HasConflicts returns true if any value was discarded during merge.
func (r *Result) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	s := r.Metadata.Stats
	return fmt.Sprintf("Merged %d records from %d groups into %d canonical records (%d split, %d conflicts, %d unresolved)",
		s.RecordsMerged, s.GroupsProcessed, s.CanonicalsProduced, s.GroupsSplit, s.ConflictsResolved+s.ConflictsUnresolved, s.ConflictsUnresolved)
}

// NewResult creates a new result with defaults.
func NewResult() *Result {
	return &Result{
		Provenance: make(provenance.Map),
		Errors:     []error{},
		Warnings:   []string{},
		Metadata: ResultMetadata{
			StartTime: time.Now(),
		},
	}
}

// add appends the canonicals of one group.
func (r *Result) add(group []Canonical, records int) {
	r.Metadata.Stats.GroupsProcessed++
	r.Metadata.Stats.RecordsMerged += records
	if len(group) > 1 {
		r.Metadata.Stats.GroupsSplit++
	}
	for _, c := range group {
		r.Canonicals = append(r.Canonicals, c)
		r.Conflicts = append(r.Conflicts, c.Conflicts...)
		r.Errors = append(r.Errors, c.Errors...)
		for _, conflict := range c.Conflicts {
			if conflict.Unresolved {
				r.Metadata.Stats.ConflictsUnresolved++
			} else {
				r.Metadata.Stats.ConflictsResolved++
			}
		}
		if v := Validate(c); v.HasWarnings() || !v.IsValid() {
			r.Warnings = append(r.Warnings, v.Messages()...)
		}
	}
	r.Metadata.Stats.CanonicalsProduced = len(r.Canonicals)
}

// Finalize calculates duration and marks completion.
func (r *Result) Finalize() {
	r.Metadata.EndTime = time.Now()
	r.Metadata.Duration = r.Metadata.EndTime.Sub(r.Metadata.StartTime)
	r.Metadata.Stats.TotalTimeMs = r.Metadata.Duration.Milliseconds()
}
