package directory

import (
	"fmt"
	"strings"
	"time"

	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/export"
	"github.com/cired/directory/pkg/provenance"
	"github.com/cired/directory/pkg/reconciler"
	"github.com/cired/directory/pkg/vcard"
)

// Result represents the outcome of a pipeline run.
type Result struct {
	// Consent evaluation instant
	AsOf time.Time

	// Parse stage
	Parsed      int            // records parsed
	Counts      map[string]int // records per origin
	Diagnostics []error        // malformed records, skipped

	// Identity stage
	Excluded []*vcard.Record

	// Merge and export stages; nil after Validate
	Merge   *reconciler.Result
	Exports *export.Exports
	Audit   *provenance.AuditFile

	// Written files, empty in dry-run mode
	Outputs []string
	DryRun  bool

	Duration time.Duration
}

// Skipped returns the number of malformed records.
func (r *Result) Skipped() int {
	return len(r.Diagnostics)
}

// Exported returns the number of records exported at level.
func (r *Result) Exported(level consent.Level) int {
	if r.Exports == nil {
		return 0
	}
	return len(r.Exports.Records(level))
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Parsed %d records (%d skipped", r.Parsed, r.Skipped())
	if r.Merge == nil {
		sb.WriteString(")")
		return sb.String()
	}
	fmt.Fprintf(&sb, ", %d excluded)", len(r.Excluded))

	s := r.Merge.Metadata.Stats
	fmt.Fprintf(&sb, "; merged into %d canonical records with %d conflicts (%d unresolved)",
		s.CanonicalsProduced, s.ConflictsResolved+s.ConflictsUnresolved, s.ConflictsUnresolved)

	parts := make([]string, len(consent.Levels))
	for i, level := range consent.Levels {
		parts[i] = fmt.Sprintf("%d %s", r.Exported(level), level)
	}
	fmt.Fprintf(&sb, "; exported %s", strings.Join(parts, ", "))
	if r.Exports != nil {
		fmt.Fprintf(&sb, "; %d without active consent", len(r.Exports.NoActiveConsent))
	}
	return sb.String()
}
