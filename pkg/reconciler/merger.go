package reconciler

import (
	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/provenance"
	"github.com/cired/directory/pkg/vcard"
)

// X-CONFLICT parameter names.
const (
	conflictParamProperty   = "PROPERTY"
	conflictParamOrigin     = "ORIGIN"
	conflictParamSelected   = "SELECTED"
	conflictParamUnresolved = "UNRESOLVED"
)

// Canonical is the merged record of one identity group, or of one visibility
// partition of it when the group was split.
type Canonical struct {
	Key       string          // identity key, suffixed with "#<levels>" when split
	Identity  string          // identity key of the group
	Levels    []consent.Level // levels active for the contributors, sidecar grants included
	Split     bool            // the group yielded several partitions
	Exported  []consent.Level // when split, the levels exported from this partition
	Record    *vcard.Record
	Origins   []string // contributing origins, by priority
	Conflicts []provenance.Conflict
	Errors    []error // unresolved conflicts
}

// Merger combines same-identity records into one canonical record.
type Merger interface {
	// Merge merges records under key. Records may be passed in any order.
	Merge(key string, records []*vcard.Record) Canonical
}

// merger applies the property-level merge policy.
// It's an internal implementation of the Merger interface
type merger struct {
	strategy     Strategy
	collector    *collector
	singleValued map[string]bool
	attributed   map[string]bool
	tracker      provenance.Tracker
}

// slot gathers the candidates of one single-valued property.
type slot struct {
	name       string
	index      int // position in the merged property list
	candidates []Candidate
}

// newMerger creates a new merger.
func newMerger(options *options, tracker provenance.Tracker) Merger {
	return &merger{
		strategy:     options.strategy,
		collector:    newCollector(options.ranking),
		singleValued: options.singleValued,
		attributed:   options.attributed,
		tracker:      tracker,
	}
}

// Merge builds the canonical record: merged properties in first-seen order,
// X-ORIGIN values, X-CONFLICT lines, then UID.
func (m *merger) Merge(key string, records []*vcard.Record) Canonical {
	var (
		entries  []vcard.Property
		slots    []*slot
		singles  = make(map[string]*slot)
		seen     = make(map[string]bool)
		origins  []string
		audit    []vcard.Property
		auditKey = make(map[string]bool)
	)

	for _, r := range m.collector.contributors(records) {
		origins = append(origins, m.collector.origins(r)...)

		for _, p := range r.Properties() {
			name := p.Key()
			switch {
			case name == vcard.PropConflict:
				// conflicts recorded by an earlier merge stay on the record
				if k := p.Canonical(); !auditKey[k] {
					auditKey[k] = true
					audit = append(audit, p)
				}

			case vcard.IsMetadata(name):
				continue

			case m.singleValued[name]:
				s, ok := singles[name]
				if !ok {
					s = &slot{name: name, index: len(entries)}
					singles[name] = s
					slots = append(slots, s)
					entries = append(entries, vcard.Property{}) // filled once resolved
				}
				s.candidates = append(s.candidates, Candidate{Origin: r.Origin, Seq: r.Seq, Property: p})

			default:
				if m.attributed[name] && r.Origin != "" && !p.Params.Has(vcard.PropOrigin) {
					p.Params = p.Params.With(vcard.PropOrigin, r.Origin)
				}
				k := multiKey(p)
				if seen[k] {
					continue
				}
				seen[k] = true
				entries = append(entries, p)
				m.track(key, r, p, provenance.ReasonUnion)
			}
		}
	}

	canonical := Canonical{Key: key, Identity: key}
	for _, s := range slots {
		winner, conflicts, unresolved := m.resolve(key, s)
		entries[s.index] = winner
		canonical.Conflicts = append(canonical.Conflicts, conflicts...)
		if unresolved {
			canonical.Errors = append(canonical.Errors, errors.NewConflictError(key, s.name, candidateOrigins(s.candidates)))
		}
	}

	for _, c := range canonical.Conflicts {
		if p := conflictProperty(c); !auditKey[p.Canonical()] {
			auditKey[p.Canonical()] = true
			audit = append(audit, p)
		}
	}

	canonical.Origins = m.collector.sortOrigins(origins)

	out := vcard.New()
	for _, p := range entries {
		out.Append(p)
	}
	for _, origin := range canonical.Origins {
		out.Append(vcard.Property{Name: vcard.PropOrigin, Value: origin})
	}
	for _, p := range audit {
		out.Append(p)
	}
	out.Seal()

	canonical.Record = out
	return canonical
}

// resolve picks the value of a single-valued property and lists the values
// it discards.
func (m *merger) resolve(key string, s *slot) (vcard.Property, []provenance.Conflict, bool) {
	candidates := s.candidates

	agree := true
	for _, c := range candidates[1:] {
		if !sameValue(c.Property, candidates[0].Property) {
			agree = false
			break
		}
	}
	if agree {
		reason := provenance.ReasonIdentical
		if len(candidates) == 1 {
			reason = provenance.ReasonOnly
		}
		m.trackCandidate(key, candidates[0], reason)
		return candidates[0].Property, nil, false
	}

	res := m.strategy.ResolveConflict(s.name, candidates)
	winner := candidates[res.Winner]
	m.trackCandidate(key, winner, res.Reason)

	var conflicts []provenance.Conflict
	recorded := make(map[string]bool)
	for i, c := range candidates {
		if i == res.Winner || sameValue(c.Property, winner.Property) {
			continue
		}
		k := c.Origin + "\x00" + normalizeValue(c.Property.Value)
		if recorded[k] {
			continue
		}
		recorded[k] = true
		conflicts = append(conflicts, provenance.Conflict{
			Identity:       key,
			Property:       s.name,
			Value:          c.Property.Value,
			Origin:         c.Origin,
			Selected:       winner.Property.Value,
			SelectedOrigin: winner.Origin,
			Resolution:     res.Reason,
			Unresolved:     res.Unresolved,
		})
	}
	return winner.Property, conflicts, res.Unresolved
}

func (m *merger) track(key string, r *vcard.Record, p vcard.Property, reason string) {
	if m.tracker == nil {
		return
	}
	m.tracker.Track(key, p.Key(), provenance.Provenance{
		Origin:   r.Origin,
		Property: p.Key(),
		Value:    p.Value,
		Seq:      r.Seq,
		Reason:   reason,
	})
}

func (m *merger) trackCandidate(key string, c Candidate, reason string) {
	if m.tracker == nil {
		return
	}
	m.tracker.Track(key, c.Property.Key(), provenance.Provenance{
		Origin:   c.Origin,
		Property: c.Property.Key(),
		Value:    c.Property.Value,
		Seq:      c.Seq,
		Reason:   reason,
	})
}

// conflictProperty renders a discarded value as an X-CONFLICT line.
func conflictProperty(c provenance.Conflict) vcard.Property {
	params := vcard.Params{
		{Name: conflictParamProperty, Values: []string{c.Property}},
		{Name: conflictParamOrigin, Values: []string{c.Origin}},
		{Name: conflictParamSelected, Values: []string{c.SelectedOrigin}},
	}
	if c.Unresolved {
		params = append(params, vcard.Param{Name: conflictParamUnresolved, Values: []string{"TRUE"}})
	}
	return vcard.Property{Name: vcard.PropConflict, Params: params, Value: c.Value}
}

func candidateOrigins(candidates []Candidate) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		if !seen[c.Origin] {
			seen[c.Origin] = true
			out = append(out, c.Origin)
		}
	}
	return out
}
