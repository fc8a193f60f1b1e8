package reconciler

import (
	"slices"
	"strings"
	"time"

	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/vcard"
)

// partition is a set of contributors sharing the same active consent levels.
type partition struct {
	levels   []consent.Level
	label    string // consent.LevelSet of levels
	records  []*vcard.Record
	rank     int             // best origin rank among records
	exported []consent.Level // levels this partition is exported at
}

// filter splits contributors by the visibility levels active in their own
// consent lines and in the sidecar grants of their identity.
type filter struct {
	asOf    time.Time
	ranking authority.Ranking
	book    *consent.Book
}

// newFilter creates a new visibility filter evaluated at asOf.
func newFilter(asOf time.Time, ranking authority.Ranking, book *consent.Book) *filter {
	return &filter{asOf: asOf, ranking: ranking, book: book}
}

// split partitions records of the identity key, keeping their relative order.
// Partitions are ordered by label. Each active level is exported from exactly
// one partition: the one holding the best-ranked contributor with that level.
func (f *filter) split(key string, records []*vcard.Record) []partition {
	sidecar := f.book.Grants(key)
	index := make(map[string]int)
	var parts []partition
	for _, r := range records {
		history, _ := consent.FromRecord(r) // malformed lines are reported by the exporter
		for _, g := range sidecar {
			history.Append(g)
		}
		levels := history.Active(f.asOf)
		label := consent.LevelSet(levels)
		rank, _ := f.ranking.Rank(r.Origin)

		i, ok := index[label]
		if !ok {
			i = len(parts)
			index[label] = i
			parts = append(parts, partition{levels: levels, label: label, rank: rank})
		}
		parts[i].records = append(parts[i].records, r)
		parts[i].rank = min(parts[i].rank, rank)
	}

	slices.SortFunc(parts, func(a, b partition) int {
		return strings.Compare(a.label, b.label)
	})

	for _, level := range consent.Levels {
		owner := -1
		for i, p := range parts {
			if !slices.Contains(p.levels, level) {
				continue
			}
			if owner < 0 || p.rank < parts[owner].rank {
				owner = i
			}
		}
		if owner >= 0 {
			parts[owner].exported = append(parts[owner].exported, level)
		}
	}
	return parts
}
