package identity

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/cired/directory/pkg/vcard"
)

// SyntheticPrefix marks keys of records without a usable name. Such records
// never group with anything and sort after every named group.
const SyntheticPrefix = "~"

// Group is the set of raw records believed to describe one person.
type Group struct {
	Key     string
	Records []*vcard.Record // arrival order
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Groups   []Group         // sorted by key
	Excluded []*vcard.Record // arrival order
}

// Records returns the number of grouped records.
func (r Resolution) Records() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Records)
	}
	return n
}

// Resolver groups records by identity key and applies the exclusion list.
type Resolver struct {
	normalizer *Normalizer
	excluded   map[string]bool
}

// Option configures a Resolver.
type Option func(*options)

type options struct {
	aliases    map[string]string
	exclusions []string
}

// WithAliases sets the alias table, display name to canonical display name.
func WithAliases(aliases map[string]string) Option {
	return func(o *options) {
		o.aliases = aliases
	}
}

// WithExclusions sets the names removed before grouping.
func WithExclusions(names ...string) Option {
	return func(o *options) {
		o.exclusions = append(o.exclusions, names...)
	}
}

// NewResolver creates a Resolver. Exclusion entries go through the same
// normalization, aliases included, as record names.
func NewResolver(opts ...Option) *Resolver {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	r := &Resolver{
		normalizer: NewNormalizer(o.aliases),
		excluded:   make(map[string]bool, len(o.exclusions)),
	}
	for _, name := range o.exclusions {
		if key := r.normalizer.Key(name); key != "" {
			r.excluded[key] = true
		}
	}
	return r
}

// Key returns the identity key of a record, or a synthetic key derived from
// the record content, origin and sequence number when the record has no
// usable name. Two nameless records never share a synthetic key.
func (r *Resolver) Key(rec *vcard.Record) string {
	if key := r.normalizer.Key(Name(rec)); key != "" {
		return key
	}
	return SyntheticPrefix + rec.ID() + "@" + rec.Origin + "/" + strconv.Itoa(rec.Seq)
}

// Excluded reports whether the record is on the exclusion list.
func (r *Resolver) Excluded(rec *vcard.Record) bool {
	return r.excluded[r.normalizer.Key(Name(rec))]
}

// Resolve filters excluded records and groups the rest by identity key.
// The result does not depend on the order of records.
func (r *Resolver) Resolve(records []*vcard.Record) Resolution {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, byArrival)

	var res Resolution
	index := make(map[string]int)
	for _, rec := range ordered {
		if r.Excluded(rec) {
			res.Excluded = append(res.Excluded, rec)
			continue
		}
		key := r.Key(rec)
		i, ok := index[key]
		if !ok {
			i = len(res.Groups)
			index[key] = i
			res.Groups = append(res.Groups, Group{Key: key})
		}
		res.Groups[i].Records = append(res.Groups[i].Records, rec)
	}

	slices.SortFunc(res.Groups, func(a, b Group) int {
		return CompareKeys(a.Key, b.Key)
	})
	return res
}

// CompareKeys orders identity keys with synthetic keys last.
func CompareKeys(a, b string) int {
	as, bs := strings.HasPrefix(a, SyntheticPrefix), strings.HasPrefix(b, SyntheticPrefix)
	if as != bs {
		if as {
			return 1
		}
		return -1
	}
	return strings.Compare(a, b)
}

func byArrival(a, b *vcard.Record) int {
	return cmp.Or(
		cmp.Compare(a.Seq, b.Seq),
		cmp.Compare(a.Origin, b.Origin),
	)
}
