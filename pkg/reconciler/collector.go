package reconciler

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/vcard"
)

// schemeRe matches values carrying a URI scheme, e.g. "https:" or "mailto:".
var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:\S`)

// collector orders contributors and computes comparison keys.
type collector struct {
	ranking authority.Ranking
}

// newCollector creates a new contributor collector.
func newCollector(ranking authority.Ranking) *collector {
	return &collector{ranking: ranking}
}

// contributors returns records ordered by (origin rank, origin name, arrival
// sequence). The order is intrinsic to the records, so callers may pass them
// in any order.
func (c *collector) contributors(records []*vcard.Record) []*vcard.Record {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b *vcard.Record) int {
		return cmp.Or(
			c.ranking.Compare(a.Origin, b.Origin),
			cmp.Compare(a.Seq, b.Seq),
		)
	})
	return ordered
}

// origins returns the origins a record stands for: its X-ORIGIN values when
// it is itself a canonical record, its own origin otherwise.
func (c *collector) origins(r *vcard.Record) []string {
	var out []string
	for _, p := range r.All(vcard.PropOrigin) {
		if v := strings.TrimSpace(p.Text()); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 && r.Origin != "" {
		out = append(out, r.Origin)
	}
	return out
}

// sortOrigins orders and de-duplicates origins by priority.
func (c *collector) sortOrigins(origins []string) []string {
	out := slices.Clone(origins)
	slices.SortFunc(out, c.ranking.Compare)
	return slices.Compact(out)
}

// normalizeValue trims whitespace and case-folds values with a URI scheme.
func normalizeValue(v string) string {
	v = strings.TrimSpace(v)
	if schemeRe.MatchString(v) && !strings.ContainsAny(v, " \t") {
		return cases.Fold().String(v)
	}
	return v
}

// sameValue reports whether two properties carry the same normalized value.
func sameValue(a, b vcard.Property) bool {
	return normalizeValue(a.Value) == normalizeValue(b.Value)
}

// multiKey is the de-duplication key of a multi-valued property: upper-cased
// name, sorted TYPE values and normalized value. Consent lines depend on every
// parameter and compare on their full canonical form.
func multiKey(p vcard.Property) string {
	if p.Is(vcard.PropConsent) {
		return p.Canonical()
	}
	types := p.Params.Types()
	for i, t := range types {
		types[i] = strings.ToUpper(t)
	}
	slices.Sort(types)
	return p.Key() + ";" + strings.Join(types, ",") + ":" + normalizeValue(p.Value)
}
