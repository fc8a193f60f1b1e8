package vcard

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// namespace scopes content identifiers to this directory.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/cired/directory/vcard"))

// ID returns the content identifier of the record: a name-based UUID over the
// sorted canonical lines of every non-metadata property. Property order does
// not affect the identifier.
func (r *Record) ID() string {
	lines := make([]string, 0, len(r.props))
	for _, p := range r.props {
		if IsMetadata(p.Name) {
			continue
		}
		lines = append(lines, canonicalLine(p))
	}
	slices.Sort(lines)
	return "urn:uuid:" + uuid.NewSHA1(namespace, []byte(strings.Join(lines, "\n"))).String()
}

// Seal sets UID to the content identifier, appended as the last property.
func (r *Record) Seal() {
	r.Remove(PropUID)
	r.props = append(r.props, Property{Name: PropUID, Value: r.ID()})
}

// UID returns the stored UID value, or "" when absent.
func (r *Record) UID() string {
	return r.Value(PropUID)
}

// canonicalLine renders p with upper-cased names and parameters sorted by name
// so that equivalent properties compare equal.
func canonicalLine(p Property) string {
	params := make([]string, 0, len(p.Params))
	for _, param := range p.Params {
		values := slices.Clone(param.Values)
		slices.Sort(values)
		params = append(params, strings.ToUpper(param.Name)+"="+strings.Join(values, ","))
	}
	slices.Sort(params)

	var b strings.Builder
	if p.Group != "" {
		b.WriteString(strings.ToUpper(p.Group))
		b.WriteByte('.')
	}
	b.WriteString(p.Key())
	for _, param := range params {
		b.WriteByte(';')
		b.WriteString(param)
	}
	b.WriteByte(':')
	b.WriteString(p.Value)
	return b.String()
}

// Canonical returns the comparison form of the property line: names
// upper-cased and parameters sorted.
func (p Property) Canonical() string {
	return canonicalLine(p)
}
