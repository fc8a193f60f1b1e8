// Package vcard implements the in-memory contact record model and the
// line-oriented exchange format (RFC 6350 compatible) used between collectors
// and the directory pipeline.
//
// A Record is an ordered property store. Property values are kept in their
// escaped wire form so that parsing and serializing is lossless; use
// Property.Text for the unescaped value.
package vcard

import (
	"slices"
	"strings"
)

// Standard property names used across the pipeline.
const (
	PropFN      = "FN"
	PropN       = "N"
	PropORG     = "ORG"
	PropEmail   = "EMAIL"
	PropURL     = "URL"
	PropNote    = "NOTE"
	PropSource  = "SOURCE"
	PropUID     = "UID"
	PropRev     = "REV"
	PropProdID  = "PRODID"
	PropVersion = "VERSION"

	// PropOrigin lists the collectors that contributed to a canonical record.
	PropOrigin = "X-ORIGIN"
	// PropConflict records a single value discarded during merge.
	PropConflict = "X-CONFLICT"
	// PropConsent carries one consent grant for one visibility level.
	PropConsent = "X-CONSENT"
	// PropHistory is the free-text affiliation history written by collectors.
	PropHistory = "X-CIRED-HISTORY"

	// DefaultVersion is written on records built by the pipeline.
	DefaultVersion = "4.0"
)

// metadataProps form the metadata/audit section: they never take part in the
// content identifier.
var metadataProps = map[string]bool{
	PropUID:      true,
	PropRev:      true,
	PropProdID:   true,
	PropOrigin:   true,
	PropConflict: true,
}

// IsMetadata reports whether the named property belongs to the
// metadata/audit section.
func IsMetadata(name string) bool {
	return metadataProps[strings.ToUpper(name)]
}

// Param is one property parameter with its values in order.
type Param struct {
	Name   string
	Values []string
}

// Params is an ordered parameter list. Names match case-insensitively.
type Params []Param

// Get returns all values of the named parameter, across repeated occurrences.
func (p Params) Get(name string) []string {
	var values []string
	for _, param := range p {
		if strings.EqualFold(param.Name, name) {
			values = append(values, param.Values...)
		}
	}
	return values
}

// First returns the first value of the named parameter, or "".
func (p Params) First(name string) string {
	if values := p.Get(name); len(values) > 0 {
		return values[0]
	}
	return ""
}

// Has reports whether the named parameter is present.
func (p Params) Has(name string) bool {
	for _, param := range p {
		if strings.EqualFold(param.Name, name) {
			return true
		}
	}
	return false
}

// Types returns the TYPE values, splitting comma-joined lists.
func (p Params) Types() []string {
	var types []string
	for _, value := range p.Get("TYPE") {
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	return types
}

// HasType reports whether TYPE includes t (case-insensitive).
func (p Params) HasType(t string) bool {
	for _, have := range p.Types() {
		if strings.EqualFold(have, t) {
			return true
		}
	}
	return false
}

// With returns a copy of p where the named parameter is replaced by values,
// appended at the end when it was absent.
func (p Params) With(name string, values ...string) Params {
	out := make(Params, 0, len(p)+1)
	replaced := false
	for _, param := range p {
		if strings.EqualFold(param.Name, name) {
			if !replaced {
				out = append(out, Param{Name: param.Name, Values: slices.Clone(values)})
				replaced = true
			}
			continue
		}
		out = append(out, param.clone())
	}
	if !replaced {
		out = append(out, Param{Name: name, Values: slices.Clone(values)})
	}
	return out
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for i, param := range p {
		out[i] = param.clone()
	}
	return out
}

func (p Param) clone() Param {
	return Param{Name: p.Name, Values: slices.Clone(p.Values)}
}

// Property is one logical content line.
type Property struct {
	Group  string
	Name   string
	Params Params
	Value  string
}

// Key returns the upper-cased property name used for matching.
func (p Property) Key() string {
	return strings.ToUpper(p.Name)
}

// Is reports whether the property has the given name (case-insensitive).
func (p Property) Is(name string) bool {
	return strings.EqualFold(p.Name, name)
}

// Text returns the unescaped value.
func (p Property) Text() string {
	return Unescape(p.Value)
}

// Clone returns a deep copy.
func (p Property) Clone() Property {
	p.Params = p.Params.Clone()
	return p
}

// Equal reports whether two properties are identical after case-folding the
// name, group and parameter names.
func (p Property) Equal(o Property) bool {
	return canonicalLine(p) == canonicalLine(o)
}

// Record is an ordered property store for one contact. Origin and Seq carry
// source provenance and are not part of the serialized form.
type Record struct {
	// Version is the VERSION line, framing rather than content.
	Version string
	// Origin names the collector that produced the record.
	Origin string
	// Seq is the arrival order of the record across the whole batch.
	Seq int

	props []Property
}

// New creates an empty record with the default version.
func New() *Record {
	return &Record{Version: DefaultVersion}
}

// Len returns the number of properties.
func (r *Record) Len() int {
	return len(r.props)
}

// Properties returns a copy of all properties in order.
func (r *Record) Properties() []Property {
	out := make([]Property, len(r.props))
	for i, p := range r.props {
		out[i] = p.Clone()
	}
	return out
}

// Get returns the first property with the given name.
func (r *Record) Get(name string) (Property, bool) {
	for _, p := range r.props {
		if p.Is(name) {
			return p.Clone(), true
		}
	}
	return Property{}, false
}

// All returns every property with the given name, in order.
func (r *Record) All(name string) []Property {
	var out []Property
	for _, p := range r.props {
		if p.Is(name) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Value returns the unescaped text of the first property with the given name.
func (r *Record) Value(name string) string {
	if p, ok := r.Get(name); ok {
		return p.Text()
	}
	return ""
}

// Has reports whether at least one property with the given name exists.
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the distinct upper-cased property names in first-seen order.
func (r *Record) Names() []string {
	var names []string
	seen := make(map[string]bool)
	for _, p := range r.props {
		if key := p.Key(); !seen[key] {
			seen[key] = true
			names = append(names, key)
		}
	}
	return names
}

// Set stores a single-valued property: every existing property with the same
// name is removed and p takes the position of the first one.
func (r *Record) Set(p Property) {
	out := make([]Property, 0, len(r.props)+1)
	placed := false
	for _, existing := range r.props {
		if existing.Is(p.Name) {
			if !placed {
				out = append(out, p.Clone())
				placed = true
			}
			continue
		}
		out = append(out, existing)
	}
	if !placed {
		out = append(out, p.Clone())
	}
	r.props = out
}

// Add appends a multi-valued property unless an identical one is present.
// It reports whether the property was added.
func (r *Record) Add(p Property) bool {
	for _, existing := range r.props {
		if existing.Equal(p) {
			return false
		}
	}
	r.props = append(r.props, p.Clone())
	return true
}

// Append appends p unconditionally, keeping duplicates. The parser uses it so
// that round-trips preserve the input verbatim.
func (r *Record) Append(p Property) {
	r.props = append(r.props, p.Clone())
}

// Remove deletes every property with the given name.
func (r *Record) Remove(name string) {
	r.props = slices.DeleteFunc(r.props, func(p Property) bool {
		return p.Is(name)
	})
}

// Clone returns a deep copy, provenance included.
func (r *Record) Clone() *Record {
	out := &Record{Version: r.Version, Origin: r.Origin, Seq: r.Seq}
	out.props = r.Properties()
	return out
}

// FullName returns the display name: FN, or given and family name from N.
func (r *Record) FullName() string {
	if fn := strings.TrimSpace(r.Value(PropFN)); fn != "" {
		return fn
	}
	n, ok := r.Get(PropN)
	if !ok {
		return ""
	}
	parts := SplitStructured(n.Value)
	var name []string
	for _, i := range []int{3, 1, 2, 0, 4} { // prefix, given, additional, family, suffix
		if i < len(parts) && strings.TrimSpace(parts[i]) != "" {
			name = append(name, strings.TrimSpace(parts[i]))
		}
	}
	return strings.Join(name, " ")
}
