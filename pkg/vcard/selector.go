package vcard

import (
	"fmt"
	"strings"
)

// Selector addresses properties by name, optionally qualified by a TYPE
// parameter value: "URL" matches every URL, "URL:ORCID" only URLs typed ORCID.
type Selector struct {
	Name string
	Type string
}

// ParseSelector parses "NAME" or "NAME:TYPE".
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	name, typ, _ := strings.Cut(s, ":")
	name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
	if !nameRe.MatchString(name) {
		return Selector{}, fmt.Errorf("invalid field selector %q", s)
	}
	if strings.Contains(s, ":") && typ == "" {
		return Selector{}, fmt.Errorf("empty type in field selector %q", s)
	}
	return Selector{Name: strings.ToUpper(name), Type: typ}, nil
}

// ParseSelectors parses a comma-separated selector list, skipping empty entries.
func ParseSelectors(list string) ([]Selector, error) {
	var out []Selector
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		sel, err := ParseSelector(item)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

// Matches reports whether p is addressed by the selector.
func (s Selector) Matches(p Property) bool {
	if !p.Is(s.Name) {
		return false
	}
	return s.Type == "" || p.Params.HasType(s.Type)
}

// String renders the selector in its textual form.
func (s Selector) String() string {
	if s.Type == "" {
		return s.Name
	}
	return s.Name + ":" + s.Type
}

// MatchesAny reports whether any selector addresses p.
func MatchesAny(selectors []Selector, p Property) bool {
	for _, s := range selectors {
		if s.Matches(p) {
			return true
		}
	}
	return false
}

// Project returns a copy of r holding only the properties matched by
// selectors, in their original order.
func (r *Record) Project(selectors []Selector) *Record {
	out := &Record{Version: r.Version, Origin: r.Origin, Seq: r.Seq}
	for _, p := range r.props {
		if MatchesAny(selectors, p) {
			out.props = append(out.props, p.Clone())
		}
	}
	return out
}
