// Package authority describes which collector is trusted for which property.
//
// Two layers exist: a Ranking orders collectors globally, most authoritative
// first, and Field entries override the ranking for individual properties.
package authority

import (
	"path/filepath"
	"slices"
	"strings"
)

// Authority determines which origin is authoritative for each property.
type Authority interface {
	// Find returns the highest priority authority for a property.
	Find(property string) *Field

	// Priority returns the priority of origin for a property, false when no
	// authority names that origin for the property.
	Priority(property, origin string) (int, bool)

	// List returns all authorities.
	List() []Field
}

// Field defines origin priority for a property. Property supports a trailing
// '*' or filepath.Match patterns, e.g. "X-*".
type Field struct {
	Path     string `json:"property" yaml:"property" mapstructure:"property"` // e.g., "ORG", "EMAIL", "X-*"
	Origin   string `json:"origin" yaml:"origin" mapstructure:"origin"`       // Which collector is authoritative
	Priority int    `json:"priority" yaml:"priority" mapstructure:"priority"` // Priority (higher = more authoritative)
}

// authorities provides configured field authorities.
type authorities struct {
	fields []Field
}

// New creates an Authority over the given fields.
func New(fields ...Field) Authority {
	return &authorities{fields: slices.Clone(fields)}
}

// Find returns the authority configuration for a specific property.
func (a *authorities) Find(property string) *Field {
	return ByField(property, a.fields)
}

// Priority returns the best priority configured for origin on property.
func (a *authorities) Priority(property, origin string) (int, bool) {
	best, found := 0, false
	for _, f := range FilterAuthoritiesByOrigin(a.fields, origin) {
		if MatchesPattern(property, f.Path) && (!found || f.Priority > best) {
			best, found = f.Priority, true
		}
	}
	return best, found
}

// List returns all authorities.
func (a *authorities) List() []Field {
	return slices.Clone(a.fields)
}

// ByField returns the highest priority authority for a given property.
func ByField(property string, authorities []Field) *Field {
	var bestMatch *Field
	var bestPriority int
	var bestMatchLength int

	for i, auth := range authorities {
		if MatchesPattern(property, auth.Path) {
			// Prioritize by: 1) priority, 2) pattern specificity (length), 3) order
			patternLength := len(auth.Path)
			if bestMatch == nil || auth.Priority > bestPriority ||
				(auth.Priority == bestPriority && patternLength > bestMatchLength) {
				bestMatch = &authorities[i]
				bestPriority = auth.Priority
				bestMatchLength = patternLength
			}
		}
	}

	return bestMatch
}

// MatchesPattern checks if a property name matches a pattern (supports *
// wildcards). Property names are case-insensitive.
func MatchesPattern(property, pattern string) bool {
	property, pattern = strings.ToUpper(property), strings.ToUpper(pattern)

	if property == pattern {
		return true
	}

	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(property, strings.TrimSuffix(pattern, "*"))
	}

	matched, err := filepath.Match(pattern, property)
	if err != nil {
		return false
	}
	return matched
}

// FilterAuthoritiesByOrigin returns only the authorities for a specific origin.
func FilterAuthoritiesByOrigin(authorities []Field, origin string) []Field {
	var filtered []Field
	for _, auth := range authorities {
		if auth.Origin == origin {
			filtered = append(filtered, auth)
		}
	}
	return filtered
}

// Ranking orders origins, most authoritative first.
type Ranking []string

// Rank returns the position of origin in the ranking. Unranked origins get
// len(r) and false, placing them after every ranked origin.
func (r Ranking) Rank(origin string) (int, bool) {
	if i := slices.Index(r, origin); i >= 0 {
		return i, true
	}
	return len(r), false
}

// Ranked reports whether origin appears in the ranking.
func (r Ranking) Ranked(origin string) bool {
	_, ok := r.Rank(origin)
	return ok
}

// Compare orders two origins by rank, then by name.
func (r Ranking) Compare(a, b string) int {
	ra, _ := r.Rank(a)
	rb, _ := r.Rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
