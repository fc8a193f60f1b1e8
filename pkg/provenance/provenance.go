// Package provenance provides property-level tracking of which collector
// supplied each canonical value, plus the conflict audit trail.
package provenance

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Reasons a value was selected.
const (
	ReasonOnly      = "only contributor"
	ReasonIdentical = "identical values"
	ReasonPriority  = "origin priority"
	ReasonAuthority = "property authority"
	ReasonTieBreak  = "default tie-break"
	ReasonUnion     = "multi-valued union"
)

// Provenance tracks the origin of a canonical property value.
type Provenance struct {
	Origin   string `yaml:"origin"`           // Collector that provided the value (e.g., "askHAL")
	Property string `yaml:"property"`         // Property name
	Value    string `yaml:"value"`            // The raw value
	Seq      int    `yaml:"seq"`              // Arrival sequence of the contributing record
	Reason   string `yaml:"reason,omitempty"` // Reason for selecting this value
}

// Conflict records one value discarded while merging a single-valued
// property. Conflicts are kept for manual review, never silently dropped.
type Conflict struct {
	Identity       string `yaml:"identity"`
	Property       string `yaml:"property"`
	Value          string `yaml:"value"`           // discarded value
	Origin         string `yaml:"origin"`          // origin of the discarded value
	Selected       string `yaml:"selected"`        // value kept on the canonical record
	SelectedOrigin string `yaml:"selected_origin"` // origin of the kept value
	Resolution     string `yaml:"resolution"`
	Unresolved     bool   `yaml:"unresolved,omitempty"` // no configured priority separated the values
}

// Map tracks provenance for multiple canonical records.
type Map map[string][]Provenance // key is "identity:property"

// Tracker manages provenance tracking during merge. It is safe for
// concurrent use.
type Tracker interface {
	// Track records provenance for a property
	Track(identity, property string, history Provenance)

	// FindByField retrieves provenance for a specific property
	FindByField(identity, property string) []Provenance

	// FindByIdentity retrieves all provenance for a canonical record
	FindByIdentity(identity string) map[string][]Provenance

	// Map returns the complete provenance map
	Map() Map

	// Clear removes all provenance data
	Clear()
}

// tracker is the default implementation.
type tracker struct {
	mu         sync.Mutex
	provenance Map
	enabled    bool
}

// NewTracker creates a new provenance tracker.
func NewTracker(enabled bool) Tracker {
	return &tracker{
		provenance: make(Map),
		enabled:    enabled,
	}
}

// Track records provenance for a property.
func (p *tracker) Track(identity, property string, history Provenance) {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := makeKey(identity, property)
	p.provenance[key] = append(p.provenance[key], history)
}

// FindByField retrieves provenance for a specific property.
func (p *tracker) FindByField(identity, property string) []Provenance {
	if !p.enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Provenance(nil), p.provenance[makeKey(identity, property)]...)
}

// FindByIdentity retrieves all provenance for a canonical record.
func (p *tracker) FindByIdentity(identity string) map[string][]Provenance {
	if !p.enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result := make(map[string][]Provenance)
	prefix := identity + "\x00"
	for key, info := range p.provenance {
		if property, found := strings.CutPrefix(key, prefix); found {
			result[property] = append([]Provenance(nil), info...)
		}
	}
	return result
}

// Map returns the complete provenance map.
func (p *tracker) Map() Map {
	if !p.enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Return a copy to prevent external modification
	result := make(Map, len(p.provenance))
	for k, v := range p.provenance {
		result[k] = append([]Provenance{}, v...)
	}
	return result
}

// Clear removes all provenance data.
func (p *tracker) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provenance = make(Map)
}

// makeKey joins identity and property. Identity keys may contain ':' and '#',
// so a NUL byte separates the parts.
func makeKey(identity, property string) string {
	return identity + "\x00" + strings.ToUpper(property)
}

// SplitKey reverses the key layout used by Map.
func SplitKey(key string) (identity, property string) {
	identity, property, _ = strings.Cut(key, "\x00")
	return identity, property
}

// Report is a human-readable provenance report.
type Report struct {
	Identities map[string]map[string][]Provenance // identity -> property -> history
	Conflicts  map[string][]Conflict              // identity -> conflicts
}

// GenerateReport creates a provenance report from a Map and a conflict list.
func GenerateReport(provenance Map, conflicts []Conflict) *Report {
	report := &Report{
		Identities: make(map[string]map[string][]Provenance),
		Conflicts:  make(map[string][]Conflict),
	}

	for key, infos := range provenance {
		identity, property := SplitKey(key)
		if report.Identities[identity] == nil {
			report.Identities[identity] = make(map[string][]Provenance)
		}
		report.Identities[identity][property] = infos
	}
	for _, c := range conflicts {
		report.Conflicts[c.Identity] = append(report.Conflicts[c.Identity], c)
	}
	return report
}

// String generates a string representation of the provenance report.
func (r *Report) String() string {
	var sb strings.Builder

	sb.WriteString("Provenance Report\n")
	sb.WriteString("=================\n\n")

	// Sort identities for consistent output
	identities := make([]string, 0, len(r.Identities))
	for identity := range r.Identities {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	for _, identity := range identities {
		fields := r.Identities[identity]
		sb.WriteString(identity + "\n")
		sb.WriteString(strings.Repeat("-", 40))
		sb.WriteString("\n")

		properties := make([]string, 0, len(fields))
		for property := range fields {
			properties = append(properties, property)
		}
		sort.Strings(properties)

		for _, property := range properties {
			sb.WriteString(fmt.Sprintf("  %s:\n", property))
			for i, info := range fields[property] {
				if i > 3 { // Limit history display
					sb.WriteString(fmt.Sprintf("    ... and %d more\n", len(fields[property])-i))
					break
				}
				sb.WriteString(fmt.Sprintf("    - %s from %s (%s)\n", info.Value, info.Origin, info.Reason))
			}
		}

		if conflicts := r.Conflicts[identity]; len(conflicts) > 0 {
			sb.WriteString("  Conflicts:\n")
			for _, c := range conflicts {
				flag := ""
				if c.Unresolved {
					flag = " [unresolved]"
				}
				sb.WriteString(fmt.Sprintf("    - %s: kept %q from %s, discarded %q from %s (%s)%s\n",
					c.Property, c.Selected, c.SelectedOrigin, c.Value, c.Origin, c.Resolution, flag))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
