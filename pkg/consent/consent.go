// Package consent models per-person, per-visibility-level consent.
//
// Each level has its own append-only history of grants. The grant with the
// latest grant timestamp not after the evaluation instant decides the state
// of the level; earlier grants stay in the history for the audit trail.
package consent

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cired/directory/pkg/vcard"
)

// Level is a visibility tier. Levels are ordered public < members < admin
// but independent: consent at one level says nothing about another.
type Level int

// Visibility levels.
const (
	Public Level = iota
	Members
	Admin
)

// Levels lists every level in order.
var Levels = []Level{Public, Members, Admin}

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case Public:
		return "public"
	case Members:
		return "members"
	case Admin:
		return "admin"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return Public, nil
	case "members", "member":
		return Members, nil
	case "admin":
		return Admin, nil
	default:
		return 0, fmt.Errorf("unknown visibility level %q", s)
	}
}

// State is the consent state of one level.
type State string

// Consent states. A level starts unset, becomes active when granted and ends
// withdrawn or expired.
const (
	StateUnset     State = "unset"
	StateActive    State = "active"
	StateWithdrawn State = "withdrawn"
	StateExpired   State = "expired"
)

// Grant is one consent record for one level.
type Grant struct {
	Level     Level
	Fields    []vcard.Selector
	GrantedAt time.Time
	Method    string
	Source    string
	Withdrawn *time.Time
	Expires   *time.Time
}

// State evaluates the grant at now. A withdrawal or expiry timestamp later
// than now is scheduled and leaves the grant active until it passes.
func (g Grant) State(now time.Time) State {
	switch {
	case g.GrantedAt.IsZero() || g.GrantedAt.After(now):
		return StateUnset
	case g.Withdrawn != nil && !g.Withdrawn.After(now):
		return StateWithdrawn
	case g.Expires != nil && !g.Expires.After(now):
		return StateExpired
	default:
		return StateActive
	}
}

// IsActive returns true when consent is currently valid.
func (g Grant) IsActive(now time.Time) bool {
	return g.State(now) == StateActive
}

// FieldList renders the granted fields as a comma-separated selector list.
func (g Grant) FieldList() string {
	parts := make([]string, len(g.Fields))
	for i, f := range g.Fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Transition is a state change of one level.
type Transition struct {
	At    time.Time
	State State
}

// History is the append-only consent history of one person.
type History struct {
	grants []Grant
}

// NewHistory creates a history holding grants in the given order.
func NewHistory(grants ...Grant) *History {
	h := &History{}
	for _, g := range grants {
		h.Append(g)
	}
	return h
}

// Append records a grant. Grants are never removed or rewritten.
func (h *History) Append(g Grant) {
	g.Fields = slices.Clone(g.Fields)
	h.grants = append(h.grants, g)
}

// Empty reports whether the history holds no grant at all.
func (h *History) Empty() bool {
	return h == nil || len(h.grants) == 0
}

// Grants returns a copy of every grant in append order.
func (h *History) Grants() []Grant {
	if h == nil {
		return nil
	}
	return slices.Clone(h.grants)
}

// Current returns the grant deciding the state of level at now: the one with
// the latest grant timestamp not after now. Later appends win ties.
func (h *History) Current(level Level, now time.Time) (Grant, bool) {
	var (
		current Grant
		found   bool
	)
	if h == nil {
		return current, false
	}
	for _, g := range h.grants {
		if g.Level != level || g.GrantedAt.IsZero() || g.GrantedAt.After(now) {
			continue
		}
		if !found || !g.GrantedAt.Before(current.GrantedAt) {
			current, found = g, true
		}
	}
	return current, found
}

// State returns the state of level at now.
func (h *History) State(level Level, now time.Time) State {
	g, ok := h.Current(level, now)
	if !ok {
		return StateUnset
	}
	return g.State(now)
}

// Active returns the levels active at now, in level order.
func (h *History) Active(now time.Time) []Level {
	var active []Level
	for _, l := range Levels {
		if h.State(l, now) == StateActive {
			active = append(active, l)
		}
	}
	return active
}

// Transitions lists the successive states of level, starting with unset at
// the zero time. Consecutive identical states are collapsed.
func (h *History) Transitions(level Level) []Transition {
	var instants []time.Time
	for _, g := range h.Grants() {
		if g.Level != level || g.GrantedAt.IsZero() {
			continue
		}
		instants = append(instants, g.GrantedAt)
		if g.Withdrawn != nil {
			instants = append(instants, *g.Withdrawn)
		}
		if g.Expires != nil {
			instants = append(instants, *g.Expires)
		}
	}
	slices.SortFunc(instants, func(a, b time.Time) int { return a.Compare(b) })

	transitions := []Transition{{State: StateUnset}}
	for _, at := range instants {
		state := h.State(level, at)
		if transitions[len(transitions)-1].State != state {
			transitions = append(transitions, Transition{At: at, State: state})
		}
	}
	return transitions
}

// LevelSet renders a set of levels as a stable key, e.g. "members+public",
// or "none" when empty.
func LevelSet(levels []Level) string {
	if len(levels) == 0 {
		return "none"
	}
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.String()
	}
	slices.Sort(names)
	return strings.Join(slices.Compact(names), "+")
}
