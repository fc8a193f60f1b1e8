package reconciler

import (
	"fmt"
	"strings"

	"github.com/cired/directory/pkg/authority"
	"github.com/cired/directory/pkg/provenance"
	"github.com/cired/directory/pkg/vcard"
)

// StrategyType represents the type of reconciliation strategy.
type StrategyType string

// String returns the string representation of a strategy type.
func (s StrategyType) String() string {
	return string(s)
}

// Name returns the name of the strategy type.
func (s StrategyType) Name() string {
	str := s.String()
	// Replace hyphens with spaces and title case each word
	words := strings.Split(str, "-")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

const (
	// StrategyTypeFieldAuthority uses per-property authorities to resolve conflicts.
	StrategyTypeFieldAuthority StrategyType = "field-authority"
	// StrategyTypeSourceOrder uses origin ordering to resolve conflicts.
	StrategyTypeSourceOrder StrategyType = "source-order"
)

// Candidate is one value offered for a single-valued property.
type Candidate struct {
	Origin   string
	Seq      int
	Property vcard.Property
}

// Resolution is the outcome of a conflict.
type Resolution struct {
	Winner     int    // index into the candidates
	Reason     string // how the winner was chosen
	Unresolved bool   // no configured priority separated the candidates
}

// Strategy defines how single-valued conflicts are resolved.
type Strategy interface {
	// Type returns the strategy type
	Type() StrategyType

	// Description returns a human-readable description
	Description() string

	// ResolveConflict picks the winning candidate. Candidates are ordered by
	// contributor priority and hold at least two distinct values.
	ResolveConflict(property string, candidates []Candidate) Resolution
}

// baseStrategy provides common strategy functionality.
type baseStrategy struct {
	typ         StrategyType
	description string
}

// Type returns the strategy type.
func (s *baseStrategy) Type() StrategyType {
	return s.typ
}

// Description returns a human-readable description.
func (s *baseStrategy) Description() string {
	return s.description
}

// SourceOrderStrategy resolves conflicts using a fixed origin precedence order.
// Origins earlier in the ranking have higher precedence than origins later in it.
type SourceOrderStrategy struct {
	baseStrategy
	ranking authority.Ranking
}

// NewSourceOrderStrategy creates a new origin priority order strategy.
func NewSourceOrderStrategy(ranking authority.Ranking) Strategy {
	return &SourceOrderStrategy{
		baseStrategy: baseStrategy{
			typ:         StrategyTypeSourceOrder,
			description: fmt.Sprintf("Resolves conflicts using origin priority order: %v", []string(ranking)),
		},
		ranking: ranking,
	}
}

// ResolveConflict keeps the value of the highest ranked contributor.
func (s *SourceOrderStrategy) ResolveConflict(_ string, candidates []Candidate) Resolution {
	return s.resolve(candidates)
}

func (s *SourceOrderStrategy) resolve(candidates []Candidate) Resolution {
	// Candidates arrive in contributor order, the first one is the highest ranked
	winner := candidates[0]
	if !s.ranking.Ranked(winner.Origin) {
		return Resolution{Winner: 0, Reason: provenance.ReasonTieBreak, Unresolved: true}
	}
	for _, c := range candidates[1:] {
		if c.Origin == winner.Origin && !sameValue(c.Property, winner.Property) {
			return Resolution{Winner: 0, Reason: provenance.ReasonTieBreak, Unresolved: true}
		}
	}
	return Resolution{Winner: 0, Reason: provenance.ReasonPriority}
}

// AuthorityStrategy uses property authorities to resolve conflicts and falls
// back to origin order when no authority covers a candidate.
type AuthorityStrategy struct {
	baseStrategy
	authorities authority.Authority
	fallback    *SourceOrderStrategy
}

// NewAuthorityStrategy creates a new authority-based strategy.
func NewAuthorityStrategy(authorities authority.Authority, ranking authority.Ranking) Strategy {
	return &AuthorityStrategy{
		baseStrategy: baseStrategy{
			typ:         StrategyTypeFieldAuthority,
			description: "Resolves conflicts using property authority priorities",
		},
		authorities: authorities,
		fallback:    NewSourceOrderStrategy(ranking).(*SourceOrderStrategy),
	}
}

// ResolveConflict uses authorities to resolve conflicts.
func (s *AuthorityStrategy) ResolveConflict(property string, candidates []Candidate) Resolution {
	best, bestPriority := -1, 0
	for i, c := range candidates {
		priority, ok := s.authorities.Priority(property, c.Origin)
		if ok && (best < 0 || priority > bestPriority) {
			best, bestPriority = i, priority
		}
	}

	// No matching authority had a value, fallback to origin order
	if best < 0 {
		return s.fallback.resolve(candidates)
	}

	winner := candidates[best]
	for i, c := range candidates {
		if i == best || sameValue(c.Property, winner.Property) {
			continue
		}
		if priority, ok := s.authorities.Priority(property, c.Origin); ok && priority == bestPriority {
			return Resolution{Winner: best, Reason: provenance.ReasonTieBreak, Unresolved: true}
		}
	}
	return Resolution{
		Winner: best,
		Reason: fmt.Sprintf("%s (priority: %d)", provenance.ReasonAuthority, bestPriority),
	}
}
