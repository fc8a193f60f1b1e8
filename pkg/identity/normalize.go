// Package identity decides which raw records describe the same person.
//
// Identity is a normalized full name. Near-duplicate spellings (accents, case,
// punctuation, known aliases) collapse to the same key; there is no fuzzy
// scoring.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cired/directory/pkg/vcard"
)

// Normalize turns a display name into its comparison form: combining marks
// stripped, case folded, every rune that is not a letter or digit replaced by
// a space, whitespace collapsed.
//
//	Normalize("  Jean-Charles  HOURCADE ") == "jean charles hourcade"
//	Normalize("Émilie Lévêque")           == "emilie leveque"
func Normalize(name string) string {
	// transformers carry state, build them per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	folded := cases.Fold().String(stripped)

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(mapped), " ")
}

// Normalizer computes identity keys, applying an alias table first.
type Normalizer struct {
	aliases map[string]string
}

// NewNormalizer creates a Normalizer. Alias keys and values are display names;
// they are matched after normalization, so "J.-C. Hourcade" also covers
// "j c hourcade".
func NewNormalizer(aliases map[string]string) *Normalizer {
	n := &Normalizer{aliases: make(map[string]string, len(aliases))}
	for alias, canonical := range aliases {
		if key := Normalize(alias); key != "" {
			n.aliases[key] = Normalize(canonical)
		}
	}
	return n
}

// Key returns the identity key for a display name.
func (n *Normalizer) Key(name string) string {
	key := Normalize(name)
	if canonical, ok := n.aliases[key]; ok {
		return canonical
	}
	return key
}

// Name returns the display name used for identity: FN, or given and family
// name from N when FN is absent or blank.
func Name(r *vcard.Record) string {
	if fn := strings.TrimSpace(r.Value(vcard.PropFN)); fn != "" {
		return fn
	}
	n, ok := r.Get(vcard.PropN)
	if !ok {
		return ""
	}
	parts := vcard.SplitStructured(n.Value)
	var given, family string
	if len(parts) > 1 {
		given = parts[1]
	}
	if len(parts) > 0 {
		family = parts[0]
	}
	return strings.TrimSpace(given + " " + family)
}
