package consent

import (
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-yaml"

	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/vcard"
)

// Book holds sidecar consent grants keyed by identity key.
type Book struct {
	grants map[string][]Grant
}

// grantYAML is the sidecar layout of one grant.
type grantYAML struct {
	Level     string   `yaml:"level"`
	Fields    []string `yaml:"fields"`
	Granted   string   `yaml:"granted"`
	Method    string   `yaml:"method,omitempty"`
	Source    string   `yaml:"source,omitempty"`
	Withdrawn string   `yaml:"withdrawn,omitempty"`
	Expires   string   `yaml:"expires,omitempty"`
}

// NewBook creates a book from grants keyed by display name. key maps a
// display name to its identity key; nil keeps names as they are.
func NewBook(byName map[string][]Grant, key func(string) string) *Book {
	b := &Book{grants: make(map[string][]Grant, len(byName))}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names) // deterministic append order when names collide

	for _, name := range names {
		k := name
		if key != nil {
			k = key(name)
		}
		b.grants[k] = append(b.grants[k], byName[name]...)
	}
	return b
}

// Grants returns the sidecar grants for an identity key.
func (b *Book) Grants(key string) []Grant {
	if b == nil {
		return nil
	}
	return slices.Clone(b.grants[key])
}

// Len returns the number of people in the book.
func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.grants)
}

// LoadBook reads a sidecar consent file:
//
//	Marie Dubois:
//	  - level: public
//	    fields: [FN, ORG, "URL:ORCID"]
//	    granted: 2024-01-01T00:00:00Z
//	    method: email
//	    source: survey-2024
func LoadBook(path string) (map[string][]Grant, error) {
	// Path comes from configuration, not user input
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	grants, err := ParseBook(data)
	if err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return grants, nil
}

// ParseBook decodes the sidecar layout accepted by LoadBook.
func ParseBook(data []byte) (map[string][]Grant, error) {
	var raw map[string][]grantYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(map[string][]Grant, len(raw))
	for name, entries := range raw {
		out[name] = make([]Grant, 0, len(entries))
		for i, entry := range entries {
			g, err := entry.grant()
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			out[name] = append(out[name], g)
		}
	}
	return out, nil
}

func (y grantYAML) grant() (Grant, error) {
	var (
		g   Grant
		err error
	)
	if g.Level, err = ParseLevel(y.Level); err != nil {
		return g, err
	}
	if g.GrantedAt, err = ParseTime(y.Granted); err != nil {
		return g, err
	}
	if y.Withdrawn != "" {
		t, err := ParseTime(y.Withdrawn)
		if err != nil {
			return g, err
		}
		g.Withdrawn = &t
	}
	if y.Expires != "" {
		t, err := ParseTime(y.Expires)
		if err != nil {
			return g, err
		}
		g.Expires = &t
	}
	for _, f := range y.Fields {
		sel, err := vcard.ParseSelector(f)
		if err != nil {
			return g, err
		}
		g.Fields = append(g.Fields, sel)
	}
	g.Method, g.Source = y.Method, y.Source
	return g, nil
}
