package identity

import (
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-yaml"

	"github.com/cired/directory/pkg/errors"
)

// LoadExclusions reads an exclusion list from a YAML file. Two layouts are
// accepted: a plain list of names, or a map of name to bool where only true
// entries are excluded.
//
//	- Jean Dupont
//	- Marie Curie
//
//	Jean Dupont: true
//	Marie Curie: false
func LoadExclusions(path string) ([]string, error) {
	// Path comes from configuration, not user input
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	names, err := ParseExclusions(data)
	if err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return names, nil
}

// ParseExclusions decodes the YAML exclusion layouts accepted by LoadExclusions.
func ParseExclusions(data []byte) ([]string, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var names []string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("exclusion entry %v is not a name", item)
			}
			names = append(names, name)
		}
	case map[string]any:
		for name, flag := range v {
			excluded, ok := flag.(bool)
			if !ok {
				return nil, fmt.Errorf("exclusion flag for %q must be true or false", name)
			}
			if excluded {
				names = append(names, name)
			}
		}
		slices.Sort(names)
	default:
		return nil, fmt.Errorf("exclusion list must be a list or a map, got %T", raw)
	}
	return names, nil
}
