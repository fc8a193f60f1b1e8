package provenance

import (
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/save"
)

// Entry is a keyed audit line, such as a record without active consent.
type Entry struct {
	Key    string `yaml:"key"`
	Origin string `yaml:"origin,omitempty"`
	Reason string `yaml:"reason,omitempty"`
}

// AuditFile is the audit trail written next to the exports.
type AuditFile struct {
	AsOf            time.Time           `yaml:"as_of"`
	Summary         map[string]int      `yaml:"summary,omitempty"`
	Origins         map[string][]string `yaml:"origins,omitempty"` // canonical key -> contributing origins
	Conflicts       []Conflict          `yaml:"conflicts,omitempty"`
	NoActiveConsent []Entry             `yaml:"no_active_consent,omitempty"`
	Excluded        []Entry             `yaml:"excluded,omitempty"`
	ParseErrors     []string            `yaml:"parse_errors,omitempty"`
}

// Save writes the audit file as YAML.
func (a *AuditFile) Save(path string) error {
	return save.Write(a, save.WithPath(path), save.WithFormat(save.FormatYAML))
}

// Load reads an audit file.
// Returns nil, nil if the file doesn't exist (not an error).
func Load(path string) (*AuditFile, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	// Path is from configuration, not user input
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var af AuditFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}

	return &af, nil
}
