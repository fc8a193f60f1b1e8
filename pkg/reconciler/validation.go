package reconciler

import (
	"fmt"

	"github.com/cired/directory/pkg/vcard"
)

// ValidationResult represents the result of validating a canonical record.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error.
type ValidationError struct {
	Key      string
	Property string
	Message  string
}

// ValidationWarning represents a validation warning.
type ValidationWarning struct {
	Key      string
	Property string
	Message  string
}

// IsValid returns true if validation passed.
func (v *ValidationResult) IsValid() bool {
	return v.Valid && len(v.Errors) == 0
}

// HasWarnings returns true if there are warnings.
func (v *ValidationResult) HasWarnings() bool {
	return len(v.Warnings) > 0
}

// String returns a string representation of the validation result.
func (v *ValidationResult) String() string {
	if v.IsValid() {
		if v.HasWarnings() {
			return fmt.Sprintf("Validation passed with %d warnings", len(v.Warnings))
		}
		return "Validation passed"
	}
	return fmt.Sprintf("Validation failed with %d errors", len(v.Errors))
}

// Messages renders errors and warnings as one line each.
func (v *ValidationResult) Messages() []string {
	var out []string
	for _, e := range v.Errors {
		out = append(out, fmt.Sprintf("%s: %s: %s", e.Key, e.Property, e.Message))
	}
	for _, w := range v.Warnings {
		out = append(out, fmt.Sprintf("%s: %s: %s", w.Key, w.Property, w.Message))
	}
	return out
}

// Validate checks a canonical record: its UID must match the content, and a
// missing display name is worth a warning.
func Validate(c Canonical) *ValidationResult {
	v := &ValidationResult{Valid: true}
	if c.Record == nil {
		v.Valid = false
		v.Errors = append(v.Errors, ValidationError{Key: c.Key, Message: "missing record"})
		return v
	}

	if uid := c.Record.UID(); uid != c.Record.ID() {
		v.Errors = append(v.Errors, ValidationError{Key: c.Key, Property: vcard.PropUID, Message: "does not match record content"})
	}
	if !c.Record.Has(vcard.PropFN) {
		v.Warnings = append(v.Warnings, ValidationWarning{Key: c.Key, Property: vcard.PropFN, Message: "no display name"})
	}

	v.Valid = len(v.Errors) == 0
	return v
}
