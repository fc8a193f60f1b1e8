// Package errors provides custom error types for the directory pipeline.
// Per-record errors (format, conflict, missing consent) are isolated and never
// abort a batch; environment errors (I/O) are fatal. The typed errors support
// errors.Is against the sentinels below so callers can branch on the kind.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is and As are re-exported so callers need a single errors import.
var (
	Is = errors.Is
	As = errors.As
)

// Common sentinel errors for the directory pipeline
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrFormat indicates a malformed vCard record
	ErrFormat = errors.New("malformed record")

	// ErrConflictUnresolved indicates a single-valued property conflict that
	// no configured origin priority could decide
	ErrConflictUnresolved = errors.New("conflict unresolved")

	// ErrConsentMissing indicates a record carries no consent data at all
	ErrConsentMissing = errors.New("consent state missing")

	// ErrIO indicates a stream could not be read or written
	ErrIO = errors.New("io failure")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// FormatError reports a single malformed vCard record. The record is skipped;
// the rest of the stream is still parsed.
type FormatError struct {
	Origin  string // collector that produced the stream
	Line    int    // physical line where the problem was detected
	Message string
}

// Error implements the error interface
func (e *FormatError) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("format error in %s at line %d: %s", e.Origin, e.Line, e.Message)
	}
	return fmt.Sprintf("format error at line %d: %s", e.Line, e.Message)
}

// Is implements errors.Is support
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// NewFormatError creates a new FormatError
func NewFormatError(origin string, line int, message string) *FormatError {
	return &FormatError{Origin: origin, Line: line, Message: message}
}

// ConflictError describes a single-valued property conflict decided by the
// default tie-break because no configured priority separated the candidates.
type ConflictError struct {
	Identity string
	Property string
	Origins  []string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("unresolved conflict on %s for %q between origins %v", e.Property, e.Identity, e.Origins)
}

// Is implements errors.Is support
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflictUnresolved
}

// NewConflictError creates a new ConflictError
func NewConflictError(identity, property string, origins []string) *ConflictError {
	return &ConflictError{Identity: identity, Property: property, Origins: origins}
}

// ConsentMissingError marks a record without any consent data. It is a normal
// terminal state, equivalent to "no active level".
type ConsentMissingError struct {
	Identity string
}

// Error implements the error interface
func (e *ConsentMissingError) Error() string {
	return fmt.Sprintf("no consent data for %q", e.Identity)
}

// Is implements errors.Is support
func (e *ConsentMissingError) Is(target error) bool {
	return target == ErrConsentMissing
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "yaml", "rfc3339", ...
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "open", "close", "glob"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsFormat checks if an error is a malformed record error
func IsFormat(err error) bool {
	return errors.Is(err, ErrFormat)
}

// IsConflict checks if an error is an unresolved conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflictUnresolved)
}

// IsConsentMissing checks if an error reports absent consent data
func IsConsentMissing(err error) bool {
	return errors.Is(err, ErrConsentMissing)
}

// IsIO checks if an error is a fatal I/O error
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}
