// Package local reads collector output from vCard files.
package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/sources"
	"github.com/cired/directory/pkg/vcard"
)

// Source loads the records of one vCard file.
type Source struct {
	path        string
	origin      string
	records     []*vcard.Record
	diagnostics []error
}

// New creates a new local source.
func New(opts ...Option) *Source {
	s := &Source{}
	for _, opt := range opts {
		opt(s)
	}
	if s.origin == "" {
		s.origin = OriginOf(s.path)
	}
	return s
}

// Option configures a local source.
type Option func(*Source)

// WithPath sets the file path.
func WithPath(path string) Option {
	return func(s *Source) {
		s.path = path
	}
}

// WithOrigin overrides the origin derived from the file name.
func WithOrigin(origin string) Option {
	return func(s *Source) {
		s.origin = origin
	}
}

// OriginOf returns the collector tag of a file: its base name without
// extension.
func OriginOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ID returns the file path.
func (s *Source) ID() sources.ID {
	return sources.ID(s.path)
}

// Origin returns the collector tag.
func (s *Source) Origin() string {
	return s.origin
}

// Path returns the file path.
func (s *Source) Path() string {
	return s.path
}

// Fetch parses the file.
func (s *Source) Fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return errors.WrapIO("open", s.path, err)
	}
	defer f.Close()

	records, errs := vcard.Parse(f, s.origin)
	s.records, s.diagnostics = records, nil
	for _, err := range errs {
		if errors.IsIO(err) {
			return errors.WrapIO("read", s.path, err)
		}
		s.diagnostics = append(s.diagnostics, err)
	}
	return nil
}

// Records returns the parsed records.
func (s *Source) Records() []*vcard.Record {
	return s.records
}

// Diagnostics returns the format errors found by Fetch.
func (s *Source) Diagnostics() []error {
	return s.diagnostics
}
