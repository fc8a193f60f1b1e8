// Package export projects canonical records into consent-tiered directories.
//
// A record appears at a visibility level only when that level's own consent
// is active, and then only with the fields the grant lists. There is no
// fallback between levels. A person split into several partitions appears
// at most once per level.
package export

import (
	"slices"
	"strings"
	"time"

	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/reconciler"
	"github.com/cired/directory/pkg/vcard"
)

// Reason explains why a record has no active level.
type Reason string

// Reasons for a record without any export.
const (
	// ReasonMissing means the record carries no consent data at all.
	ReasonMissing Reason = "missing"
	// ReasonInactive means every grant is unset, withdrawn or expired.
	ReasonInactive Reason = "inactive"
)

// NoActiveConsent lists a canonical record left out of every export.
type NoActiveConsent struct {
	Key    string
	Reason Reason
	Err    error // *errors.ConsentMissingError when Reason is ReasonMissing
}

// Exports holds the projected records per level, in canonical key order.
type Exports struct {
	Levels          map[consent.Level][]*vcard.Record
	NoActiveConsent []NoActiveConsent
	Errors          []error // malformed consent lines, skipped
}

// Records returns the records exported at level.
func (e *Exports) Records(level consent.Level) []*vcard.Record {
	return e.Levels[level]
}

// Exporter evaluates consent and projects records.
type Exporter struct {
	book *consent.Book
	asOf time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithBook adds sidecar consent grants.
func WithBook(book *consent.Book) Option {
	return func(e *Exporter) {
		e.book = book
	}
}

// WithAsOf sets the evaluation instant.
func WithAsOf(t time.Time) Option {
	return func(e *Exporter) {
		e.asOf = t
	}
}

// New creates an Exporter evaluating consent at the current time unless
// WithAsOf is given.
func New(opts ...Option) *Exporter {
	e := &Exporter{asOf: time.Now().UTC()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// History returns the consent history of a canonical record: its own X-CONSENT
// lines followed by the sidecar grants of its identity.
func (e *Exporter) History(key string, record *vcard.Record) (*consent.History, []error) {
	history, errs := consent.FromRecord(record)
	for _, g := range e.book.Grants(identityOf(key)) {
		history.Append(g)
	}
	return history, errs
}

// Export projects record at level. It reports false when the level's consent
// is not active.
func (e *Exporter) Export(key string, record *vcard.Record, level consent.Level) (*vcard.Record, bool) {
	history, _ := e.History(key, record)
	return e.project(history, record, level)
}

func (e *Exporter) project(history *consent.History, record *vcard.Record, level consent.Level) (*vcard.Record, bool) {
	grant, ok := history.Current(level, e.asOf)
	if !ok || !grant.IsActive(e.asOf) {
		return nil, false
	}

	out := record.Project(grant.Fields)
	out.Version = vcard.DefaultVersion
	out.Origin, out.Seq = "", 0

	// consent lines are administrative data
	out.Remove(vcard.PropConsent)
	if level == consent.Admin {
		for _, g := range history.Grants() {
			out.Add(g.Property())
		}
	}
	return out, true
}

// Run exports every canonical record at every level.
func (e *Exporter) Run(canonicals []reconciler.Canonical) *Exports {
	exports := &Exports{Levels: make(map[consent.Level][]*vcard.Record, len(consent.Levels))}

	for _, c := range canonicals {
		history, errs := e.History(c.Key, c.Record)
		exports.Errors = append(exports.Errors, errs...)

		if history.Empty() {
			exports.NoActiveConsent = append(exports.NoActiveConsent, NoActiveConsent{
				Key:    c.Key,
				Reason: ReasonMissing,
				Err:    &errors.ConsentMissingError{Identity: c.Key},
			})
			continue
		}

		exported := false
		for _, level := range consent.Levels {
			if c.Split && !slices.Contains(c.Exported, level) {
				continue
			}
			if rec, ok := e.project(history, c.Record, level); ok {
				exports.Levels[level] = append(exports.Levels[level], rec)
				exported = true
			}
		}
		// a partition whose levels are exported by a sibling is covered
		if !exported && !(c.Split && len(c.Levels) > 0) {
			exports.NoActiveConsent = append(exports.NoActiveConsent, NoActiveConsent{
				Key:    c.Key,
				Reason: ReasonInactive,
			})
		}
	}
	return exports
}

// identityOf strips the visibility suffix of a split canonical key.
func identityOf(key string) string {
	identity, _, _ := strings.Cut(key, "#")
	return identity
}
