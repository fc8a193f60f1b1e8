package sources

import (
	"context"
	"strings"

	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/vcard"
)

// Memory is a source holding vCard text in memory.
type Memory struct {
	id          ID
	origin      string
	text        string
	records     []*vcard.Record
	diagnostics []error
}

// NewMemory creates a source for text tagged with origin.
func NewMemory(origin, text string) *Memory {
	return &Memory{id: ID("memory:" + origin), origin: origin, text: text}
}

// ID returns the source identifier.
func (m *Memory) ID() ID { return m.id }

// Origin returns the collector tag.
func (m *Memory) Origin() string { return m.origin }

// Fetch parses the text.
func (m *Memory) Fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records, errs := vcard.Parse(strings.NewReader(m.text), m.origin)
	m.records, m.diagnostics = records, nil
	for _, err := range errs {
		if errors.IsIO(err) {
			return err
		}
		m.diagnostics = append(m.diagnostics, err)
	}
	return nil
}

// Records returns the parsed records.
func (m *Memory) Records() []*vcard.Record { return m.records }

// Diagnostics returns the format errors found by Fetch.
func (m *Memory) Diagnostics() []error { return m.diagnostics }
