// Package sources defines the collector inputs of the directory.
//
// A source yields the raw vCard records of one collector run (askCIRED,
// askHAL, ...). Every record is tagged with the source's origin, and Fetch
// numbers records globally in source order so arrival order stays stable
// however the sources are read.
package sources

import (
	"context"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/logging"
	"github.com/cired/directory/pkg/vcard"
)

// ID uniquely identifies a source, the file path for file sources.
type ID string

// String returns the string representation of a source ID.
func (id ID) String() string {
	return string(id)
}

// Source represents one collector input.
type Source interface {
	// ID returns the unique identifier of this source
	ID() ID

	// Origin returns the collector tag applied to every record
	Origin() string

	// Fetch reads and parses the source. Malformed records are kept as
	// diagnostics; only a failure to read the source is returned.
	Fetch(ctx context.Context) error

	// Records returns the records parsed by Fetch
	Records() []*vcard.Record

	// Diagnostics returns the format errors found by Fetch
	Diagnostics() []error
}

// Sources is a thread-safe container for managing multiple sources.
type Sources struct {
	mu      sync.RWMutex
	sources map[ID]Source
}

// NewSources creates a new Sources instance.
func NewSources(srcs ...Source) *Sources {
	s := &Sources{sources: make(map[ID]Source, len(srcs))}
	for _, src := range srcs {
		s.sources[src.ID()] = src
	}
	return s
}

// Get returns a source by ID.
func (s *Sources) Get(id ID) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, found := s.sources[id]
	return src, found
}

// Set sets a source by ID.
func (s *Sources) Set(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID()] = src
}

// Delete deletes a source by ID.
func (s *Sources) Delete(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
}

// Len returns the number of sources.
func (s *Sources) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// List returns all sources ordered by ID.
func (s *Sources) List() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	slices.SortFunc(out, func(a, b Source) int {
		return strings.Compare(string(a.ID()), string(b.ID()))
	})
	return out
}

// Batch is the combined output of several sources.
type Batch struct {
	Records     []*vcard.Record
	Diagnostics []error
	Counts      map[string]int // records per origin
}

// Fetch reads every source concurrently, then numbers the records globally in
// the order of srcs. A read failure of any source is returned as an error.
func Fetch(ctx context.Context, srcs []Source) (*Batch, error) {
	logger := logging.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range srcs {
		g.Go(func() error {
			logger.Debug().Str("source", src.ID().String()).Str("origin", src.Origin()).Msg("Fetching")
			err := src.Fetch(gctx)
			if err != nil && !errors.IsIO(err) {
				return errors.WrapIO("read", src.ID().String(), err)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &Batch{Counts: make(map[string]int)}
	seq := 0
	for _, src := range srcs {
		for _, r := range src.Records() {
			r.Seq = seq
			seq++
			batch.Records = append(batch.Records, r)
			batch.Counts[r.Origin]++
		}
		for _, diag := range src.Diagnostics() {
			logging.FromContext(logging.WithOrigin(ctx, src.Origin())).Warn().
				Err(diag).
				Msg("Skipped malformed record")
			batch.Diagnostics = append(batch.Diagnostics, diag)
		}
	}

	logger.Info().
		Int("sources", len(srcs)).
		Int("records", len(batch.Records)).
		Int("skipped", len(batch.Diagnostics)).
		Msg("Parsed inputs")
	return batch, nil
}
