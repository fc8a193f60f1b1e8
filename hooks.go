package directory

import (
	"sync"

	"github.com/cired/directory/pkg/consent"
	"github.com/cired/directory/pkg/export"
	"github.com/cired/directory/pkg/provenance"
	"github.com/cired/directory/pkg/reconciler"
	"github.com/cired/directory/pkg/vcard"
)

// Hook function types for pipeline events
type (
	// CanonicalHook is called for every canonical record produced by a run
	CanonicalHook func(canonical reconciler.Canonical)

	// ConflictHook is called for every value discarded by the merge
	ConflictHook func(conflict provenance.Conflict)

	// ExportedHook is called for every record exported at a level
	ExportedHook func(level consent.Level, record *vcard.Record)

	// NoActiveConsentHook is called for every canonical record left out of
	// all exports
	NoActiveConsentHook func(entry export.NoActiveConsent)
)

// hooks manages event callbacks for a pipeline run
type hooks struct {
	mu                sync.RWMutex
	onCanonical       []CanonicalHook
	onConflict        []ConflictHook
	onExported        []ExportedHook
	onNoActiveConsent []NoActiveConsentHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnCanonical registers a callback for canonical records
func (h *hooks) OnCanonical(fn CanonicalHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCanonical = append(h.onCanonical, fn)
}

// OnConflict registers a callback for discarded values
func (h *hooks) OnConflict(fn ConflictHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConflict = append(h.onConflict, fn)
}

// OnExported registers a callback for exported records
func (h *hooks) OnExported(fn ExportedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onExported = append(h.onExported, fn)
}

// OnNoActiveConsent registers a callback for records without active level
func (h *hooks) OnNoActiveConsent(fn NoActiveConsentHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onNoActiveConsent = append(h.onNoActiveConsent, fn)
}

// trigger replays a finished run through the registered hooks, in output
// order.
func (h *hooks) trigger(merge *reconciler.Result, exports *export.Exports) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range merge.Canonicals {
		for _, hook := range h.onCanonical {
			hook(c)
		}
	}
	for _, conflict := range merge.Conflicts {
		for _, hook := range h.onConflict {
			hook(conflict)
		}
	}
	for _, level := range consent.Levels {
		for _, rec := range exports.Records(level) {
			for _, hook := range h.onExported {
				hook(level, rec)
			}
		}
	}
	for _, entry := range exports.NoActiveConsent {
		for _, hook := range h.onNoActiveConsent {
			hook(entry)
		}
	}
}
