// Package metrics records counters for a directory run and writes them in the
// node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cired/directory/pkg/errors"
)

// Metrics provides observability for one pipeline run.
type Metrics struct {
	registry *prometheus.Registry

	// Raw records parsed by origin
	RecordsParsed *prometheus.CounterVec

	// Malformed records skipped
	RecordsSkipped prometheus.Counter

	// Records removed by the exclusion list
	RecordsExcluded prometheus.Counter

	// Canonical records produced
	Canonicals prometheus.Counter

	// Conflicts by resolution: "resolved", "unresolved"
	Conflicts *prometheus.CounterVec

	// Exported records by visibility level
	Exported *prometheus.CounterVec

	// Canonical records without any active level by reason
	NoActiveConsent *prometheus.CounterVec

	// Whole run duration
	RunDuration prometheus.Histogram

	// Completion time of the last successful run
	LastSuccess prometheus.Gauge
}

// New creates a new Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordsParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_records_parsed_total",
			Help: "Raw records parsed by origin",
		}, []string{"origin"}),

		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "directory_records_skipped_total",
			Help: "Malformed records skipped by the parser",
		}),

		RecordsExcluded: factory.NewCounter(prometheus.CounterOpts{
			Name: "directory_records_excluded_total",
			Help: "Raw records removed by the exclusion list",
		}),

		Canonicals: factory.NewCounter(prometheus.CounterOpts{
			Name: "directory_canonical_records_total",
			Help: "Canonical records produced by the merge",
		}),

		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_conflicts_total",
			Help: "Single-valued property conflicts by resolution",
		}, []string{"resolution"}),

		Exported: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_exported_records_total",
			Help: "Records exported by visibility level",
		}, []string{"level"}),

		NoActiveConsent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_no_active_consent_total",
			Help: "Canonical records without any active visibility level by reason",
		}, []string{"reason"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "directory_run_duration_seconds",
			Help:    "Duration of a full pipeline run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "directory_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AddParsed records n parsed records from origin.
func (m *Metrics) AddParsed(origin string, n int) {
	if m != nil {
		m.RecordsParsed.WithLabelValues(origin).Add(float64(n))
	}
}

// AddSkipped records n malformed records.
func (m *Metrics) AddSkipped(n int) {
	if m != nil {
		m.RecordsSkipped.Add(float64(n))
	}
}

// AddExcluded records n excluded records.
func (m *Metrics) AddExcluded(n int) {
	if m != nil {
		m.RecordsExcluded.Add(float64(n))
	}
}

// AddCanonicals records n canonical records.
func (m *Metrics) AddCanonicals(n int) {
	if m != nil {
		m.Canonicals.Add(float64(n))
	}
}

// AddConflicts records resolved and unresolved conflicts.
func (m *Metrics) AddConflicts(resolved, unresolved int) {
	if m != nil {
		m.Conflicts.WithLabelValues("resolved").Add(float64(resolved))
		m.Conflicts.WithLabelValues("unresolved").Add(float64(unresolved))
	}
}

// AddExported records n records exported at level.
func (m *Metrics) AddExported(level string, n int) {
	if m != nil {
		m.Exported.WithLabelValues(level).Add(float64(n))
	}
}

// IncrementNoActiveConsent records a canonical record left out of every export.
func (m *Metrics) IncrementNoActiveConsent(reason string) {
	if m != nil {
		m.NoActiveConsent.WithLabelValues(reason).Inc()
	}
}

// ObserveRun records a successful run of duration d finished at end.
func (m *Metrics) ObserveRun(d time.Duration, end time.Time) {
	if m != nil {
		m.RunDuration.Observe(d.Seconds())
		m.LastSuccess.Set(float64(end.Unix()))
	}
}

// WriteTextfile writes every metric to path for the node-exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
