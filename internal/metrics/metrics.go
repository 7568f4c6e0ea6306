// Package metrics provides Prometheus metrics for folioseek.
//
// All recording methods are safe to call on a nil *Metrics, which records
// nothing.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Migration outcome labels.
const (
	MigrationSucceeded = "succeeded"
	MigrationFailed    = "failed"
	MigrationSkipped   = "skipped"
)

// Metrics holds the search and anchoring metrics.
type Metrics struct {
	registry *prometheus.Registry

	BatchesTotal         prometheus.Counter
	BatchDuration        prometheus.Histogram
	ChaptersScannedTotal prometheus.Counter
	ChaptersSkippedTotal prometheus.Counter
	ResultsTotal         prometheus.Counter
	StaleAppendsTotal    prometheus.Counter
	SearchesTotal        *prometheus.CounterVec
	MigrationsTotal      *prometheus.CounterVec
	IndexedChunksTotal   prometheus.Counter
}

// New creates and registers all metrics on reg. A nil reg gets a fresh
// registry, so several instances can coexist in tests.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "folioseek_search_batches_total",
			Help: "Total number of chapter batches completed",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "folioseek_search_batch_duration_seconds",
			Help:    "Duration of chapter batches in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		ChaptersScannedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "folioseek_search_chapters_scanned_total",
			Help: "Total number of chapters whose text was searched",
		}),
		ChaptersSkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "folioseek_search_chapters_skipped_total",
			Help: "Total number of chapters skipped because their text could not be loaded",
		}),
		ResultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "folioseek_search_results_total",
			Help: "Total number of search results appended",
		}),
		StaleAppendsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "folioseek_search_stale_appends_total",
			Help: "Total number of chapter results dropped for a superseded query",
		}),
		SearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folioseek_searches_total",
			Help: "Total number of search runs by planning mode",
		}, []string{"mode"}),
		MigrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folioseek_highlight_migrations_total",
			Help: "Total number of legacy highlight migrations by outcome",
		}, []string{"outcome"}),
		IndexedChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "folioseek_index_chunks_total",
			Help: "Total number of text chunks written to the full-text index",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Search records the start of a search run.
func (m *Metrics) Search(mode string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(mode).Inc()
}

// Batch records a completed batch.
func (m *Metrics) Batch(duration time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
	m.BatchDuration.Observe(duration.Seconds())
}

// ChapterScanned records a chapter whose text was searched.
func (m *Metrics) ChapterScanned() {
	if m == nil {
		return
	}
	m.ChaptersScannedTotal.Inc()
}

// ChapterSkipped records a chapter that could not be loaded.
func (m *Metrics) ChapterSkipped() {
	if m == nil {
		return
	}
	m.ChaptersSkippedTotal.Inc()
}

// Results records appended results.
func (m *Metrics) Results(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ResultsTotal.Add(float64(n))
}

// StaleAppend records a chapter append rejected by the epoch guard.
func (m *Metrics) StaleAppend() {
	if m == nil {
		return
	}
	m.StaleAppendsTotal.Inc()
}

// Migration records a migration outcome.
func (m *Metrics) Migration(outcome string) {
	if m == nil {
		return
	}
	m.MigrationsTotal.WithLabelValues(outcome).Inc()
}

// IndexedChunks records chunks written to the index.
func (m *Metrics) IndexedChunks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IndexedChunksTotal.Add(float64(n))
}

// WriteText writes the registered metrics in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
