package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/azyu/folioseek/internal/anchor"
	"github.com/azyu/folioseek/internal/metrics"
	"github.com/azyu/folioseek/pkg/types"
)

// Plan is the ordered list of chapters a query scans.
type Plan struct {
	Chapters []types.Chapter
	// Indexed is true when the chapters were narrowed by the full-text index.
	Indexed bool
}

// Total returns the number of chapters in the plan.
func (p Plan) Total() int {
	return len(p.Chapters)
}

// BatchOutcome describes one finished batch.
type BatchOutcome struct {
	// Start and End delimit the processed plan positions, End exclusive.
	Start int
	End   int
	// Appended is the number of results this batch added.
	Appended int
	// Count is the result count of the set after the batch.
	Count int
	// Cancelled is true when the batch was interrupted. A cancelled batch
	// does not move the plan position.
	Cancelled bool
}

// Done reports whether the batch reached the end of plan.
func (o BatchOutcome) Done(plan Plan) bool {
	return !o.Cancelled && o.End >= plan.Total()
}

// Scheduler runs batches of chapter scans into a ResultSet.
type Scheduler struct {
	loader    TextLoader
	source    ChapterSource
	results   *ResultSet
	queue     *workQueue
	opts      Options
	extractor Extractor
	ids       anchor.IDGenerator
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIDGenerator sets the generator for result anchor ids.
func WithIDGenerator(gen anchor.IDGenerator) SchedulerOption {
	return func(s *Scheduler) {
		if gen != nil {
			s.ids = gen
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(log zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = log
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a scheduler writing into results.
func NewScheduler(loader TextLoader, source ChapterSource, results *ResultSet, opts Options, options ...SchedulerOption) *Scheduler {
	opts = DefaultOptions().
		WithBatchSize(opts.BatchSize).
		WithMinResults(opts.MinResults).
		WithWorkers(opts.Workers).
		WithSnippet(opts.SnippetRadius, opts.SnippetMaxLength)

	s := &Scheduler{
		loader:    loader,
		source:    source,
		results:   results,
		queue:     newWorkQueue(opts.Workers),
		opts:      opts,
		extractor: NewExtractor(opts.SnippetRadius, opts.SnippetMaxLength),
		ids:       anchor.DefaultIDGenerator,
		log:       zerolog.Nop(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Options returns the effective options.
func (s *Scheduler) Options() Options {
	return s.opts
}

// RunBatch scans plan positions [start, start+BatchSize) and settles the
// result set. Results are appended per chapter under epoch.
func (s *Scheduler) RunBatch(ctx context.Context, epoch uint64, m *Matcher, plan Plan, start int) BatchOutcome {
	end := min(plan.Total(), start+s.opts.BatchSize)
	out := BatchOutcome{Start: start, End: end}
	if start >= end {
		out.Count = s.results.Count()
		return out
	}

	began := time.Now()
	units := make([]unit, 0, end-start)
	appended := make([]int, end-start)
	for i, ch := range plan.Chapters[start:end] {
		units = append(units, unit{
			id: ch.Href,
			run: func(ctx context.Context) {
				appended[i] = s.scanChapter(ctx, epoch, m, ch)
			},
		})
	}
	s.queue.Run(ctx, units)

	if ctx.Err() != nil {
		out.Cancelled = true
		return out
	}
	if !s.results.Settle(epoch, end) {
		out.Cancelled = true
		return out
	}

	for _, n := range appended {
		out.Appended += n
	}
	out.Count = s.results.Count()

	s.metrics.Batch(time.Since(began))
	s.log.Debug().
		Int("start", start).
		Int("end", end).
		Int("total", plan.Total()).
		Int("appended", out.Appended).
		Int("count", out.Count).
		Msg("batch settled")
	return out
}

// scanChapter searches one chapter and appends its results. It returns the
// number of results appended.
func (s *Scheduler) scanChapter(ctx context.Context, epoch uint64, m *Matcher, ch types.Chapter) int {
	text, err := s.loader.LoadPlainText(ctx, ch.Href)
	if ctx.Err() != nil {
		return 0
	}
	if err != nil {
		s.log.Warn().Err(err).Str("href", ch.Href).Msg("skipping chapter")
		s.metrics.ChapterSkipped()
		return 0
	}
	if text == "" {
		s.metrics.ChapterSkipped()
		return 0
	}
	s.metrics.ChapterScanned()

	spans := m.Find(text)
	if len(spans) == 0 {
		return 0
	}

	runes := []rune(text)
	results := make([]types.SearchResult, 0, len(spans))
	for _, sp := range spans {
		if ctx.Err() != nil {
			return 0
		}
		ex := s.extractor.ExtractRunes(sp, runes)
		if ex.Empty() {
			continue
		}
		results = append(results, types.SearchResult{
			ChapterIndex: ch.Index,
			Occurrence:   len(results) + 1,
			Snippet:      ex.Snippet,
			Highlight:    ex.Highlight,
			Anchor:       anchor.Encode(sp.Start, sp.End(), s.ids(), AnchorStyleSearch),
		})
	}
	if len(results) == 0 {
		return 0
	}

	title := s.source.Title(ctx, ch.Index)
	if ctx.Err() != nil {
		return 0
	}

	section := types.SectionResult{
		ChapterIndex: ch.Index,
		Href:         ch.Href,
		Title:        title,
		Results:      results,
	}
	if !s.results.AppendSection(epoch, section) {
		s.metrics.StaleAppend()
		return 0
	}
	s.metrics.Results(len(results))
	return len(results)
}
