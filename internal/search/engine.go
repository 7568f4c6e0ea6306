// Package search provides book-wide incremental search over chapter text.
package search

import (
	"context"
	"errors"

	"github.com/azyu/folioseek/pkg/types"
)

// Common errors returned by search operations.
var (
	// ErrEngineUnavailable is returned when a search pattern cannot be built.
	// It is never reported as "no matches".
	ErrEngineUnavailable = errors.New("search engine unavailable")

	// ErrIndexUnavailable is returned when the full-text index has not been built.
	ErrIndexUnavailable = errors.New("search index unavailable")
)

// AnchorStyleSearch is the style tag carried by anchors of search results.
const AnchorStyleSearch = "search-result"

// TextLoader loads the plain text of a chapter.
// Implementations return empty text, not an error, for a missing chapter,
// and identical text for the same href within a session.
type TextLoader interface {
	LoadPlainText(ctx context.Context, href string) (string, error)
}

// ChapterSource exposes the ordered chapters of a book.
type ChapterSource interface {
	// Chapters returns the spine in reading order.
	Chapters() []types.Chapter
	// Title returns the display title of a chapter, resolving it on first use.
	Title(ctx context.Context, index int) string
}

// IndexHit is a candidate chapter returned by the full-text index.
type IndexHit struct {
	Href         string
	ChapterIndex int
	// PositionHint is the character offset of the indexed chunk that matched.
	PositionHint int
}

// IndexLookup is an optional accelerator narrowing the chapters to scan.
// Hits are ordered by relevance.
type IndexLookup interface {
	QueryIndex(ctx context.Context, term string) ([]IndexHit, error)
}

// State is the lifecycle state of a search session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// Options configures the search engine.
type Options struct {
	// BatchSize is the number of chapters processed before a checkpoint.
	BatchSize int

	// MinResults is the result count below which the engine continues
	// with the next batch on its own.
	MinResults int

	// Workers is the number of chapter units executed concurrently.
	// The default of 1 executes units serially in submission order.
	Workers int

	// SnippetRadius and SnippetMaxLength configure the snippet window.
	SnippetRadius    int
	SnippetMaxLength int
}

// DefaultOptions returns Options with the reader's defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:        8,
		MinResults:       20,
		Workers:          1,
		SnippetRadius:    DefaultSnippetRadius,
		SnippetMaxLength: DefaultSnippetMaxLength,
	}
}

// OptionsFromConfig converts the user configuration into Options.
func OptionsFromConfig(cfg types.SearchConfig) Options {
	return DefaultOptions().
		WithBatchSize(cfg.BatchSize).
		WithMinResults(cfg.MinResults).
		WithWorkers(cfg.Workers).
		WithSnippet(cfg.SnippetRadius, cfg.SnippetMaxLength)
}

// WithBatchSize returns a copy of the options with the specified batch size.
// Non-positive values keep the current setting.
func (o Options) WithBatchSize(n int) Options {
	if n > 0 {
		o.BatchSize = n
	}
	return o
}

// WithMinResults returns a copy of the options with the specified threshold.
func (o Options) WithMinResults(n int) Options {
	if n > 0 {
		o.MinResults = n
	}
	return o
}

// WithWorkers returns a copy of the options with the specified worker count.
func (o Options) WithWorkers(n int) Options {
	if n > 0 {
		o.Workers = n
	}
	return o
}

// WithSnippet returns a copy of the options with the specified snippet window.
func (o Options) WithSnippet(radius, maxLength int) Options {
	if radius > 0 {
		o.SnippetRadius = radius
	}
	if maxLength > 0 {
		o.SnippetMaxLength = maxLength
	}
	return o
}
