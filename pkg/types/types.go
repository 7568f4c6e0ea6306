// Package types provides shared data models for folioseek.
package types

import (
	"time"
)

// Chapter is one spine document of a book.
type Chapter struct {
	// Index is the 0-based position in reading order.
	Index int `yaml:"index" json:"index"`
	// Href is the document path inside the book container. Unique per book.
	Href string `yaml:"href" json:"href"`
	// Title is the resolved display title, empty until resolved.
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
}

// MatchSpan is a half-open [Start, Start+Length) range of character offsets.
type MatchSpan struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the exclusive end offset of the span.
func (s MatchSpan) End() int {
	return s.Start + s.Length
}

// Within reports whether the span lies fully inside a text of n characters.
func (s MatchSpan) Within(n int) bool {
	return s.Start >= 0 && s.Length >= 0 && s.End() <= n
}

// SearchResult is a single match found by a search pass.
type SearchResult struct {
	ChapterIndex int `json:"chapter_index"`
	// Occurrence is the 1-based index of the match inside its chapter.
	Occurrence int       `json:"occurrence"`
	Snippet    string    `json:"snippet"`
	Highlight  MatchSpan `json:"highlight"`
	// Anchor is the serialized range of the match inside the chapter text.
	Anchor string `json:"anchor"`
}

// SectionResult groups the results of one chapter.
type SectionResult struct {
	ChapterIndex int            `json:"chapter_index"`
	Href         string         `json:"href"`
	Title        string         `json:"title"`
	Results      []SearchResult `json:"results"`
}

// HighlightStyle is the visual style of a highlight.
type HighlightStyle int

const (
	StyleYellow HighlightStyle = iota
	StyleGreen
	StyleBlue
	StylePink
	StyleUnderline
)

// StyleForClass returns the style for a CSS class name. Unknown classes are yellow.
func StyleForClass(className string) HighlightStyle {
	switch className {
	case "highlight-green":
		return StyleGreen
	case "highlight-blue":
		return StyleBlue
	case "highlight-pink":
		return StylePink
	case "highlight-underline":
		return StyleUnderline
	default:
		return StyleYellow
	}
}

// Class returns the CSS class name for the style.
func (s HighlightStyle) Class() string {
	switch s {
	case StyleGreen:
		return "highlight-green"
	case StyleBlue:
		return "highlight-blue"
	case StylePink:
		return "highlight-pink"
	case StyleUnderline:
		return "highlight-underline"
	default:
		return "highlight-yellow"
	}
}

// Highlight is a persisted user highlight. A record without a Rangy is a
// legacy highlight that still stores the surrounding text instead of offsets.
type Highlight struct {
	ID           string         `yaml:"id" json:"id"`
	BookID       string         `yaml:"book_id" json:"book_id"`
	ChapterIndex int            `yaml:"chapter" json:"chapter"`
	Content      string         `yaml:"content" json:"content"`
	ContentPre   string         `yaml:"content_pre,omitempty" json:"content_pre,omitempty"`
	ContentPost  string         `yaml:"content_post,omitempty" json:"content_post,omitempty"`
	Rangy        string         `yaml:"rangy,omitempty" json:"rangy,omitempty"`
	Style        HighlightStyle `yaml:"style" json:"style"`
	Note         string         `yaml:"note,omitempty" json:"note,omitempty"`
	ServerID     int64          `yaml:"server_id,omitempty" json:"server_id,omitempty"`
	Synced       bool           `yaml:"synced,omitempty" json:"synced,omitempty"`
	Deleted      bool           `yaml:"-" json:"deleted"`
	CreatedAt    time.Time      `yaml:"created_at,omitempty" json:"created_at"`
	UpdatedAt    time.Time      `yaml:"-" json:"updated_at"`
}

// IsLegacy reports whether the highlight still needs migration to an anchor.
func (h *Highlight) IsLegacy() bool {
	return h.Rangy == ""
}

// GlobalConfig is the user-wide configuration at ~/.config/folioseek/config.yaml.
type GlobalConfig struct {
	Version    int           `yaml:"version"`
	LibraryDir string        `yaml:"library_dir"`
	Search     SearchConfig  `yaml:"search"`
	Index      IndexConfig   `yaml:"index"`
	Logging    LoggingConfig `yaml:"logging"`
	Metrics    MetricsConfig `yaml:"metrics"`
}

// SearchConfig tunes the incremental search engine.
type SearchConfig struct {
	BatchSize        int  `yaml:"batch_size"`
	MinResults       int  `yaml:"min_results"`
	SnippetRadius    int  `yaml:"snippet_radius"`
	SnippetMaxLength int  `yaml:"snippet_max_length"`
	Workers          int  `yaml:"workers"`
	UseIndex         bool `yaml:"use_index"`
}

// IndexConfig controls how chapters are chunked into the full-text index.
type IndexConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// LoggingConfig specifies logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig toggles metric collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultSearchConfig returns the search settings used by the reader.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BatchSize:        8,
		MinResults:       20,
		SnippetRadius:    40,
		SnippetMaxLength: 80,
		Workers:          1,
		UseIndex:         true,
	}
}

// DefaultGlobalConfig returns a new GlobalConfig with sensible defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version:    1,
		LibraryDir: "~/.local/share/folioseek",
		Search:     DefaultSearchConfig(),
		Index: IndexConfig{
			ChunkSize: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
