package search

import (
	"github.com/azyu/folioseek/pkg/types"
)

// Default snippet window settings.
const (
	DefaultSnippetRadius    = 40
	DefaultSnippetMaxLength = 80
)

const ellipsis = "..."

// Extractor cuts a bounded, word-trimmed snippet around a match.
type Extractor struct {
	// Radius is the number of characters kept before the match.
	Radius int
	// MaxLength caps the snippet window before trimming.
	MaxLength int
}

// Extract is a snippet with the position of the match inside it.
type Extract struct {
	Snippet   string
	Highlight types.MatchSpan
}

// Empty reports whether the snippet should be discarded.
func (e Extract) Empty() bool {
	return e.Snippet == ""
}

// NewExtractor returns an extractor, substituting defaults for non-positive values.
func NewExtractor(radius, maxLength int) Extractor {
	if radius <= 0 {
		radius = DefaultSnippetRadius
	}
	if maxLength <= 0 {
		maxLength = DefaultSnippetMaxLength
	}
	return Extractor{Radius: radius, MaxLength: maxLength}
}

// Extract builds the snippet for span inside fullText.
func (x Extractor) Extract(span types.MatchSpan, fullText string) Extract {
	return x.ExtractRunes(span, []rune(fullText))
}

// ExtractRunes is Extract over text that is already split into runes.
func (x Extractor) ExtractRunes(span types.MatchSpan, text []rune) Extract {
	if span.Start < 0 || span.Start >= len(text) || span.Length <= 0 {
		return Extract{}
	}

	windowStart := max(0, span.Start-x.Radius)
	windowLength := min(len(text)-windowStart, x.MaxLength)
	window := text[windowStart : windowStart+windowLength]

	hl := types.MatchSpan{Start: span.Start - windowStart, Length: span.Length}
	if hl.Start >= len(window) {
		return Extract{}
	}
	if hl.End() > len(window) {
		hl.Length = len(window) - hl.Start
	}

	if span.Start == 0 {
		if idx := lastSpace(window); idx >= hl.End() {
			window = window[:idx]
		}
		return newExtract(window, hl)
	}

	if idx := firstSpace(window); idx >= 0 && idx+1 <= hl.Start {
		window = window[idx+1:]
		hl.Start -= idx + 1
	}
	if idx := lastSpace(window); idx >= hl.End() {
		window = window[:idx]
	}
	return newExtract(window, hl)
}

func newExtract(window []rune, hl types.MatchSpan) Extract {
	if len(window) == 0 {
		return Extract{}
	}
	return Extract{Snippet: string(window), Highlight: hl}
}

// Decorate wraps the snippet in ellipses for display, shifting the highlight.
func (e Extract) Decorate() Extract {
	if e.Empty() {
		return e
	}
	return Extract{
		Snippet: ellipsis + e.Snippet + " " + ellipsis,
		Highlight: types.MatchSpan{
			Start:  e.Highlight.Start + len(ellipsis),
			Length: e.Highlight.Length,
		},
	}
}

func firstSpace(r []rune) int {
	for i, c := range r {
		if c == ' ' {
			return i
		}
	}
	return -1
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}
