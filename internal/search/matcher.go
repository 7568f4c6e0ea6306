package search

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/azyu/folioseek/pkg/types"
)

// Matcher finds literal, case-insensitive occurrences of a search term.
type Matcher struct {
	term string
	re   *regexp.Regexp
}

// NewMatcher builds a matcher for term. The term is escaped so that it is
// always matched literally. An empty term or a pattern that fails to compile
// yields ErrEngineUnavailable; a matcher is never built that would match
// every position.
func NewMatcher(term string) (*Matcher, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: empty search term", ErrEngineUnavailable)
	}
	return compileMatcher(term, "(?i)"+regexp.QuoteMeta(term))
}

func compileMatcher(term, pattern string) (*Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if re.MatchString("") {
		return nil, fmt.Errorf("%w: pattern %q matches empty text", ErrEngineUnavailable, pattern)
	}
	return &Matcher{term: term, re: re}, nil
}

// Term returns the unescaped term the matcher was built for.
func (m *Matcher) Term() string {
	return m.term
}

// Find returns all non-overlapping matches in text, in document order.
// Offsets are character offsets. Returns an empty slice when nothing matches.
func (m *Matcher) Find(text string) []types.MatchSpan {
	locs := m.re.FindAllStringIndex(text, -1)
	spans := make([]types.MatchSpan, 0, len(locs))
	if len(locs) == 0 {
		return spans
	}

	// Walk the text once, translating byte offsets into rune offsets.
	bytePos, runePos := 0, 0
	advance := func(to int) int {
		runePos += utf8.RuneCountInString(text[bytePos:to])
		bytePos = to
		return runePos
	}
	for _, loc := range locs {
		start := advance(loc[0])
		end := advance(loc[1])
		spans = append(spans, types.MatchSpan{Start: start, Length: end - start})
	}
	return spans
}
