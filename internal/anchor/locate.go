package anchor

import (
	"strings"
	"unicode"
)

// Locator finds text inside the currently displayed chapter.
type Locator interface {
	// Locate returns the range of the first case-insensitive occurrence of
	// text. When scope is non-nil the occurrence must lie inside it.
	Locate(text string, scope *Range) (Range, bool)
}

// TextLocator locates text in a chapter's extracted plain text.
// Whitespace runs in the needle match any whitespace run in the chapter,
// since snapshots and extracted text disagree on line breaks.
type TextLocator struct {
	text []rune
}

// NewTextLocator returns a locator over text.
func NewTextLocator(text string) *TextLocator {
	return &TextLocator{text: []rune(text)}
}

// Locate implements Locator.
func (l *TextLocator) Locate(text string, scope *Range) (Range, bool) {
	needle := []rune(strings.TrimSpace(text))
	if len(needle) == 0 {
		return Range{}, false
	}

	from, to := 0, len(l.text)
	if scope != nil {
		from = max(0, scope.Start)
		to = min(len(l.text), scope.End)
	}

	for i := from; i < to; i++ {
		if end, ok := l.matchAt(needle, i, to); ok {
			return Range{Start: i, End: end}, true
		}
	}
	return Range{}, false
}

// matchAt reports whether needle matches the haystack at pos without passing
// limit, and returns the exclusive end of the match.
func (l *TextLocator) matchAt(needle []rune, pos, limit int) (int, bool) {
	j := pos
	for k := 0; k < len(needle); k++ {
		if j >= limit {
			return 0, false
		}
		n := needle[k]
		if unicode.IsSpace(n) {
			if !unicode.IsSpace(l.text[j]) {
				return 0, false
			}
			for k+1 < len(needle) && unicode.IsSpace(needle[k+1]) {
				k++
			}
			for j < limit && unicode.IsSpace(l.text[j]) {
				j++
			}
			continue
		}
		if !equalFold(n, l.text[j]) {
			return 0, false
		}
		j++
	}
	return j, true
}

func equalFold(a, b rune) bool {
	if a == b {
		return true
	}
	return unicode.ToLower(a) == unicode.ToLower(b) || unicode.ToUpper(a) == unicode.ToUpper(b)
}
