// Package views provides TUI view components for the folioseek application.
package views

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/azyu/folioseek/internal/search"
	"github.com/azyu/folioseek/internal/tui/styles"
	"github.com/azyu/folioseek/pkg/types"
)

// LoadMoreThreshold is the number of rows from the end of the list at which
// more results are requested.
const LoadMoreThreshold = 10

const cut = "…"

// Row is one line of the result list: a section title or a result.
type Row struct {
	ChapterIndex int
	Title        string
	// Result is nil for section title rows.
	Result *types.SearchResult
}

// IsSection reports whether the row is a section title.
func (r Row) IsSection() bool {
	return r.Result == nil
}

// ResultList is a scrollable list of search results grouped by chapter.
type ResultList struct {
	rows   []Row
	count  int
	cursor int
	offset int
	width  int
	height int
}

// NewResultList creates an empty list.
func NewResultList() ResultList {
	return ResultList{width: 80, height: 10}
}

// SetSize sets the list dimensions in cells.
func (l *ResultList) SetSize(width, height int) {
	l.width = max(1, width)
	l.height = max(1, height)
	l.scroll()
}

// SetSections replaces the rows. The cursor stays on the same row index
// as long as it exists.
func (l *ResultList) SetSections(sections []types.SectionResult) {
	l.rows = l.rows[:0]
	l.count = 0
	for _, sec := range sections {
		l.rows = append(l.rows, Row{ChapterIndex: sec.ChapterIndex, Title: sec.Title})
		for i := range sec.Results {
			l.rows = append(l.rows, Row{
				ChapterIndex: sec.ChapterIndex,
				Title:        sec.Title,
				Result:       &sec.Results[i],
			})
			l.count++
		}
	}
	if l.cursor >= len(l.rows) {
		l.cursor = max(0, len(l.rows)-1)
	}
	l.scroll()
}

// Reset empties the list.
func (l *ResultList) Reset() {
	l.rows = nil
	l.count = 0
	l.cursor = 0
	l.offset = 0
}

// Len returns the number of rows.
func (l ResultList) Len() int {
	return len(l.rows)
}

// Count returns the number of result rows.
func (l ResultList) Count() int {
	return l.count
}

// Cursor returns the selected row index.
func (l ResultList) Cursor() int {
	return l.cursor
}

// Selected returns the selected row.
func (l ResultList) Selected() (Row, bool) {
	if l.cursor < 0 || l.cursor >= len(l.rows) {
		return Row{}, false
	}
	return l.rows[l.cursor], true
}

// Move moves the cursor by delta rows, clamped to the list.
func (l *ResultList) Move(delta int) {
	if len(l.rows) == 0 {
		return
	}
	l.cursor = min(max(0, l.cursor+delta), len(l.rows)-1)
	l.scroll()
}

// PageSize returns the number of rows shown at once.
func (l ResultList) PageSize() int {
	return l.height
}

// NearEnd reports whether the last visible row is within
// LoadMoreThreshold rows of the end of the list.
func (l ResultList) NearEnd() bool {
	if len(l.rows) == 0 {
		return false
	}
	lastVisible := min(len(l.rows), l.offset+l.height) - 1
	return lastVisible >= len(l.rows)-LoadMoreThreshold
}

func (l *ResultList) scroll() {
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.height {
		l.offset = l.cursor - l.height + 1
	}
	l.offset = max(0, min(l.offset, len(l.rows)-l.height))
}

// View renders the visible rows.
func (l ResultList) View() string {
	var sb strings.Builder
	end := min(len(l.rows), l.offset+l.height)
	for i := l.offset; i < end; i++ {
		row := l.rows[i]
		if row.IsSection() {
			sb.WriteString(styles.SectionTitle.Render(truncate(row.Title, l.width)))
		} else {
			sb.WriteString(l.renderResult(*row.Result, i == l.cursor))
		}
		if i < end-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (l ResultList) renderResult(r types.SearchResult, selected bool) string {
	marker := "  "
	if selected {
		marker = styles.SelectedSnippet.Render("> ")
	}
	ex := search.Extract{Snippet: r.Snippet, Highlight: r.Highlight}.Decorate()
	pre, match, post := FitSnippet(ex.Snippet, ex.Highlight, l.width-2)

	text := styles.Snippet
	if selected {
		text = styles.SelectedSnippet
	}
	return marker + text.Render(pre) + styles.Match.Render(match) + text.Render(post)
}

// FitSnippet splits a snippet around its highlight and trims both sides so
// that the result fits into width cells with the highlight visible.
func FitSnippet(snippet string, hl types.MatchSpan, width int) (pre, match, post string) {
	runes := []rune(snippet)
	start := min(max(0, hl.Start), len(runes))
	end := min(max(start, hl.End()), len(runes))
	pre, match, post = string(runes[:start]), string(runes[start:end]), string(runes[end:])

	if width <= 0 {
		return "", "", ""
	}
	mw := runewidth.StringWidth(match)
	if mw >= width {
		return "", truncate(match, width), ""
	}

	rest := width - mw
	preBudget := rest - min(runewidth.StringWidth(post), rest/2)
	pre = truncateLeft(pre, preBudget)
	post = truncate(post, rest-runewidth.StringWidth(pre))
	return pre, match, post
}

// truncate cuts s to at most width cells, marking the cut.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 0 {
		return ""
	}
	limit := width - runewidth.StringWidth(cut)
	var sb strings.Builder
	w := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > limit {
			break
		}
		sb.WriteRune(r)
		w += rw
	}
	return sb.String() + cut
}

// truncateLeft keeps the last width cells of s, marking the cut.
func truncateLeft(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	limit := width - runewidth.StringWidth(cut)
	w := 0
	i := len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if w+rw > limit {
			break
		}
		w += rw
		i--
	}
	return cut + string(runes[i:])
}

// Footer returns the result count line.
func Footer(count int) string {
	if count == 1 {
		return "Found 1 result"
	}
	return fmt.Sprintf("Found %d results", count)
}
