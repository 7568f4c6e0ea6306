package views

import (
	"fmt"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/folioseek/pkg/types"
)

func sections(counts ...int) []types.SectionResult {
	var out []types.SectionResult
	for ch, n := range counts {
		sec := types.SectionResult{ChapterIndex: ch, Title: fmt.Sprintf("Chapter %d", ch+1)}
		for i := 0; i < n; i++ {
			sec.Results = append(sec.Results, types.SearchResult{
				ChapterIndex: ch,
				Occurrence:   i + 1,
				Snippet:      "a needle in a haystack",
				Highlight:    types.MatchSpan{Start: 2, Length: 6},
			})
		}
		out = append(out, sec)
	}
	return out
}

func TestResultList(t *testing.T) {
	t.Run("flattens sections into rows", func(t *testing.T) {
		l := NewResultList()
		l.SetSections(sections(2, 1))

		assert.Equal(t, 5, l.Len())
		assert.Equal(t, 3, l.Count())

		row, ok := l.Selected()
		require.True(t, ok)
		assert.True(t, row.IsSection())
		assert.Equal(t, "Chapter 1", row.Title)
	})

	t.Run("clamps cursor", func(t *testing.T) {
		l := NewResultList()
		l.SetSections(sections(3))

		l.Move(-5)
		assert.Equal(t, 0, l.Cursor())
		l.Move(100)
		assert.Equal(t, 3, l.Cursor())

		l.SetSections(sections(1))
		assert.Equal(t, 1, l.Cursor())
	})

	t.Run("near end uses the last visible row", func(t *testing.T) {
		l := NewResultList()
		l.SetSize(80, 5)
		l.SetSections(sections(30))

		assert.False(t, l.NearEnd())
		l.Move(20)
		assert.False(t, l.NearEnd(), "row 20 of 31 is 11 rows from the end")
		l.Move(1)
		assert.True(t, l.NearEnd())
	})

	t.Run("empty list is never near end", func(t *testing.T) {
		l := NewResultList()
		assert.False(t, l.NearEnd())
		_, ok := l.Selected()
		assert.False(t, ok)
	})

	t.Run("view renders only visible rows", func(t *testing.T) {
		l := NewResultList()
		l.SetSize(80, 2)
		l.SetSections(sections(3))

		view := l.View()
		assert.Contains(t, view, "Chapter 1")
		assert.Contains(t, view, "needle")
		assert.Equal(t, 2, len(splitLines(view)))
	})

	t.Run("reset empties the list", func(t *testing.T) {
		l := NewResultList()
		l.SetSections(sections(3))
		l.Move(2)
		l.Reset()

		assert.Equal(t, 0, l.Len())
		assert.Equal(t, 0, l.Cursor())
	})
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}

func TestFitSnippet(t *testing.T) {
	t.Run("keeps a snippet that fits", func(t *testing.T) {
		pre, match, post := FitSnippet("the quick fox", types.MatchSpan{Start: 4, Length: 5}, 40)

		assert.Equal(t, "the ", pre)
		assert.Equal(t, "quick", match)
		assert.Equal(t, " fox", post)
	})

	t.Run("trims both sides around the match", func(t *testing.T) {
		snippet := "aaaaaaaaaaaaaaaaaaaa MATCH bbbbbbbbbbbbbbbbbbbb"
		pre, match, post := FitSnippet(snippet, types.MatchSpan{Start: 21, Length: 5}, 21)

		assert.Equal(t, "MATCH", match)
		assert.LessOrEqual(t, runewidth.StringWidth(pre+match+post), 21)
		assert.Contains(t, pre, "…")
		assert.Contains(t, post, "…")
	})

	t.Run("counts wide characters by cell width", func(t *testing.T) {
		snippet := "日本語の文章で検索語を探す"
		pre, match, post := FitSnippet(snippet, types.MatchSpan{Start: 7, Length: 3}, 12)

		assert.Equal(t, "検索語", match)
		assert.LessOrEqual(t, runewidth.StringWidth(pre+match+post), 12)
	})

	t.Run("truncates an oversized match", func(t *testing.T) {
		pre, match, post := FitSnippet("abcdefghij", types.MatchSpan{Start: 0, Length: 10}, 5)

		assert.Empty(t, pre)
		assert.Empty(t, post)
		assert.Equal(t, "abcd…", match)
	})

	t.Run("clamps out of range highlights", func(t *testing.T) {
		pre, match, post := FitSnippet("abc", types.MatchSpan{Start: 2, Length: 10}, 10)

		assert.Equal(t, "ab", pre)
		assert.Equal(t, "c", match)
		assert.Empty(t, post)
	})
}

func TestFooter(t *testing.T) {
	assert.Equal(t, "Found 0 results", Footer(0))
	assert.Equal(t, "Found 1 result", Footer(1))
	assert.Equal(t, "Found 42 results", Footer(42))
}
