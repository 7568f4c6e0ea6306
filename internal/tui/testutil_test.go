package tui

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/azyu/folioseek/internal/search"
	"github.com/azyu/folioseek/pkg/types"
)

func init() {
	// Disable colors for consistent test output across environments
	lipgloss.SetColorProfile(termenv.Ascii)
}

// testConfig holds common test configuration values.
var testConfig = struct {
	Width   int
	Height  int
	Timeout time.Duration
}{
	Width:   80,
	Height:  24,
	Timeout: 5 * time.Second,
}

// fakeSearcher records the calls made by the view.
type fakeSearcher struct {
	submits  []string
	clears   int
	loadMore int
	canLoad  bool
}

func (f *fakeSearcher) Submit(query string) { f.submits = append(f.submits, query) }
func (f *fakeSearcher) Clear()              { f.clears++ }
func (f *fakeSearcher) LoadMore() bool {
	f.loadMore++
	return f.canLoad
}

// newTestModel creates a new TUI model for testing with default dimensions.
func newTestModel(t *testing.T) (*Model, *fakeSearcher) {
	t.Helper()

	fake := &fakeSearcher{canLoad: true}
	stream := NewUpdateStream()
	t.Cleanup(stream.Close)

	m := New("Test Book", fake, stream)
	m = sendWindowSize(m, testConfig.Width, testConfig.Height)
	return m, fake
}

// sendKeyMsg sends a key message to the model and returns the updated model.
func sendKeyMsg(m *Model, keyType tea.KeyType) *Model {
	model, _ := m.Update(tea.KeyMsg{Type: keyType})
	return model.(*Model)
}

// sendRunesMsg sends runes (typed text) to the model and returns the updated model.
func sendRunesMsg(m *Model, s string) *Model {
	for _, r := range s {
		model, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = model.(*Model)
	}
	return m
}

// sendWindowSize sends a window size message to the model.
func sendWindowSize(m *Model, width, height int) *Model {
	model, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return model.(*Model)
}

// typeAndSubmit types text and sends Enter to submit.
func typeAndSubmit(m *Model, text string) (*Model, tea.Cmd) {
	m = sendRunesMsg(m, text)
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return model.(*Model), cmd
}

// sendUpdate delivers a session update to the model.
func sendUpdate(m *Model, u search.Update) *Model {
	model, _ := m.Update(SearchUpdateMsg{Update: u})
	return model.(*Model)
}

// makeSection builds a section with n results in chapter.
func makeSection(chapter, n int) types.SectionResult {
	sec := types.SectionResult{
		ChapterIndex: chapter,
		Href:         fmt.Sprintf("ch%02d.xhtml", chapter),
		Title:        fmt.Sprintf("Chapter %d", chapter+1),
	}
	for i := 0; i < n; i++ {
		sec.Results = append(sec.Results, types.SearchResult{
			ChapterIndex: chapter,
			Occurrence:   i + 1,
			Snippet:      "the quick brown fox jumps",
			Highlight:    types.MatchSpan{Start: 16, Length: 3},
			Anchor:       fmt.Sprintf("type:textContent|%d$%d$id%d$search-result", i*10, i*10+3, i),
		})
	}
	return sec
}

// isQuit reports whether cmd produces tea.QuitMsg.
func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}
