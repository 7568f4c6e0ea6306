package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/folioseek/internal/search"
	"github.com/azyu/folioseek/pkg/types"
)

// ============================================================================
// Model Creation Tests
// ============================================================================

func TestNew(t *testing.T) {
	t.Run("creates idle model", func(t *testing.T) {
		m := New("Book", &fakeSearcher{}, NewUpdateStream())

		assert.NotNil(t, m)
		assert.Equal(t, search.StateIdle, m.state)
		assert.False(t, m.ready)
		assert.Empty(t, m.query)
		assert.Equal(t, 0, m.list.Len())
	})

	t.Run("initializes input", func(t *testing.T) {
		m := New("Book", &fakeSearcher{}, NewUpdateStream())

		assert.True(t, m.input.Focused())
		assert.Equal(t, 200, m.input.CharLimit)
		assert.Contains(t, m.input.Placeholder, "Search")
	})
}

func TestInit(t *testing.T) {
	m := New("Book", &fakeSearcher{}, NewUpdateStream())
	cmd := m.Init()

	assert.NotNil(t, cmd, "Init should return a command")
}

// ============================================================================
// Window Size Tests
// ============================================================================

func TestWindowSizeMsg(t *testing.T) {
	t.Run("sets ready on first window size", func(t *testing.T) {
		m := New("Book", &fakeSearcher{}, NewUpdateStream())
		assert.False(t, m.ready)
		assert.Equal(t, "Initializing...", m.View())

		m = sendWindowSize(m, 80, 24)

		assert.True(t, m.ready)
		assert.Equal(t, 80, m.width)
		assert.Equal(t, 24, m.height)
		assert.Equal(t, 24-chromeHeight, m.list.PageSize())
	})

	t.Run("updates dimensions on subsequent resize", func(t *testing.T) {
		m, _ := newTestModel(t)

		m = sendWindowSize(m, 120, 40)

		assert.Equal(t, 120, m.width)
		assert.Equal(t, 40, m.height)
	})
}

// ============================================================================
// Query Submission Tests
// ============================================================================

func TestTyping(t *testing.T) {
	t.Run("debounces typed queries", func(t *testing.T) {
		m, fake := newTestModel(t)

		m = sendRunesMsg(m, "fox")
		assert.Equal(t, "fox", m.input.Value())
		assert.Empty(t, fake.submits, "typing alone should not submit")

		model, _ := m.Update(debounceMsg{seq: m.seq})
		m = model.(*Model)

		assert.Equal(t, []string{"fox"}, fake.submits)
		assert.Equal(t, "fox", m.query)
		assert.Equal(t, search.StateRunning, m.state)
	})

	t.Run("ignores stale debounce ticks", func(t *testing.T) {
		m, fake := newTestModel(t)

		m = sendRunesMsg(m, "fox")
		model, _ := m.Update(debounceMsg{seq: m.seq - 1})
		m = model.(*Model)

		assert.Empty(t, fake.submits)
		assert.Empty(t, m.query)
	})

	t.Run("enter submits immediately", func(t *testing.T) {
		m, fake := newTestModel(t)

		m, cmd := typeAndSubmit(m, "  fox ")

		assert.Equal(t, []string{"fox"}, fake.submits)
		assert.NotNil(t, cmd)

		// The pending debounce tick is now stale.
		model, _ := m.Update(debounceMsg{seq: m.seq - 1})
		m = model.(*Model)
		assert.Len(t, fake.submits, 1)
	})

	t.Run("same query is not resubmitted", func(t *testing.T) {
		m, fake := newTestModel(t)

		m, _ = typeAndSubmit(m, "fox")
		model, _ := m.Update(debounceMsg{seq: m.seq})
		m = model.(*Model)

		assert.Equal(t, []string{"fox"}, fake.submits)
	})
}

func TestHandleKeyMsg_Esc(t *testing.T) {
	t.Run("clears a non-empty query", func(t *testing.T) {
		m, fake := newTestModel(t)
		m, _ = typeAndSubmit(m, "fox")
		m = sendUpdate(m, search.Update{
			Epoch: 1, Query: "fox", State: search.StateCompleted,
			Sections: []types.SectionResult{makeSection(0, 2)}, Count: 2,
		})

		model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		m = model.(*Model)

		assert.False(t, isQuit(cmd))
		assert.Empty(t, m.input.Value())
		assert.Empty(t, m.query)
		assert.Equal(t, 1, fake.clears)
		assert.Equal(t, 0, m.list.Len())
		assert.Equal(t, search.StateIdle, m.state)
	})

	t.Run("quits on empty input", func(t *testing.T) {
		m, _ := newTestModel(t)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})

		assert.True(t, isQuit(cmd))
	})
}

func TestHandleKeyMsg_CtrlC(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.True(t, isQuit(cmd))
}

// ============================================================================
// Session Update Tests
// ============================================================================

func TestSearchUpdateMsg(t *testing.T) {
	t.Run("renders sections and footer", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, _ = typeAndSubmit(m, "fox")

		m = sendUpdate(m, search.Update{
			Epoch: 1, Query: "fox", State: search.StateCompleted,
			Sections: []types.SectionResult{makeSection(0, 1), makeSection(3, 1)},
			Count:    2,
		})

		assert.Equal(t, search.StateCompleted, m.state)
		assert.Equal(t, 4, m.list.Len())
		view := m.View()
		assert.Contains(t, view, "Chapter 1")
		assert.Contains(t, view, "Chapter 4")
		assert.Contains(t, view, "fox")
		assert.Contains(t, view, "Found 2 results")
	})

	t.Run("ignores updates from an older epoch", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, _ = typeAndSubmit(m, "fox")

		m = sendUpdate(m, search.Update{
			Epoch: 5, Query: "fox", State: search.StateRunning,
			Sections: []types.SectionResult{makeSection(0, 1)}, Count: 1,
		})
		m = sendUpdate(m, search.Update{
			Epoch: 4, Query: "fo", State: search.StateCompleted,
			Sections: []types.SectionResult{makeSection(0, 3)}, Count: 3,
		})

		assert.Equal(t, uint64(5), m.lastEpoch)
		assert.Equal(t, 1, m.count)
		assert.Equal(t, search.StateRunning, m.state)
	})

	t.Run("shows engine errors", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, _ = typeAndSubmit(m, "fox")

		m = sendUpdate(m, search.Update{
			Epoch: 1, Query: "fox", State: search.StateCompleted,
			Err: search.ErrEngineUnavailable,
		})

		assert.Contains(t, m.View(), "search engine unavailable")
		assert.NotContains(t, m.View(), "No matches")
	})

	t.Run("reports no matches", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, _ = typeAndSubmit(m, "zebra")

		m = sendUpdate(m, search.Update{Epoch: 1, Query: "zebra", State: search.StateCompleted})

		view := m.View()
		assert.Contains(t, view, "No matches")
		assert.Contains(t, view, "Found 0 results")
	})
}

func TestLoadMore(t *testing.T) {
	t.Run("loads more when paused near the end", func(t *testing.T) {
		m, fake := newTestModel(t)
		m, _ = typeAndSubmit(m, "fox")

		m = sendUpdate(m, search.Update{
			Epoch: 1, Query: "fox", State: search.StatePaused,
			Sections: []types.SectionResult{makeSection(0, 20)}, Count: 20,
		})

		assert.Equal(t, 1, fake.loadMore)
		assert.Equal(t, search.StateRunning, m.state)
	})

	t.Run("waits until scrolled within the threshold", func(t *testing.T) {
		m, fake := newTestModel(t)
		m, _ = typeAndSubmit(m, "fox")

		m = sendUpdate(m, search.Update{
			Epoch: 1, Query: "fox", State: search.StatePaused,
			Sections: []types.SectionResult{makeSection(0, 40)}, Count: 40,
		})
		assert.Equal(t, 0, fake.loadMore)
		assert.Equal(t, search.StatePaused, m.state)
		assert.Contains(t, m.View(), "scroll for more")

		m = sendKeyMsg(m, tea.KeyPgDown)
		assert.Equal(t, 0, fake.loadMore)

		m = sendKeyMsg(m, tea.KeyPgDown)
		assert.Equal(t, 1, fake.loadMore)
		assert.Equal(t, search.StateRunning, m.state)
	})

	t.Run("does nothing when completed", func(t *testing.T) {
		m, fake := newTestModel(t)
		m, _ = typeAndSubmit(m, "fox")

		m = sendUpdate(m, search.Update{
			Epoch: 1, Query: "fox", State: search.StateCompleted,
			Sections: []types.SectionResult{makeSection(0, 5)}, Count: 5,
		})
		m = sendKeyMsg(m, tea.KeyDown)

		assert.Equal(t, 0, fake.loadMore)
	})
}

func TestPickResult(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = typeAndSubmit(m, "fox")
	m = sendUpdate(m, search.Update{
		Epoch: 1, Query: "fox", State: search.StateCompleted,
		Sections: []types.SectionResult{makeSection(2, 2)}, Count: 2,
	})

	// Enter on the section title does not pick anything.
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(*Model)
	assert.False(t, isQuit(cmd))

	m = sendKeyMsg(m, tea.KeyDown)
	m = sendKeyMsg(m, tea.KeyDown)
	model, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(*Model)

	require.True(t, isQuit(cmd))
	row, ok := m.Chosen()
	require.True(t, ok)
	assert.Equal(t, 2, row.ChapterIndex)
	assert.Equal(t, 2, row.Result.Occurrence)
}

// ============================================================================
// Update Stream Tests
// ============================================================================

func TestUpdateStream(t *testing.T) {
	t.Run("keeps only the latest pending update", func(t *testing.T) {
		s := NewUpdateStream()
		defer s.Close()

		s.Send(search.Update{Epoch: 1})
		s.Send(search.Update{Epoch: 2})
		s.Send(search.Update{Epoch: 3})

		msg := s.Wait()()
		u, ok := msg.(SearchUpdateMsg)
		require.True(t, ok)
		assert.Equal(t, uint64(3), u.Update.Epoch)
	})

	t.Run("wait returns nil after close", func(t *testing.T) {
		s := NewUpdateStream()
		s.Close()
		s.Close()

		assert.Nil(t, s.Wait()())
		s.Send(search.Update{Epoch: 1})
	})
}
