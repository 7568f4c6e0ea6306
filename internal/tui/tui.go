// Package tui provides the terminal user interface using Bubble Tea.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/azyu/folioseek/internal/search"
	"github.com/azyu/folioseek/internal/tui/styles"
	"github.com/azyu/folioseek/internal/tui/views"
)

// DebounceDelay is how long typing must pause before a query is submitted.
const DebounceDelay = 250 * time.Millisecond

// chromeHeight is the number of lines taken by everything but the list.
const chromeHeight = 6

// Searcher is the search session driven by the view.
type Searcher interface {
	Submit(query string)
	Clear()
	LoadMore() bool
}

type debounceMsg struct {
	seq int
}

// Model is the search view.
type Model struct {
	title   string
	session Searcher
	stream  *UpdateStream

	width  int
	height int
	ready  bool

	input   textinput.Model
	list    views.ResultList
	spinner spinner.Model

	seq       int
	query     string
	lastEpoch uint64
	state     search.State
	count     int
	err       error

	chosen    views.Row
	hasChoice bool
}

// New creates a search view for the book titled title. Session updates
// must be delivered to stream.
func New(title string, session Searcher, stream *UpdateStream) *Model {
	ti := textinput.New()
	ti.Placeholder = "Search the book..."
	ti.Prompt = ""
	ti.CharLimit = 200
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	return &Model{
		title:   title,
		session: session,
		stream:  stream,
		input:   ti,
		list:    views.NewResultList(),
		spinner: sp,
		state:   search.StateIdle,
	}
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.stream.Wait(),
	)
}

// Chosen returns the result picked with Enter, if any.
func (m *Model) Chosen() (views.Row, bool) {
	return m.chosen, m.hasChoice
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.input.Width = max(10, msg.Width-4)
		m.list.SetSize(msg.Width, msg.Height-chromeHeight)
		return m, m.maybeLoadMore()

	case debounceMsg:
		if msg.seq == m.seq {
			return m, m.submit(m.input.Value())
		}
		return m, nil

	case SearchUpdateMsg:
		return m, tea.Batch(m.applyUpdate(msg.Update), m.stream.Wait())

	case spinner.TickMsg:
		if m.state == search.StateRunning {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.input.Value() == "" {
			return m, tea.Quit
		}
		m.input.Reset()
		m.seq++
		return m, m.submit("")

	case "up", "ctrl+p":
		m.list.Move(-1)
		return m, m.maybeLoadMore()

	case "down", "ctrl+n":
		m.list.Move(1)
		return m, m.maybeLoadMore()

	case "pgup":
		m.list.Move(-m.list.PageSize())
		return m, m.maybeLoadMore()

	case "pgdown":
		m.list.Move(m.list.PageSize())
		return m, m.maybeLoadMore()

	case "enter":
		m.seq++
		if strings.TrimSpace(m.input.Value()) == m.query && m.query != "" {
			if row, ok := m.list.Selected(); ok && !row.IsSection() {
				m.chosen, m.hasChoice = row, true
				return m, tea.Quit
			}
			return m, nil
		}
		return m, m.submit(m.input.Value())
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}
	m.seq++
	seq := m.seq
	return m, tea.Batch(cmd, tea.Tick(DebounceDelay, func(time.Time) tea.Msg {
		return debounceMsg{seq: seq}
	}))
}

// submit sends query to the session.
func (m *Model) submit(query string) tea.Cmd {
	query = strings.TrimSpace(query)
	if query == m.query {
		return nil
	}
	m.query = query
	m.err = nil

	if query == "" {
		m.session.Clear()
		m.list.Reset()
		m.count = 0
		m.state = search.StateIdle
		return nil
	}

	m.session.Submit(query)
	m.state = search.StateRunning
	return m.spinner.Tick
}

// applyUpdate renders a session update. Updates older than the last one
// seen are ignored.
func (m *Model) applyUpdate(u search.Update) tea.Cmd {
	if u.Epoch < m.lastEpoch {
		return nil
	}
	m.lastEpoch = u.Epoch
	m.state = u.State
	m.count = u.Count
	m.err = u.Err
	if u.Query == "" {
		m.list.Reset()
	} else {
		m.list.SetSections(u.Sections)
	}

	cmds := []tea.Cmd{m.maybeLoadMore()}
	if m.state == search.StateRunning {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// maybeLoadMore asks for the next batches when a paused search is scrolled
// close to its end.
func (m *Model) maybeLoadMore() tea.Cmd {
	if m.state != search.StatePaused || !m.list.NearEnd() {
		return nil
	}
	if !m.session.LoadMore() {
		return nil
	}
	m.state = search.StateRunning
	return m.spinner.Tick
}

// View renders the TUI.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sb strings.Builder

	sb.WriteString(styles.Header.Render(fmt.Sprintf("FOLIOSEEK - %s", m.title)))
	sb.WriteString("\n")

	sb.WriteString(styles.InputPrompt.Render("/ "))
	sb.WriteString(m.input.View())
	sb.WriteString("\n\n")

	if m.list.Len() > 0 {
		sb.WriteString(m.list.View())
	} else if m.query != "" && m.state == search.StateCompleted && m.err == nil {
		sb.WriteString(styles.MutedText.Render("No matches"))
	}
	sb.WriteString("\n")

	if m.err != nil {
		sb.WriteString(styles.ErrorText.Render("Error: "+m.err.Error()) + "\n")
	}

	sb.WriteString(styles.StatusBar.Render(m.status()))

	helpHint := styles.HelpKey.Render("enter") + styles.HelpDesc.Render(" pick  ") +
		styles.HelpKey.Render("esc") + styles.HelpDesc.Render(" clear/quit")
	sb.WriteString("\n")
	sb.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Right, helpHint))

	return sb.String()
}

func (m *Model) status() string {
	switch {
	case m.query == "":
		return "Type to search"
	case m.state == search.StateRunning:
		return m.spinner.View() + " Searching... " + views.Footer(m.count)
	case m.state == search.StatePaused:
		return views.Footer(m.count) + " (scroll for more)"
	default:
		return views.Footer(m.count)
	}
}
