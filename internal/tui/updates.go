package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/azyu/folioseek/internal/search"
)

// SearchUpdateMsg carries a session update into the Bubble Tea loop.
type SearchUpdateMsg struct {
	Update search.Update
}

// UpdateStream hands session updates to the UI. Only the latest pending
// update is kept: every update is a full snapshot, so an undelivered older
// one can be dropped.
type UpdateStream struct {
	updates chan search.Update
	done    chan struct{}
	once    sync.Once
}

// NewUpdateStream creates an open stream.
func NewUpdateStream() *UpdateStream {
	return &UpdateStream{
		updates: make(chan search.Update, 1),
		done:    make(chan struct{}),
	}
}

// Send delivers u without blocking. It is meant to be used as the
// session's change handler.
func (s *UpdateStream) Send(u search.Update) {
	for {
		select {
		case <-s.done:
			return
		case s.updates <- u:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// Close stops the stream; pending waits return nil.
func (s *UpdateStream) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Wait returns a command that blocks until the next update.
func (s *UpdateStream) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-s.updates:
			return SearchUpdateMsg{Update: u}
		case <-s.done:
			return nil
		}
	}
}
