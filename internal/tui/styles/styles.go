// Package styles holds the Lip Gloss styles shared by the TUI and the CLI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/azyu/folioseek/pkg/types"
)

// Palette. Adaptive colors pick the light variant on light terminals.
var (
	Ink       = lipgloss.AdaptiveColor{Light: "#1C1917", Dark: "#F5F5F4"}
	Faded     = lipgloss.AdaptiveColor{Light: "#78716C", Dark: "#A8A29E"}
	Paper     = lipgloss.AdaptiveColor{Light: "#FAFAF9", Dark: "#292524"}
	Binding   = lipgloss.Color("#B45309")
	Secondary = lipgloss.Color("#15803D")
	Alert     = lipgloss.Color("#DC2626")
	Marker    = lipgloss.Color("#FDE047")
)

var (
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Binding).
		Padding(0, 1).
		MarginBottom(1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Ink)

	InputPrompt = lipgloss.NewStyle().
			Foreground(Binding).
			Bold(true)

	StatusBar = lipgloss.NewStyle().
			Background(Paper).
			Foreground(Faded).
			Padding(0, 1)

	ErrorText   = lipgloss.NewStyle().Foreground(Alert).Bold(true)
	InfoText    = lipgloss.NewStyle().Foreground(Binding)
	SuccessText = lipgloss.NewStyle().Foreground(Secondary)
	MutedText   = lipgloss.NewStyle().Foreground(Faded)

	HelpKey  = lipgloss.NewStyle().Foreground(Binding).Bold(true)
	HelpDesc = lipgloss.NewStyle().Foreground(Faded)

	Spinner = lipgloss.NewStyle().Foreground(Binding)
)

// Search results.
var (
	SectionTitle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	Snippet = lipgloss.NewStyle().Foreground(Ink)

	SelectedSnippet = lipgloss.NewStyle().
			Foreground(Binding).
			Bold(true)

	// Match marks the matched term like a search-result highlight in the reader.
	Match = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#1C1917")).
		Background(Marker).
		Bold(true)
)

var swatches = map[types.HighlightStyle]lipgloss.Style{
	types.StyleYellow:    lipgloss.NewStyle().Foreground(lipgloss.Color("#1C1917")).Background(lipgloss.Color("#FDE047")),
	types.StyleGreen:     lipgloss.NewStyle().Foreground(lipgloss.Color("#1C1917")).Background(lipgloss.Color("#86EFAC")),
	types.StyleBlue:      lipgloss.NewStyle().Foreground(lipgloss.Color("#1C1917")).Background(lipgloss.Color("#93C5FD")),
	types.StylePink:      lipgloss.NewStyle().Foreground(lipgloss.Color("#1C1917")).Background(lipgloss.Color("#F9A8D4")),
	types.StyleUnderline: lipgloss.NewStyle().Underline(true),
}

// Swatch returns the style that renders text the way a highlight of style
// s looks in the reader.
func Swatch(s types.HighlightStyle) lipgloss.Style {
	if st, ok := swatches[s]; ok {
		return st
	}
	return swatches[types.StyleYellow]
}
