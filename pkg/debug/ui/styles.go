// Package ui holds the styles and key bindings shared by the catalog
// inspection tools.
package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Color palette
var (
	PrimaryColor   = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7C3AED"}
	SecondaryColor = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#06B6D4"}
	SuccessColor   = lipgloss.AdaptiveColor{Light: "#02BA84", Dark: "#10B981"}
	WarningColor   = lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#F59E0B"}
	ErrorColor     = lipgloss.AdaptiveColor{Light: "#FF5F56", Dark: "#EF4444"}
	MutedColor     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#94A3B8"}
	FgColor        = lipgloss.AdaptiveColor{Light: "#1E1E2E", Dark: "#CDD6F4"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Padding(0, 1)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(PrimaryColor).
				Bold(true).
				Padding(0, 1)

	ItemStyle = lipgloss.NewStyle().
			Foreground(FgColor).
			Padding(0, 1)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(SecondaryColor).
				Bold(true).
				Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Foreground(FgColor).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			MarginTop(1).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(PrimaryColor).
			Padding(0, 1).
			MarginTop(1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true).
			Padding(1)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			Padding(0, 1)
)

// CommonKeyMap holds the bindings every viewer understands.
type CommonKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
	Quit   key.Binding
}

var CommonKeys = CommonKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "move up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "move down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter/space", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NavigationKeyMap moves through long tables a page at a time.
type NavigationKeyMap struct {
	NextPage  key.Binding
	PrevPage  key.Binding
	FirstPage key.Binding
	LastPage  key.Binding
}

var NavigationKeys = NavigationKeyMap{
	NextPage: key.NewBinding(
		key.WithKeys("n", "pgdown"),
		key.WithHelp("n/pgdn", "next page"),
	),
	PrevPage: key.NewBinding(
		key.WithKeys("p", "pgup"),
		key.WithHelp("p/pgup", "prev page"),
	),
	FirstPage: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g/home", "first row"),
	),
	LastPage: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G/end", "last row"),
	),
}

func RenderError(err error) string {
	return ErrorStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		"Error: "+err.Error(),
		"",
		"Press q to quit.",
	))
}

func RenderStatusBar(text string) string {
	return StatusBarStyle.Render(text)
}

func RenderTitle(icon, title string) string {
	return TitleStyle.Render(icon + "  " + title)
}

// RenderTable draws rows in a bordered table. selected highlights one
// data row; pass -1 for none.
func RenderTable(headers []string, rows [][]string, selected int) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row == selected:
				return SelectedItemStyle
			default:
				return CellStyle
			}
		}).
		String()
}
