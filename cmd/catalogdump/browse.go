package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"schemacore/pkg/debug/ui"
	"schemacore/pkg/primitives"
	"schemacore/pkg/schema"
)

const pageSize = 20

var browseKeys = ui.CommonKeys

var menu = []viewKind{viewDatabases, viewAreas, viewPrivileges, viewContents, viewLog}

type browser struct {
	mgr     *schema.Manager
	filter  primitives.ObjectID
	inMenu  bool
	cursor  int
	current view
	loading bool
	err     error
}

func newBrowser(mgr *schema.Manager, filter primitives.ObjectID) browser {
	return browser{mgr: mgr, filter: filter, inMenu: true}
}

type viewLoadedMsg struct {
	view view
	err  error
}

func loadView(mgr *schema.Manager, kind viewKind, filter primitives.ObjectID) tea.Cmd {
	return func() tea.Msg {
		var (
			v   view
			err error
		)
		switch kind {
		case viewDatabases:
			v, err = databaseView(mgr)
		case viewAreas:
			v, err = areaView(mgr, filter)
		case viewPrivileges:
			v, err = privilegeView(mgr, filter)
		case viewContents:
			v, err = contentView(mgr, filter)
		case viewLog:
			var records []schema.Record
			records, err = mgr.ReadLog()
			v = logView(records)
		}
		return viewLoadedMsg{view: v, err: err}
	}
}

func (b browser) Init() tea.Cmd { return nil }

func (b browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewLoadedMsg:
		b.loading = false
		if msg.err != nil {
			b.err = msg.err
			return b, nil
		}
		b.inMenu = false
		b.current = msg.view
		b.cursor = 0
		return b, nil

	case tea.KeyMsg:
		if key.Matches(msg, browseKeys.Quit) {
			return b, tea.Quit
		}
		if b.err != nil {
			if key.Matches(msg, browseKeys.Back) {
				b.err = nil
			}
			return b, nil
		}
		if b.inMenu {
			return b.updateMenu(msg)
		}
		return b.updateTable(msg), nil
	}
	return b, nil
}

func (b browser) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, browseKeys.Up):
		if b.cursor > 0 {
			b.cursor--
		}
	case key.Matches(msg, browseKeys.Down):
		if b.cursor < len(menu)-1 {
			b.cursor++
		}
	case key.Matches(msg, browseKeys.Select):
		if b.loading {
			return b, nil
		}
		b.loading = true
		return b, loadView(b.mgr, menu[b.cursor], b.filter)
	}
	return b, nil
}

func (b browser) updateTable(msg tea.KeyMsg) browser {
	last := max(len(b.current.rows)-1, 0)
	switch {
	case key.Matches(msg, browseKeys.Back):
		b.inMenu = true
		b.cursor = menuIndex(b.current.title)
		b.current = view{}
	case key.Matches(msg, browseKeys.Up):
		b.cursor = max(b.cursor-1, 0)
	case key.Matches(msg, browseKeys.Down):
		b.cursor = min(b.cursor+1, last)
	case key.Matches(msg, ui.NavigationKeys.NextPage):
		b.cursor = min(b.cursor+pageSize, last)
	case key.Matches(msg, ui.NavigationKeys.PrevPage):
		b.cursor = max(b.cursor-pageSize, 0)
	case key.Matches(msg, ui.NavigationKeys.FirstPage):
		b.cursor = 0
	case key.Matches(msg, ui.NavigationKeys.LastPage):
		b.cursor = last
	}
	return b
}

func menuIndex(title string) int {
	for i, k := range menu {
		if k.String() == title {
			return i
		}
	}
	return 0
}

func (b browser) View() string {
	if b.err != nil {
		return ui.RenderError(b.err)
	}

	var s strings.Builder
	s.WriteString(ui.RenderTitle("▣", "Schema Catalog") + "\n")
	if b.inMenu {
		s.WriteString(b.renderMenu())
	} else {
		s.WriteString(b.renderTable())
	}
	s.WriteString("\n" + b.renderStatusBar())
	return s.String()
}

func (b browser) renderMenu() string {
	var s strings.Builder
	s.WriteString(ui.HeaderStyle.Render(" Select a view ") + "\n\n")
	for i, k := range menu {
		if i == b.cursor {
			s.WriteString(ui.SelectedItemStyle.Render("▶ "+k.String()) + "\n")
		} else {
			s.WriteString(ui.ItemStyle.Render("  "+k.String()) + "\n")
		}
	}
	s.WriteString(ui.HelpStyle.Render("↑/↓: navigate | enter: select | q: quit"))
	return s.String()
}

// window returns the rows of the page holding the cursor and the cursor
// position within it.
func (b browser) window() ([][]string, int) {
	start := (b.cursor / pageSize) * pageSize
	end := min(start+pageSize, len(b.current.rows))
	return b.current.rows[start:end], b.cursor - start
}

func (b browser) renderTable() string {
	header := ui.HeaderStyle.Render(fmt.Sprintf(" %s (%d rows) ", b.current.title, len(b.current.rows)))
	if len(b.current.rows) == 0 {
		return header + "\n\nNothing to show.\n" + ui.HelpStyle.Render("esc: back | q: quit")
	}
	rows, selected := b.window()
	return header + "\n" +
		ui.RenderTable(b.current.headers, rows, selected) + "\n" +
		ui.HelpStyle.Render("↑/↓: navigate | n/p: page | g/G: first/last | esc: back | q: quit")
}

func (b browser) renderStatusBar() string {
	dir := b.mgr.Config().Dir
	if b.inMenu {
		if b.loading {
			return ui.RenderStatusBar(fmt.Sprintf(" Loading... | %s ", dir))
		}
		return ui.RenderStatusBar(fmt.Sprintf(" Menu | %s ", dir))
	}
	return ui.RenderStatusBar(fmt.Sprintf(" %s | %d/%d | %s ", b.current.title, b.cursor+1, len(b.current.rows), dir))
}
