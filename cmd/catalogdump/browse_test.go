package main

import (
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemacore/pkg/primitives"
)

func press(t *testing.T, b browser, keys ...string) browser {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		model, cmd := b.Update(msg)
		b = model.(browser)
		if cmd != nil {
			if loaded, ok := cmd().(viewLoadedMsg); ok {
				model, _ = b.Update(loaded)
				b = model.(browser)
			}
		}
	}
	return b
}

func TestBrowser_MenuNavigation(t *testing.T) {
	m, _ := newCatalog(t)
	b := newBrowser(m, primitives.InvalidObjectID)

	b = press(t, b, "up", "down", "down", "down", "down", "down", "down")
	assert.True(t, b.inMenu)
	assert.Equal(t, len(menu)-1, b.cursor)
	assert.Contains(t, b.View(), "Logical log")
}

func TestBrowser_OpenAndLeaveView(t *testing.T) {
	m, _ := newCatalog(t)
	b := newBrowser(m, primitives.InvalidObjectID)

	b = press(t, b, "down", "enter")
	require.Nil(t, b.err)
	assert.False(t, b.inMenu)
	assert.Equal(t, viewAreas.String(), b.current.title)
	assert.Len(t, b.current.rows, 1)
	assert.Contains(t, b.View(), "main")

	b = press(t, b, "esc")
	assert.True(t, b.inMenu)
	assert.Equal(t, 1, b.cursor, "back returns to the view's menu entry")
}

func TestBrowser_LoadError(t *testing.T) {
	m, _ := newCatalog(t)
	b := newBrowser(m, 9999)

	b = press(t, b, "down", "enter")
	require.Error(t, b.err)
	assert.True(t, b.inMenu)
	assert.Contains(t, b.View(), "Error")

	b = press(t, b, "esc")
	assert.NoError(t, b.err)
}

func TestBrowser_Paging(t *testing.T) {
	b := browser{current: view{title: "Logical log", headers: []string{"#"}}}
	for i := 0; i < 45; i++ {
		b.current.rows = append(b.current.rows, []string{fmt.Sprint(i)})
	}

	b = press(t, b, "n")
	assert.Equal(t, pageSize, b.cursor)
	rows, selected := b.window()
	assert.Len(t, rows, pageSize)
	assert.Equal(t, 0, selected)

	b = press(t, b, "G")
	assert.Equal(t, 44, b.cursor)
	rows, selected = b.window()
	assert.Len(t, rows, 5)
	assert.Equal(t, 4, selected)

	b = press(t, b, "down", "p", "up")
	assert.Equal(t, 23, b.cursor)

	b = press(t, b, "g")
	assert.Zero(t, b.cursor)
}

func TestBrowser_Quit(t *testing.T) {
	b := newBrowser(nil, primitives.InvalidObjectID)
	_, cmd := b.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
