package command

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nalgeon/be"
)

func TestEnterEmitsNormalizedCommand(t *testing.T) {
	m := New(80, 20)
	for _, r := range "  RUN " {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	be.True(t, cmd != nil)
	be.Equal(t, cmd(), tea.Msg(CommandMsg("run")))
	be.Equal(t, m.input.Value(), "")
}

func TestEnterOnEmptyInputDoesNothing(t *testing.T) {
	m := New(80, 20)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	be.True(t, cmd == nil)
}

func TestViewListsCommands(t *testing.T) {
	out := New(80, 20).View()
	for _, c := range Commands {
		be.True(t, strings.Contains(out, c.Name))
	}
}
