package detail

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-autoreply/internal/keys"
	"github.com/nhle/mail-autoreply/internal/theme"
	"github.com/nhle/mail-autoreply/internal/ui/activity"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Model shows one activity row in full, including the untruncated
// status line.
type Model struct {
	row      *activity.Row
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.row == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No entry selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.row == nil {
		return ""
	}
	r := m.row

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	labelStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(12)
	wrap := lipgloss.NewStyle().Width(max(m.width-14, 20))

	field := func(label, value string) string {
		if value == "" {
			value = "-"
		}
		return lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(label), wrap.Render(value))
	}

	when := r.At.Format("2006-01-02 15:04:05")
	source := "this session"
	if r.Archived {
		source = "archive"
	}

	sections := []string{
		titleStyle.Render(r.Subject),
		theme.StatusStyle(r.Status).Render(string(r.Kind)),
		"",
		field("From", r.From),
		field("Handled", when),
		field("Status", r.Status),
		field("Message ID", r.MessageID),
		field("Thread ID", r.ThreadID),
		field("Source", source),
	}

	return strings.Join(sections, "\n")
}

// SetRow updates the row being displayed and re-renders the content.
func (m *Model) SetRow(r activity.Row) {
	m.row = &r
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.row != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
