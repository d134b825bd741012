package activity

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/keys"
	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/store"
	"github.com/nhle/mail-autoreply/internal/theme"
)

// archiveLimit caps how many archived records the view loads.
const archiveLimit = 500

// Mode selects what the list shows.
type Mode int

const (
	ModeSession Mode = iota
	ModeArchive
)

// ArchiveLoadedMsg is sent when archived records have been loaded.
type ArchiveLoadedMsg struct {
	Activities []model.Activity
	Err        error
}

// SelectedRowMsg is sent when the user opens a row.
type SelectedRowMsg struct {
	Row Row
}

// Model is the activity list: the session log or the archive.
type Model struct {
	list        list.Model
	store       store.Store
	keys        *keys.KeyMap
	mode        Mode
	session     []autoreply.LogEntry
	archive     []model.Activity
	archiveErr  error
	kindFilters map[model.ActivityKind]bool
	width       int
	height      int
}

// New creates the activity view. s may be nil, in which case the archive
// mode is unavailable.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, RowDelegate{width: width}, width, height)
	l.Title = "Activity"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:        l,
		store:       s,
		keys:        k,
		kindFilters: make(map[model.ActivityKind]bool),
		width:       width,
		height:      height,
	}
}

// Init returns nil; the session log is pushed in with SetSession.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the activity view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ArchiveLoadedMsg:
		m.archive = msg.Activities
		m.archiveErr = msg.Err
		if m.mode == ModeArchive {
			return m, m.refresh()
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Select):
			if r, ok := m.list.SelectedItem().(Row); ok {
				return m, func() tea.Msg { return SelectedRowMsg{Row: r} }
			}
			return m, nil
		case key.Matches(msg, m.keys.FilterReplied):
			m.toggleKindFilter(model.ActivityReplied)
			return m, m.refresh()
		case key.Matches(msg, m.keys.FilterSkipped):
			m.toggleKindFilter(model.ActivitySkipped)
			return m, m.refresh()
		case key.Matches(msg, m.keys.FilterError):
			m.toggleKindFilter(model.ActivityError)
			return m, m.refresh()
		}
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SetSession replaces the session log shown in session mode.
func (m *Model) SetSession(entries []autoreply.LogEntry) tea.Cmd {
	m.session = entries
	if m.mode == ModeSession {
		return m.refresh()
	}
	return nil
}

// Mode returns the current mode.
func (m Model) Mode() Mode {
	return m.mode
}

// ToggleMode switches between the session log and the archive, loading
// the archive when entering it.
func (m *Model) ToggleMode() tea.Cmd {
	if m.mode == ModeArchive || m.store == nil {
		m.mode = ModeSession
		m.list.Title = "Activity"
		return m.refresh()
	}
	m.mode = ModeArchive
	m.list.Title = "Archive"
	return tea.Batch(m.refresh(), m.LoadArchive())
}

// LoadArchive returns a tea.Cmd that queries the archive.
func (m Model) LoadArchive() tea.Cmd {
	s := m.store
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		acts, err := s.GetActivities(context.Background(), store.ActivityFilter{Limit: archiveLimit})
		return ArchiveLoadedMsg{Activities: acts, Err: err}
	}
}

func (m *Model) refresh() tea.Cmd {
	var rows []Row
	if m.mode == ModeArchive {
		for _, a := range m.archive {
			rows = append(rows, FromActivity(a))
		}
	} else {
		for _, e := range m.session {
			rows = append(rows, FromEntry(e))
		}
	}
	rows = filterRows(rows, m.kindFilters)

	items := make([]list.Item, len(rows))
	for i, r := range rows {
		items[i] = r
	}
	return m.list.SetItems(items)
}

// filterRows keeps rows whose kind is enabled; no enabled kinds keeps all.
func filterRows(rows []Row, kinds map[model.ActivityKind]bool) []Row {
	if len(kinds) == 0 {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if kinds[r.Kind] {
			out = append(out, r)
		}
	}
	return out
}

func (m *Model) toggleKindFilter(k model.ActivityKind) {
	if m.kindFilters[k] {
		delete(m.kindFilters, k)
	} else {
		m.kindFilters[k] = true
	}
}

// FilterSummary describes the active kind filters, or "" when none.
func (m Model) FilterSummary() string {
	if len(m.kindFilters) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.kindFilters))
	for k := range m.kindFilters {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return "showing: " + strings.Join(names, ", ")
}

// View renders the activity list.
func (m Model) View() string {
	if m.mode == ModeArchive && m.archiveErr != nil {
		return m.renderMessage("Archive unavailable:\n" + m.archiveErr.Error())
	}
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when nothing has been handled yet.
func (m Model) renderEmptyState() string {
	switch {
	case len(m.kindFilters) > 0:
		return m.renderMessage("No matching entries.\nPress 1/2/3 to adjust the filters.")
	case m.mode == ModeArchive:
		return m.renderMessage("The archive is empty.")
	default:
		return m.renderMessage("No messages handled yet.\n\n" +
			"Press s to start the loop or r to check now.")
	}
}

func (m Model) renderMessage(text string) string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(text)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
	m.list.SetDelegate(RowDelegate{width: width})
}
