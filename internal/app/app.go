package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/keys"
	"github.com/nhle/mail-autoreply/internal/logging"
	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/notify"
	"github.com/nhle/mail-autoreply/internal/store"
	appsync "github.com/nhle/mail-autoreply/internal/sync"
	"github.com/nhle/mail-autoreply/internal/theme"
	"github.com/nhle/mail-autoreply/internal/ui"
	"github.com/nhle/mail-autoreply/internal/ui/activity"
	"github.com/nhle/mail-autoreply/internal/ui/command"
	"github.com/nhle/mail-autoreply/internal/ui/detail"
	helpview "github.com/nhle/mail-autoreply/internal/ui/help"
	"github.com/nhle/mail-autoreply/internal/ui/settings"
)

const notifyTimeout = 15 * time.Second

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewSettings
	ViewHelp
	ViewCommand
)

// ConfigReloadedMsg is sent when the config file changes on disk.
type ConfigReloadedMsg struct {
	Config *model.AppConfig
	Err    error
}

// tickMsg drives the countdown to the next run.
type tickMsg time.Time

// notifyResultMsg carries the outcome of a test notification.
type notifyResultMsg struct {
	err error
}

// Deps are the collaborators the dashboard drives. Store and Notifier
// may be nil.
type Deps struct {
	Scheduler  *appsync.Scheduler
	Store      store.Store
	Notifier   autoreply.Notifier
	Config     *model.AppConfig
	ConfigPath string
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the polling loop.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	activity     activity.Model
	detail       detail.Model
	settingsView settings.Model
	helpView     helpview.Model
	commandView  command.Model
	spinner      spinner.Model
	scheduler    *appsync.Scheduler
	notifier     autoreply.Notifier
	cfg          *model.AppConfig
	ready        bool
	notice       string
	lastReport   *autoreply.Report
	now          func() time.Time
}

// New creates the dashboard model.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.LoopStyle("running")

	cfg := d.Config
	if cfg == nil {
		cfg = model.DefaultAppConfig()
	}

	return Model{
		currentView:  ViewList,
		keys:         k,
		activity:     activity.New(d.Store, k, 80, 24),
		detail:       detail.New(k, 80, 24),
		settingsView: settings.New(d.ConfigPath, 80, 24),
		helpView:     helpview.New(k, 80, 24),
		commandView:  command.New(80, 24),
		spinner:      sp,
		scheduler:    d.Scheduler,
		notifier:     d.Notifier,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Init starts the scheduler and the countdown ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.scheduler.Start(),
		m.spinner.Tick,
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.activity.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.settingsView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case appsync.CycleResultMsg:
		return m, tea.Batch(m.applyResult(msg), m.scheduler.WaitForNextResult())

	case notifyResultMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("Test notification failed: %v", msg.err)
		} else {
			m.notice = "Test notification sent"
		}
		return m, nil

	case activity.ArchiveLoadedMsg:
		var cmd tea.Cmd
		m.activity, cmd = m.activity.Update(msg)
		return m, cmd

	case activity.SelectedRowMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetRow(msg.Row)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case settings.SettingsSavedMsg:
		m.applyConfig(msg.Config)
		m.currentView = ViewList
		m.notice = "Settings saved"
		return m, nil

	case settings.SettingsCancelMsg:
		m.currentView = ViewList
		return m, nil

	case ConfigReloadedMsg:
		if msg.Err != nil {
			m.notice = fmt.Sprintf("Config not reloaded: %v", msg.Err)
			return m, nil
		}
		m.applyConfig(msg.Config)
		m.notice = "Config reloaded"
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.scheduler.Stop()
			return m, tea.Quit
		}

		switch m.currentView {
		case ViewList:
			if cmd, ok := m.handleListKey(msg); ok {
				return m, cmd
			}
		case ViewHelp:
			if key.Matches(msg, m.keys.Help, m.keys.Back) {
				m.currentView = m.previousView
				return m, nil
			}
		case ViewCommand:
			if key.Matches(msg, m.keys.Back) {
				m.currentView = m.previousView
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleListKey handles dashboard shortcuts. ok is false when the key
// belongs to the activity list.
func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.scheduler.Stop()
		return tea.Quit, true
	case key.Matches(msg, m.keys.Help):
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true
	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true
	case key.Matches(msg, m.keys.Toggle):
		return m.executeCommand(toggleCommand(m.scheduler.State().Enabled)), true
	case key.Matches(msg, m.keys.RunNow):
		return m.executeCommand("run"), true
	case key.Matches(msg, m.keys.Reset):
		return m.executeCommand("reset"), true
	case key.Matches(msg, m.keys.NotifyTest):
		return m.executeCommand("test"), true
	case key.Matches(msg, m.keys.Settings):
		return m.executeCommand("settings"), true
	case key.Matches(msg, m.keys.History):
		return m.activity.ToggleMode(), true
	}
	return nil, false
}

func toggleCommand(enabled bool) string {
	if enabled {
		return "stop"
	}
	return "start"
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.activity, cmd = m.activity.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// applyResult folds a finished cycle into the dashboard.
func (m *Model) applyResult(msg appsync.CycleResultMsg) tea.Cmd {
	cmd := m.activity.SetSession(msg.State.Log)

	if msg.Err != nil {
		m.notice = fmt.Sprintf("Check failed: %v", msg.Err)
		if msg.CredentialError() {
			m.notice += " (check mailbox credentials)"
		}
		return cmd
	}

	rep := msg.Report
	m.lastReport = &rep
	m.notice = reportSummary(rep)

	if m.activity.Mode() == activity.ModeArchive && len(rep.Entries) > 0 {
		return tea.Batch(cmd, m.activity.LoadArchive())
	}
	return cmd
}

// applyConfig makes cfg current and hands the derived settings to the
// scheduler; the running cycle, if any, keeps its old settings.
func (m *Model) applyConfig(cfg *model.AppConfig) {
	if cfg == nil {
		return
	}
	m.cfg = cfg
	m.scheduler.UpdateSettings(autoreply.SettingsFromConfig(cfg))
}

// reportSummary renders a one-line outcome for the status bar.
func reportSummary(rep autoreply.Report) string {
	if rep.Listed == 0 {
		return "No unread mail"
	}
	s := fmt.Sprintf("Checked %d: %d replied, %d skipped, %d failed",
		rep.Listed, rep.Replied, rep.Skipped, rep.Failed)
	switch len(rep.Notices) {
	case 0:
	case 1:
		s += " | " + rep.Notices[0]
	default:
		s += fmt.Sprintf(" | %s (+%d more)", rep.Notices[0], len(rep.Notices)-1)
	}
	return s
}

// executeCommand handles a command string from the command palette or
// a dashboard shortcut.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "start", "on":
		m.scheduler.SetEnabled(true)
		m.notice = "Loop started"
		logging.LogEvent("loop_toggle", logrus.Fields{"enabled": true})
		return nil
	case "stop", "off":
		m.scheduler.SetEnabled(false)
		m.notice = "Loop stopped"
		logging.LogEvent("loop_toggle", logrus.Fields{"enabled": false})
		return nil
	case "run", "check":
		if m.scheduler.RunNow() {
			m.notice = "Checking mailbox..."
		} else {
			m.notice = "A check is already running"
		}
		return nil
	case "reset":
		busy := m.scheduler.Status().State == appsync.CycleRunning
		m.scheduler.Reset()
		m.lastReport = nil
		if busy {
			m.notice = "Reset after the current check"
			return nil
		}
		m.notice = "Counter and log cleared"
		return m.activity.SetSession(m.scheduler.State().Log)
	case "test", "notify":
		m.notice = "Sending test notification..."
		return sendTestNotification(m.notifier)
	case "settings", "config":
		m.previousView = ViewList
		m.currentView = ViewSettings
		return m.settingsView.Start(m.cfg)
	case "archive", "history":
		if m.activity.Mode() != activity.ModeArchive {
			return m.activity.ToggleMode()
		}
		return nil
	case "session", "log":
		if m.activity.Mode() != activity.ModeSession {
			return m.activity.ToggleMode()
		}
		return nil
	case "quit", "q":
		m.scheduler.Stop()
		return tea.Quit
	default:
		m.notice = fmt.Sprintf("Unknown command: %s", cmd)
		return nil
	}
}

// sendTestNotification pushes the fixed test message.
func sendTestNotification(n autoreply.Notifier) tea.Cmd {
	return func() tea.Msg {
		if n == nil {
			return notifyResultMsg{err: notify.ErrNotConfigured}
		}
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		err := n.Push(ctx, notify.TestMessage)
		if err != nil {
			logging.LogWarning("notify_test", err, nil)
		}
		return notifyResultMsg{err: err}
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	st := m.scheduler.Status()
	header := m.layout.RenderHeader("Mail Auto-Reply", m.loopBadge(st))
	metrics := m.layout.RenderMetrics(dashboardMetrics(st, m.now()))
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, metrics, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.activity.View()
	case ViewDetail:
		return m.detail.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// loopBadge returns the header badge for the loop.
func (m Model) loopBadge(st appsync.Status) string {
	label := loopLabel(st)
	if st.State == appsync.CycleRunning {
		return m.spinner.View() + " " + theme.LoopStyle(label).Render(label)
	}
	return theme.LoopStyle(label).Render(label)
}

func loopLabel(st appsync.Status) string {
	switch {
	case st.State == appsync.CycleRunning:
		return "running"
	case st.State == appsync.CycleError:
		return "error"
	case st.Loop.Enabled:
		return "on"
	default:
		return "off"
	}
}

// dashboardMetrics builds the metrics panel cells.
func dashboardMetrics(st appsync.Status, now time.Time) []ui.Metric {
	next := "-"
	if !st.Loop.NextRun.IsZero() {
		next = st.Loop.NextRun.Format("15:04:05")
	}
	return []ui.Metric{
		{Label: "Replies", Value: strconv.Itoa(st.Loop.Replies)},
		{Label: "Log", Value: strconv.Itoa(len(st.Loop.Log))},
		{Label: "Loop", Value: loopLabel(st)},
		{Label: "Next run", Value: next},
		{Label: "In", Value: countdown(st.Loop.NextRun, now)},
	}
}

// countdown formats the time left until next as m:ss, or "-" when
// nothing is scheduled. A due run shows 0:00.
func countdown(next, now time.Time) string {
	if next.IsZero() {
		return "-"
	}
	d := next.Sub(now).Round(time.Second)
	if d < 0 {
		d = 0
	}
	mins := int(d / time.Minute)
	secs := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	case ViewSettings:
		return "enter next | shift+tab previous | esc cancel"
	}

	var parts []string
	if m.notice != "" {
		parts = append(parts, theme.NoticeStyle.Render(m.notice))
	}
	if f := m.activity.FilterSummary(); f != "" {
		parts = append(parts, f)
	}
	parts = append(parts, "s start/stop | r run | x reset | t test | c settings | h history | enter details | ? help | q quit")
	return strings.Join(parts, " | ")
}
