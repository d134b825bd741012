package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nalgeon/be"

	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/notify"
	"github.com/nhle/mail-autoreply/internal/source"
	appsync "github.com/nhle/mail-autoreply/internal/sync"
	"github.com/nhle/mail-autoreply/internal/ui/settings"
)

type idleRunner struct{}

func (idleRunner) Run(_ context.Context, st autoreply.LoopState, _ autoreply.Settings) (autoreply.LoopState, autoreply.Report, error) {
	return st, autoreply.Report{}, nil
}

type recordingNotifier struct {
	texts []string
	err   error
}

func (n *recordingNotifier) Push(_ context.Context, text string) error {
	n.texts = append(n.texts, text)
	return n.err
}

// newTestModel returns a sized dashboard whose scheduler is never started.
func newTestModel(t *testing.T, n autoreply.Notifier) (Model, *appsync.Scheduler) {
	t.Helper()
	cfg := model.DefaultAppConfig()
	sched := appsync.New(idleRunner{}, autoreply.SettingsFromConfig(cfg))
	m := New(Deps{Scheduler: sched, Notifier: n, Config: cfg, ConfigPath: t.TempDir() + "/config.yaml"})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model), sched
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return updated.(Model), cmd
}

func TestCountdown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

	be.Equal(t, countdown(time.Time{}, now), "-")
	be.Equal(t, countdown(now.Add(4*time.Minute+12*time.Second), now), "4:12")
	be.Equal(t, countdown(now.Add(59*time.Second), now), "0:59")
	be.Equal(t, countdown(now.Add(-time.Minute), now), "0:00")
}

func TestReportSummary(t *testing.T) {
	be.Equal(t, reportSummary(autoreply.Report{}), "No unread mail")

	rep := autoreply.Report{Listed: 3, Replied: 1, Skipped: 1, Failed: 1}
	be.Equal(t, reportSummary(rep), "Checked 3: 1 replied, 1 skipped, 1 failed")

	rep.Notices = []string{"notification failed: boom", "archive write failed: disk"}
	be.Equal(t, reportSummary(rep),
		"Checked 3: 1 replied, 1 skipped, 1 failed | notification failed: boom (+1 more)")
}

func TestToggleKeyEnablesAndDisablesLoop(t *testing.T) {
	m, sched := newTestModel(t, nil)

	m, _ = press(t, m, "s")
	be.True(t, sched.State().Enabled)
	be.Equal(t, m.notice, "Loop started")

	m, _ = press(t, m, "s")
	be.True(t, !sched.State().Enabled)
	be.True(t, sched.State().NextRun.IsZero())
	be.Equal(t, m.notice, "Loop stopped")
}

func TestCycleResultUpdatesDashboard(t *testing.T) {
	m, _ := newTestModel(t, nil)

	entry := autoreply.LogEntry{
		At:      time.Now(),
		From:    "bob@example.com",
		Subject: "Question",
		Status:  autoreply.StatusReplied,
	}
	msg := appsync.CycleResultMsg{
		State:  autoreply.LoopState{Replies: 1, Log: []autoreply.LogEntry{entry}},
		Report: autoreply.Report{Listed: 1, Replied: 1, Entries: []autoreply.LogEntry{entry}},
	}
	updated, cmd := m.Update(msg)
	m = updated.(Model)

	be.True(t, cmd != nil)
	be.Equal(t, m.notice, "Checked 1: 1 replied, 0 skipped, 0 failed")
	be.True(t, m.lastReport != nil)
	be.True(t, strings.Contains(m.View(), "Question"))
}

func TestCycleResultCredentialHint(t *testing.T) {
	m, _ := newTestModel(t, nil)

	err := &source.CredentialError{Provider: source.ProviderGmail, Message: "token expired"}
	updated, _ := m.Update(appsync.CycleResultMsg{Err: err})
	m = updated.(Model)

	be.True(t, strings.HasPrefix(m.notice, "Check failed:"))
	be.True(t, strings.HasSuffix(m.notice, "(check mailbox credentials)"))
}

func TestTestNotificationWithoutNotifier(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m, cmd := press(t, m, "t")
	be.True(t, cmd != nil)
	res := cmd().(notifyResultMsg)
	be.Err(t, res.err, notify.ErrNotConfigured)

	updated, _ := m.Update(res)
	m = updated.(Model)
	be.True(t, strings.HasPrefix(m.notice, "Test notification failed"))
}

func TestTestNotificationSendsFixedText(t *testing.T) {
	n := &recordingNotifier{}
	m, _ := newTestModel(t, n)

	_, cmd := press(t, m, "t")
	res := cmd().(notifyResultMsg)
	be.Err(t, res.err, nil)
	be.Equal(t, n.texts, []string{notify.TestMessage})
}

func TestExecuteCommand(t *testing.T) {
	m, sched := newTestModel(t, nil)

	m.executeCommand("start")
	be.True(t, sched.State().Enabled)

	m.executeCommand("bogus")
	be.Equal(t, m.notice, "Unknown command: bogus")

	m.executeCommand("settings")
	be.Equal(t, m.currentView, ViewSettings)

	m.currentView = ViewList
	m.executeCommand("reset")
	be.Equal(t, m.notice, "Counter and log cleared")
	be.Equal(t, sched.State().Replies, 0)
}

func TestSettingsSavedUpdatesScheduler(t *testing.T) {
	m, sched := newTestModel(t, nil)

	cfg := model.DefaultAppConfig()
	cfg.Loop.IntervalMinutes = 15
	cfg.Loop.MaxEmails = 7
	updated, _ := m.Update(settings.SettingsSavedMsg{Config: cfg})
	m = updated.(Model)

	be.Equal(t, sched.Settings().Interval, 15*time.Minute)
	be.Equal(t, sched.Settings().MaxEmails, 7)
	be.Equal(t, m.currentView, ViewList)
	be.Equal(t, m.notice, "Settings saved")
}

func TestConfigReloadError(t *testing.T) {
	m, sched := newTestModel(t, nil)
	before := sched.Settings()

	updated, _ := m.Update(ConfigReloadedMsg{Err: errors.New("bad yaml")})
	m = updated.(Model)

	be.Equal(t, m.notice, "Config not reloaded: bad yaml")
	be.Equal(t, sched.Settings(), before)
}

func TestViewShowsMetrics(t *testing.T) {
	m, _ := newTestModel(t, nil)
	out := m.View()

	be.True(t, strings.Contains(out, "Mail Auto-Reply"))
	be.True(t, strings.Contains(out, "Replies"))
	be.True(t, strings.Contains(out, "Next run"))
	be.True(t, strings.Contains(out, "off"))
}

func TestLoopLabel(t *testing.T) {
	be.Equal(t, loopLabel(appsync.Status{}), "off")
	be.Equal(t, loopLabel(appsync.Status{Loop: autoreply.LoopState{Enabled: true}}), "on")
	be.Equal(t, loopLabel(appsync.Status{State: appsync.CycleRunning}), "running")
	be.Equal(t, loopLabel(appsync.Status{State: appsync.CycleError, Loop: autoreply.LoopState{Enabled: true}}), "error")
}

func TestEnterOpensEntryDetail(t *testing.T) {
	m, _ := newTestModel(t, nil)

	entry := autoreply.LogEntry{
		At:        time.Now(),
		MessageID: "m1",
		From:      "bob@example.com",
		Subject:   "Question",
		Status:    autoreply.ErrorStatus("smtp: 550 mailbox unavailable"),
	}
	updated, _ := m.Update(appsync.CycleResultMsg{State: autoreply.LoopState{Log: []autoreply.LogEntry{entry}}})
	m = updated.(Model)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	be.True(t, cmd != nil)

	updated, _ = m.Update(cmd())
	m = updated.(Model)
	be.Equal(t, m.currentView, ViewDetail)
	be.True(t, strings.Contains(m.View(), "smtp: 550 mailbox unavailable"))

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	updated, _ = m.Update(cmd())
	be.Equal(t, updated.(Model).currentView, ViewList)
}
