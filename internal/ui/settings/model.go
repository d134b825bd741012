package settings

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/theme"
)

// SettingsSavedMsg is sent after the edited configuration was written.
type SettingsSavedMsg struct {
	Config *model.AppConfig
}

// SettingsCancelMsg is sent when the operator leaves without saving.
type SettingsCancelMsg struct{}

type savedInternalMsg struct {
	cfg *model.AppConfig
	err error
}

// formValues is shared with the huh form, which binds to its fields.
type formValues struct {
	interval       string
	maxEmails      string
	spamFilter     bool
	subject        string
	body           string
	attach         bool
	attachmentPath string
}

// Model is the settings editor.
type Model struct {
	form      *huh.Form
	values    *formValues
	base      *model.AppConfig
	path      string
	saving    bool
	statusMsg string

	width, height int
}

// New creates a settings editor that saves to path.
func New(path string, width, height int) Model {
	return Model{path: path, width: width, height: height}
}

// Start opens the editor on cfg.
func (m *Model) Start(cfg *model.AppConfig) tea.Cmd {
	m.base = cfg
	m.values = valuesFrom(cfg)
	m.statusMsg = ""
	m.saving = false
	m.form = m.buildForm()
	return m.form.Init()
}

func valuesFrom(cfg *model.AppConfig) *formValues {
	return &formValues{
		interval:       strconv.Itoa(cfg.Loop.IntervalMinutes),
		maxEmails:      strconv.Itoa(cfg.Loop.MaxEmails),
		spamFilter:     cfg.Loop.SpamFilter,
		subject:        cfg.Reply.Subject,
		body:           cfg.Reply.Body,
		attach:         cfg.Reply.Attach,
		attachmentPath: cfg.Reply.AttachmentPath,
	}
}

func (m *Model) buildForm() *huh.Form {
	v := m.values
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Check interval (minutes)").
				Description("Delay between the end of one check and the next (1-60)").
				Value(&v.interval).
				Validate(validateRange("Interval", 1, 60)),
			huh.NewInput().
				Title("Max emails per check").
				Description("Unread messages handled per check (1-20)").
				Value(&v.maxEmails).
				Validate(validateRange("Max emails", 1, 20)),
			huh.NewConfirm().
				Title("Spam filter").
				Description("Skip no-reply and automated senders").
				Affirmative("On").
				Negative("Off").
				Value(&v.spamFilter),
		).Title("Loop"),
		huh.NewGroup(
			huh.NewInput().
				Title("Reply subject").
				Description("Leave empty to use \"Re: <original subject>\"").
				Value(&v.subject),
			huh.NewText().
				Title("Reply body").
				Lines(6).
				Value(&v.body).
				Validate(validateRequired("Reply body")),
		).Title("Reply"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Attach PDF").
				Affirmative("Yes").
				Negative("No").
				Value(&v.attach),
			huh.NewInput().
				Title("Attachment path").
				Placeholder("/path/to/guide.pdf").
				Value(&v.attachmentPath).
				Validate(validateAttachment(v)),
		).Title("Attachment"),
	).WithWidth(m.formWidth())
}

// Update handles messages for the settings editor.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case savedInternalMsg:
		m.saving = false
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		cfg := msg.cfg
		return m, func() tea.Msg { return SettingsSavedMsg{Config: cfg} }
	}

	if m.form == nil || m.saving {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		cfg, err := apply(m.base, m.values)
		if err != nil {
			m.statusMsg = err.Error()
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		m.saving = true
		return m, m.save(cfg)
	case huh.StateAborted:
		return m, func() tea.Msg { return SettingsCancelMsg{} }
	}

	return m, cmd
}

func (m Model) save(cfg *model.AppConfig) tea.Cmd {
	path := m.path
	return func() tea.Msg {
		return savedInternalMsg{cfg: cfg, err: model.SaveConfig(path, cfg)}
	}
}

// apply returns a copy of base with the form values applied.
func apply(base *model.AppConfig, v *formValues) (*model.AppConfig, error) {
	cfg := *base

	interval, err := strconv.Atoi(strings.TrimSpace(v.interval))
	if err != nil {
		return nil, fmt.Errorf("interval must be a number")
	}
	maxEmails, err := strconv.Atoi(strings.TrimSpace(v.maxEmails))
	if err != nil {
		return nil, fmt.Errorf("max emails must be a number")
	}

	cfg.Loop.IntervalMinutes = interval
	cfg.Loop.MaxEmails = maxEmails
	cfg.Loop.SpamFilter = v.spamFilter
	cfg.Reply.Subject = strings.TrimSpace(v.subject)
	cfg.Reply.Body = v.body
	cfg.Reply.Attach = v.attach
	cfg.Reply.AttachmentPath = strings.TrimSpace(v.attachmentPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// View renders the settings editor.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Settings"), m.form.View()}
	if m.statusMsg != "" {
		parts = append(parts, theme.NoticeStyle.Italic(true).Render(m.statusMsg))
	}
	if m.saving {
		parts = append(parts, theme.DimmedStyle.Render("Saving..."))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the editor dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w < 40 {
		w = 40
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateRange(fieldName string, min, max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s must be a number", fieldName)
		}
		if n < min || n > max {
			return fmt.Errorf("%s must be between %d and %d", fieldName, min, max)
		}
		return nil
	}
}

// validateAttachment requires a readable file only while attaching is on.
func validateAttachment(v *formValues) func(string) error {
	return func(s string) error {
		if !v.attach {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("attachment path is required")
		}
		info, err := os.Stat(s)
		if err != nil {
			return fmt.Errorf("cannot read %s", s)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", s)
		}
		return nil
	}
}
