package activity

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/theme"
)

// Row is one line of the activity list, from either the session log or
// the archive.
type Row struct {
	At        time.Time
	MessageID string
	ThreadID  string
	From      string
	Subject   string
	Status    string
	Kind      model.ActivityKind

	// Archived rows show their age instead of the clock time.
	Archived bool
}

// FromEntry converts a session log entry.
func FromEntry(e autoreply.LogEntry) Row {
	return Row{
		At:        e.At,
		MessageID: e.MessageID,
		ThreadID:  e.ThreadID,
		From:      e.From,
		Subject:   e.Subject,
		Status:    e.Status,
		Kind:      e.Kind(),
	}
}

// FromActivity converts an archived record.
func FromActivity(a model.Activity) Row {
	return Row{
		At:        a.CreatedAt,
		MessageID: a.MessageID,
		ThreadID:  a.ThreadID,
		From:      a.Sender,
		Subject:   a.Subject,
		Status:    a.Status,
		Kind:      a.Kind,
		Archived:  true,
	}
}

// FilterValue returns the string used for fuzzy filtering.
func (r Row) FilterValue() string { return r.Subject + " " + r.From }

// Title returns the subject for the list.
func (r Row) Title() string { return r.Subject }

// Description returns a short summary line for the list.
func (r Row) Description() string {
	return strings.Join([]string{r.From, r.Status, r.when()}, " | ")
}

func (r Row) when() string {
	if r.Archived {
		return relativeTime(r.At)
	}
	return r.At.Format("15:04:05")
}

// RowDelegate implements list.ItemDelegate for activity rows.
type RowDelegate struct {
	width int
}

// Height returns the number of lines each item takes.
func (d RowDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d RowDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d RowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Column widths in terminal cells.
const (
	whenWidth   = 9
	statusWidth = 9
	fromWidth   = 28
)

// Render draws a single activity line.
func (d RowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, ok := item.(Row)
	if !ok {
		return
	}

	when := theme.DimmedStyle.Render(pad(row.when(), whenWidth))
	status := theme.StatusStyle(row.Status).Render(pad(statusLabel(row.Status), statusWidth))
	from := pad(row.From, fromWidth)

	subjectWidth := d.width - whenWidth - statusWidth - fromWidth - 8
	if subjectWidth < 10 {
		subjectWidth = 10
	}
	subject := runewidth.Truncate(row.Subject, subjectWidth, "…")

	line := fmt.Sprintf("%s %s %s %s", when, status, from, subject)
	if strings.HasPrefix(row.Status, "Error") {
		detail := strings.TrimPrefix(row.Status, "Error: ")
		line += theme.DimmedStyle.Render("  " + runewidth.Truncate(detail, 40, "…"))
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// statusLabel shortens error statuses to fit the status column.
func statusLabel(status string) string {
	if strings.HasPrefix(status, "Error") {
		return "Error"
	}
	return status
}

// pad truncates or pads s to exactly width cells, counting East Asian
// wide characters as two.
func pad(s string, width int) string {
	s = runewidth.Truncate(s, width, "…")
	return runewidth.FillRight(s, width)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("01-02")
	}
}
