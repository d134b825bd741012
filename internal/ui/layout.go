package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-autoreply/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	MetricsHeight   int
	StatusBarHeight int
}

// Metric is one labelled value in the metrics panel.
type Metric struct {
	Label string
	Value string
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1; the metrics panel takes
// three lines including its border.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		MetricsHeight:   3,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header, metrics panel and status bar.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.MetricsHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderMetrics renders the metrics panel as evenly spaced cells.
func (l Layout) RenderMetrics(metrics []Metric) string {
	if len(metrics) == 0 {
		return ""
	}
	cellWidth := (l.Width - 2) / len(metrics)
	if cellWidth < 1 {
		cellWidth = 1
	}

	cells := make([]string, len(metrics))
	for i, m := range metrics {
		text := theme.DimmedStyle.Render(m.Label+" ") + theme.MetricStyle.Render(m.Value)
		cells[i] = lipgloss.NewStyle().Width(cellWidth).Render(text)
	}

	return theme.BorderStyle.
		Width(l.Width - 2).
		Render(strings.Join(cells, ""))
}

// RenderHeader renders the top header bar with a title and a loop status
// badge.
func (l Layout) RenderHeader(title string, loopStatus string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(loopStatus)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.StatusBarStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, metrics panel, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	metrics string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		metrics,
		content,
		statusBar,
	)
}
