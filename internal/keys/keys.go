package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the dashboard.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Select / Back / Quit
	Select key.Binding
	Back   key.Binding
	Quit key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// Loop control
	Toggle key.Binding
	RunNow key.Binding
	Reset  key.Binding

	// Notifications
	NotifyTest key.Binding

	// Settings editor
	Settings key.Binding

	// Session log / archive
	History key.Binding

	// Status filters
	FilterReplied key.Binding
	FilterSkipped key.Binding
	FilterError   key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command palette"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start/stop loop"),
		),
		RunNow: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "check now"),
		),
		Reset: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "reset log"),
		),
		NotifyTest: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "test notification"),
		),
		Settings: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "settings"),
		),
		History: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "session/archive"),
		),
		FilterReplied: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "toggle replied"),
		),
		FilterSkipped: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "toggle skipped"),
		),
		FilterError: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "toggle errors"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Toggle, k.RunNow, k.Settings, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.Toggle, k.RunNow, k.Reset, k.NotifyTest},
		{k.Settings, k.History, k.Command, k.Help},
		{k.FilterReplied, k.FilterSkipped, k.FilterError},
	}
}
