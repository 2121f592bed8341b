package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	refresh key.Binding
	history key.Binding
	cancel  key.Binding
	untrack key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		history: key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
		cancel:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel job")),
		untrack: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "untrack")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.refresh, k.history, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.refresh, k.history},
		{k.cancel, k.untrack, k.quit},
	}
}
