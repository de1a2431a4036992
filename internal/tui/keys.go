package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	All     key.Binding
	High    key.Binding
	Medium  key.Binding
	Low     key.Binding
	Strict  key.Binding
	Ignore  key.Binding
	Repair  key.Binding
	Context key.Binding
	Copy    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		All:     key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "all")),
		High:    key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "high")),
		Medium:  key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "medium")),
		Low:     key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "low")),
		Strict:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "strict mode")),
		Ignore:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "baseline")),
		Repair:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repair")),
		Context: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "context")),
		Copy:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy alert")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Ignore, k.Repair, k.Context, k.Copy, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Context, k.Copy},
		{k.All, k.High, k.Medium, k.Low},
		{k.Ignore, k.Repair, k.Strict},
		{k.Help, k.Quit},
	}
}
