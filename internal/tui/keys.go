package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Add     key.Binding
	Up      key.Binding
	Down    key.Binding
	Delete  key.Binding
	Refetch key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Add:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "add")),
	Up:      key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
	Down:    key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
	Delete:  key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "delete")),
	Refetch: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reload")),
	Quit:    key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Add, k.Up, k.Down, k.Delete, k.Refetch, k.Quit}
}
