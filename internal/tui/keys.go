package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds every binding the chamber reacts to
type KeyMap struct {
	Ask     key.Binding
	EditKey key.Binding
	Model   key.Binding
	History key.Binding
	Back    key.Binding
	Quit    key.Binding
}

func NewKeyMap() KeyMap {
	return KeyMap{
		Ask: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "ask the council"),
		),
		EditKey: key.NewBinding(
			key.WithKeys("ctrl+k"),
			key.WithHelp("ctrl+k", "api key"),
		),
		Model: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next model"),
		),
		History: key.NewBinding(
			key.WithKeys("ctrl+h"),
			key.WithHelp("ctrl+h", "history"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back/quit"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Ask, k.Model, k.EditKey, k.History, k.Back}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Quit}}
}
