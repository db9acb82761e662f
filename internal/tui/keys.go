// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

type monitorKeys struct {
	Enable  key.Binding
	Mode    key.Binding
	Trigger key.Binding
	Quit    key.Binding
}

var monitorKeyMap = monitorKeys{
	Enable:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "enable/disable")),
	Mode:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "cont/trig")),
	Trigger: key.NewBinding(key.WithKeys("t", " "), key.WithHelp("t", "trigger")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Enable, k.Mode, k.Trigger, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type deviceKeys struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
	Quit   key.Binding
}

var deviceKeyMap = deviceKeys{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "show config")),
	Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k deviceKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Back, k.Quit}
}

func (k deviceKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
