// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the key bindings of the tuner view and the device picker.
type keyMap struct {
	Quit    key.Binding
	Devices key.Binding
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Back    key.Binding
}

var keys = keyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Devices: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "input device")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "use device")),
	Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
}

// tunerHelp and pickerHelp implement help.KeyMap for each screen.
type tunerHelp struct{ keyMap }

func (k tunerHelp) ShortHelp() []key.Binding  { return []key.Binding{k.Devices, k.Quit} }
func (k tunerHelp) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

type pickerHelp struct{ keyMap }

func (k pickerHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Back, k.Quit}
}
func (k pickerHelp) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }
