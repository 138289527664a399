// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"tuner/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// devicePicker lists input devices in a scrolling viewport.
type devicePicker struct {
	devices       []audio.Device
	selectedIndex int
	activeID      int
	viewport      viewport.Model
	err           error
}

func newDevicePicker(width, height int) devicePicker {
	vp := viewport.New(width, max(height, 1))
	return devicePicker{viewport: vp, activeID: audio.DefaultDeviceID}
}

// setDevices replaces the list and preselects the active device.
func (p *devicePicker) setDevices(devices []audio.Device, activeID int) {
	p.devices = devices
	p.activeID = activeID
	p.selectedIndex = 0
	for i, d := range devices {
		if d.ID == activeID {
			p.selectedIndex = i
			break
		}
	}
	p.viewport.SetContent(p.render())
}

func (p *devicePicker) resize(width, height int) {
	p.viewport.Width = width
	p.viewport.Height = max(height, 1)
}

// selected returns the highlighted device.
func (p *devicePicker) selected() (audio.Device, bool) {
	if p.selectedIndex < 0 || p.selectedIndex >= len(p.devices) {
		return audio.Device{}, false
	}
	return p.devices[p.selectedIndex], true
}

// update moves the selection. Enter and Esc are handled by the parent.
func (p devicePicker) update(msg tea.Msg) (devicePicker, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Up):
			if p.selectedIndex > 0 {
				p.selectedIndex--
				p.viewport.SetContent(p.render())
			}
			return p, nil
		case key.Matches(msg, keys.Down):
			if p.selectedIndex < len(p.devices)-1 {
				p.selectedIndex++
				p.viewport.SetContent(p.render())
			}
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p devicePicker) view() string {
	if p.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", p.err))
	}
	return p.viewport.View()
}

// render formats the device list.
func (p devicePicker) render() string {
	if len(p.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, device := range p.devices {
		marker := " "
		if device.ID == p.activeID {
			marker = "*"
		}
		deviceInfo := fmt.Sprintf("%s [%d] %s (%s)\n", marker, device.ID, device.Name, device.Type())
		deviceInfo += fmt.Sprintf("      Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)

		if i == p.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}
