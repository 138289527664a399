// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"

	"tuner/internal/buffer"
	"tuner/internal/note"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A40000"))

	noteStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2)

	statusColors = map[note.Status]lipgloss.Color{
		note.Perfect: lipgloss.Color("#25A065"),
		note.Sharp:   lipgloss.Color("#FFA500"),
		note.Flat:    lipgloss.Color("#3B82F6"),
	}
)

const (
	needleWidth = 41
	meterWidth  = 30
)

// View renders the UI
func (m TunerModel) View() string {
	var b strings.Builder
	if m.screen == DeviceScreen {
		b.WriteString(titleStyle.Render("Input Devices"))
		b.WriteString("\n\n")
		b.WriteString(m.picker.view())
		b.WriteString("\n\n")
		b.WriteString(m.help.View(pickerHelp{keys}))
		return b.String()
	}

	b.WriteString(titleStyle.Render("Tuner"))
	b.WriteString("  ")
	b.WriteString(infoStyle.Render(m.state.String()))
	b.WriteString("\n\n")

	if m.hasNote {
		d := m.current
		color := statusColors[d.Status]
		b.WriteString(noteStyle.Foreground(color).Render(d.Note))
		b.WriteString("  ")
		b.WriteString(fmt.Sprintf("%s  %s", note.FormatFrequency(d.Frequency), note.FormatCents(d.Deviation)))
		b.WriteString("\n\n")
		b.WriteString(renderNeedle(d.Deviation, m.opts.MatchRadius, needleWidth))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(color).Render(strings.ToUpper(d.Status.String())))
		b.WriteString(infoStyle.Render(fmt.Sprintf("  confidence %.0f%%", d.Confidence*100)))
	} else {
		b.WriteString(noteStyle.Foreground(lipgloss.Color("#888888")).Render("--"))
		b.WriteString("\n\n")
		b.WriteString(renderNeedle(math.NaN(), m.opts.MatchRadius, needleWidth))
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("play a note"))
	}
	b.WriteString("\n\n")

	b.WriteString("Level ")
	b.WriteString(renderMeter(buffer.Level(m.volume), meterWidth))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("Device %d", m.opts.DeviceID)))
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(tunerHelp{keys}))
	return b.String()
}

// renderNeedle draws a scale from -radius to +radius cents with the needle
// at cents. NaN draws the scale alone.
func renderNeedle(cents, radius float64, width int) string {
	if width < 3 {
		width = 3
	}
	if width%2 == 0 {
		width++
	}
	center := width / 2
	scale := []rune(strings.Repeat("-", width))
	scale[0], scale[center], scale[width-1] = '[', '|', ']'

	if !math.IsNaN(cents) && radius > 0 {
		c := math.Max(-radius, math.Min(radius, cents))
		pos := center + int(math.Round(c/radius*float64(center)))
		pos = max(0, min(width-1, pos))
		scale[pos] = '▼'
	}
	return fmt.Sprintf("%4.0f %s %+4.0f", -radius, string(scale), radius)
}

// renderMeter draws level (0..1) as a bar of width cells.
func renderMeter(level float64, width int) string {
	level = math.Max(0, math.Min(1, level))
	filled := int(math.Round(level * float64(width)))
	return highlightStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
}
