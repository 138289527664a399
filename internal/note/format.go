// SPDX-License-Identifier: MIT
package note

import "fmt"

// FormatFrequency renders a frequency for display, switching to kHz from
// 1000 Hz.
func FormatFrequency(freq float64) string {
	if freq < 1000 {
		return fmt.Sprintf("%.1f Hz", freq)
	}
	return fmt.Sprintf("%.2f kHz", freq/1000)
}

// FormatCents renders a deviation with an explicit sign when sharp.
func FormatCents(cents float64) string {
	if cents > 0 {
		return fmt.Sprintf("+%.0f¢", cents)
	}
	return fmt.Sprintf("%.0f¢", cents)
}
