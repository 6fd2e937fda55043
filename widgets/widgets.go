package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-smfplay/theme"
)

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

// RenderProgress renders a bar width cells wide, filled to frac
func RenderProgress(th *theme.Theme, width int, frac float64) string {
	if width <= 0 {
		return ""
	}
	filled := int(frac*float64(width) + 0.5)
	filled = min(max(filled, 0), width)

	full := lipgloss.NewStyle().Foreground(th.Accent())
	empty := lipgloss.NewStyle().Foreground(th.Muted())
	return full.Render(strings.Repeat(string(th.Symbols.BarFull), filled)) +
		empty.Render(strings.Repeat(string(th.Symbols.BarEmpty), width-filled))
}

// Channel is the display state of one MIDI channel
type Channel struct {
	Used  bool    // the file has events on it
	Muted bool
	Level float64 // 0-1, loudest sounding note
}

// RenderChannels renders a meter cell per channel over a row of channel
// numbers. Unused channels are left blank.
func RenderChannels(th *theme.Theme, channels [16]Channel) string {
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	warn := lipgloss.NewStyle().Foreground(th.Warning())

	var meters, labels strings.Builder
	for i, ch := range channels {
		if i > 0 {
			meters.WriteString(" ")
			labels.WriteString(" ")
		}
		switch {
		case !ch.Used:
			meters.WriteString("  ")
		case ch.Muted:
			meters.WriteString(warn.Render(" " + string(th.Symbols.Muted)))
		default:
			level := lipgloss.NewStyle().Foreground(th.Color(0.4 + ch.Level*0.6))
			r := string(th.MeterRune(ch.Level))
			meters.WriteString(level.Render(r + r))
		}
		labels.WriteString(dim.Render(fmt.Sprintf("%2d", i+1)))
	}
	return meters.String() + "\n" + labels.String()
}

// RenderLegendItem renders a single legend item: "■ Name - description"
func RenderLegendItem(color theme.RGB, name, desc string) string {
	pad := lipgloss.NewStyle().Foreground(lipgloss.Color(color.Hex())).Render("■")
	return fmt.Sprintf("  %s %s - %s", pad, name, desc)
}
