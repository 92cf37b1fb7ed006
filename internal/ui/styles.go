// Package ui holds the terminal styling shared by the interactive
// commands (monitor, list-events, validate). The daemon itself never
// imports it; daemon output goes through the logging package.
package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles is the palette for command output. The zero value renders
// everything unstyled, which is also what NewStyles returns on a
// terminal without color support.
type Styles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
	Path    lipgloss.Style
	Time    lipgloss.Style
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles builds the palette. plain forces unstyled output regardless
// of what the terminal reports; piping command output does the same via
// the profile check.
func NewStyles(plain bool) Styles {
	if plain || termenv.EnvColorProfile() == termenv.Ascii {
		return Styles{}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true),
		Section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		Key:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Value:   lipgloss.NewStyle(),
		Path:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		Time:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		OK:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

var defaultStyles = NewStyles(false)

// RenderOK paints a success marker with the default palette.
func RenderOK(s string) string { return defaultStyles.OK.Render(s) }

// RenderWarn paints a warning marker with the default palette.
func RenderWarn(s string) string { return defaultStyles.Warn.Render(s) }

// RenderError paints an error marker with the default palette.
func RenderError(s string) string { return defaultStyles.Error.Render(s) }

// RenderAccent paints an accent with the default palette.
func RenderAccent(s string) string { return defaultStyles.Section.Render(s) }

// Heading renders a section heading.
func (s Styles) Heading(text string) string {
	return s.Section.Render(text)
}

// Entry renders one "key: value" listing line with a two-space indent.
func (s Styles) Entry(key, value string) string {
	return "  " + s.Key.Render(key) + ": " + s.Value.Render(value)
}

// FeedLine renders a decoded event-feed message as a single line. The
// feed is JSON; fields the monitor knows about get stable positions and
// styling, the rest trail in sorted key=value form.
func (s Styles) FeedLine(msg map[string]any) string {
	var b strings.Builder

	if t, ok := msg["time"].(string); ok {
		b.WriteString(s.Time.Render(t))
		b.WriteString(" ")
	}
	if src, ok := msg["source"].(string); ok {
		b.WriteString(s.Section.Render(src))
	}
	if name, ok := msg["name"].(string); ok {
		b.WriteString(" ")
		b.WriteString(s.Key.Render(name))
	}

	rest := make([]string, 0, len(msg))
	for k, v := range msg {
		switch k {
		case "time", "source", "name":
			continue
		}
		rest = append(rest, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(rest)
	for _, kv := range rest {
		b.WriteString(" ")
		b.WriteString(s.Muted.Render(kv))
	}

	return strings.TrimSpace(b.String())
}
