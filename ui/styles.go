package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")

	// User message style
	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	// Assistant message style
	AssistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	// Timestamps, placeholders
	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	// Failed replies
	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Italic(true)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)
)

// FormatFooter formats a footer string with alternating keys and descriptions.
// Keys keep the default color, descriptions are rendered bold in color.
// Usage: FormatFooter(successColor, "Enter", "Send", "Alt+Q", "Quit")
// Result: "Enter Send  Alt+Q Quit"
func FormatFooter(color lipgloss.Color, parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	var result []string
	for i := 0; i+1 < len(parts); i += 2 {
		result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
	}
	return strings.Join(result, "  ")
}
