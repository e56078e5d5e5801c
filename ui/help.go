package ui

import (
	"github.com/charmbracelet/lipgloss"
)

func renderHelpModal(width, height int) string {
	green := lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)
	blue := lipgloss.NewStyle().Foreground(accentColor)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		green.Render("Gefen - Keyboard Shortcuts"),
		"",
		blue.Render("## Chat"),
		"• Enter         Send message or selected suggestion",
		"• Alt+Enter     New line",
		"• Up/Down       Pick a suggestion (empty chat only)",
		"• Alt+Y         Copy last reply",
		"",
		blue.Render("## Navigation"),
		"• PgUp/PgDown   Scroll one page",
		"• Alt+K/Alt+J   Scroll half a page",
		"",
		blue.Render("## Global"),
		"• Alt+H         Toggle this help",
		"• Alt+Q/Ctrl+C  Quit",
	)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, boxStyle.Render(content))
}
