package cli

import "github.com/charmbracelet/lipgloss"

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B5CF6")).Width(10)
)

// summaryLine renders "label  value" pairs on one dim line.
func summaryLine(pairs ...string) string {
	var line string
	for i := 0; i+1 < len(pairs); i += 2 {
		if line != "" {
			line += dimStyle.Render("  ·  ")
		}
		line += dimStyle.Render(pairs[i]+" ") + pairs[i+1]
	}
	return line
}
