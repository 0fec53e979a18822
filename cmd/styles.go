package cmd

import "github.com/charmbracelet/lipgloss"

// Console styles for command summaries, adaptive so both light and dark
// terminals stay readable.
var (
	headerStyle = lipgloss.NewStyle().Bold(true)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#16A34A",
		Dark:  "#4ADE80",
	})

	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#D97706",
		Dark:  "#FBBF24",
	})

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#DC2626",
		Dark:  "#F87171",
	})
)
