package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Strikethrough(true)

	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	todayStyle = lipgloss.NewStyle().
			Underline(true).
			Bold(true)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	lightBorderStyle = borderStyle.BorderForeground(lipgloss.Color("250"))
)
