package tui

import "github.com/charmbracelet/lipgloss"

var (
	primary = lipgloss.Color("#7C3AED")
	success = lipgloss.Color("#10B981")
	muted   = lipgloss.Color("#6B7280")
	warning = lipgloss.Color("#F59E0B")
	danger  = lipgloss.Color("#EF4444")
	white   = lipgloss.Color("#FFFFFF")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primary)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(success)

	selectedStyle = lipgloss.NewStyle().
			Background(primary).
			Foreground(white).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(muted)

	noticeStyle = lipgloss.NewStyle().
			Foreground(warning)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger)

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F2937")).
			Foreground(white).
			Padding(0, 1)

	searchStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(success).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(success).
			Bold(true).
			Width(18)
)
