package tui

import "github.com/charmbracelet/lipgloss"

const (
	IconCheck     = "✔"
	IconCross     = "✘"
	IconWarning   = "⚠"
	IconHourglass = "⏳"
	IconStop      = "⏹"
	IconLink      = "🔗"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}).
			Background(lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#303030"}).
			Padding(0, 2)

	stateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#9E9E9E", Dark: "#5C5C5C"}).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true)
	selectedRowStyle = lipgloss.NewStyle().Reverse(true)

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	stoppedStyle = lipgloss.NewStyle().Faint(true)
	exitedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	urlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Underline(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)
