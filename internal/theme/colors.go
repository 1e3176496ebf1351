package theme

import "github.com/charmbracelet/lipgloss"

// Color palette, Catppuccin Mocha.
var (
	ColorOverlay0 = lipgloss.Color("#6c7086")
	ColorText     = lipgloss.Color("#cdd6f4")
	ColorSubtext0 = lipgloss.Color("#a6adc8")

	ColorRed      = lipgloss.Color("#f38ba8")
	ColorGreen    = lipgloss.Color("#a6e3a1")
	ColorYellow   = lipgloss.Color("#f9e2af")
	ColorBlue     = lipgloss.Color("#89b4fa")
	ColorMauve    = lipgloss.Color("#cba6f7")
	ColorTeal     = lipgloss.Color("#94e2d5")
	ColorPeach    = lipgloss.Color("#fab387")
	ColorLavender = lipgloss.Color("#b4befe")
)

var (
	Header = lipgloss.NewStyle().Bold(true).Foreground(ColorMauve)
	Label  = lipgloss.NewStyle().Bold(true).Foreground(ColorSubtext0)
	Dim    = lipgloss.NewStyle().Foreground(ColorOverlay0)
	Border = lipgloss.NewStyle().Foreground(ColorOverlay0)
	Error  = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
)

// StatusColor returns the color for an agent status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "complete":
		return ColorGreen
	case "running":
		return ColorYellow
	case "error":
		return ColorRed
	case "created", "starting":
		return ColorBlue
	case "stopped":
		return ColorOverlay0
	default:
		return ColorText
	}
}

// TypeColor returns the color for an agent type.
func TypeColor(typ string) lipgloss.Color {
	switch typ {
	case "master":
		return ColorLavender
	case "code":
		return ColorPeach
	default:
		return ColorTeal
	}
}

// StatusBadge renders a status as a bold colored word.
func StatusBadge(status string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(StatusColor(status)).Render(status)
}
