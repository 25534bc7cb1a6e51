package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. Single teal accent keeps the output readable on both
// light and dark terminals.
const (
	ColorTeal     = "43"  // primary accent
	ColorTealDim  = "30"  // dimmed accent for inactive stages
	ColorWhite    = "255" // headers
	ColorGray     = "245" // labels, secondary text
	ColorDarkGray = "238" // borders, separators
	ColorRed      = "196" // errors
	ColorYellow   = "220" // warnings
)

// Styles holds all UI styles for TUI rendering.
type Styles struct {
	Header   lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Dim      lipgloss.Style
	Active   lipgloss.Style
	Progress lipgloss.Style

	Border    lipgloss.Style
	Panel     lipgloss.Style
	Sparkline lipgloss.Style
	Speed     lipgloss.Style
	Label     lipgloss.Style
}

// DefaultStyles returns styled components for TUI mode.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorTeal)),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTeal)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorTeal)),
		Progress: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTeal)),

		Border: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
		Sparkline: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTeal)),
		Speed:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle(),
		Success:   lipgloss.NewStyle(),
		Warning:   lipgloss.NewStyle(),
		Error:     lipgloss.NewStyle(),
		Dim:       lipgloss.NewStyle(),
		Active:    lipgloss.NewStyle(),
		Progress:  lipgloss.NewStyle(),
		Border:    lipgloss.NewStyle(),
		Panel:     lipgloss.NewStyle(),
		Sparkline: lipgloss.NewStyle(),
		Speed:     lipgloss.NewStyle(),
		Label:     lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
