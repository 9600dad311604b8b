package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// Kartoza palette
var (
	ColorOrange   = lipgloss.Color("#DDA036") // Primary/Active
	ColorBlue     = lipgloss.Color("#569FC6") // Secondary/Links
	ColorGray     = lipgloss.Color("#9A9EA0") // Inactive/Subtle
	ColorWhite    = lipgloss.Color("#FFFFFF") // Text
	ColorDarkGray = lipgloss.Color("#3A3A3A") // Background
	ColorRed      = lipgloss.Color("#E95420") // Error/Recording
	ColorGreen    = lipgloss.Color("#4CAF50") // Success
)

// HeaderWidth is the standard width for the header
const HeaderWidth = 60

// HeaderState contains the dynamic part of the header
type HeaderState struct {
	State    models.SessionState
	Duration string
	BlinkOn  bool
}

// stateColor picks the indicator colour for a session state
func stateColor(state models.SessionState) lipgloss.Color {
	switch state {
	case models.StateCapturing:
		return ColorRed
	case models.StateStarting, models.StateStopping, models.StateMerging:
		return ColorOrange
	case models.StateCompleted:
		return ColorGreen
	case models.StateFailed:
		return ColorRed
	}
	return ColorGray
}

// RenderHeader renders the application title, motto and session state line
func RenderHeader(state HeaderState) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorOrange).
		Align(lipgloss.Center).
		Width(HeaderWidth)

	mottoStyle := lipgloss.NewStyle().
		Italic(true).
		Foreground(ColorGray).
		Align(lipgloss.Center).
		Width(HeaderWidth)

	dividerStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		Width(HeaderWidth)

	indicator := "●"
	if state.State == models.StateCapturing && !state.BlinkOn {
		indicator = " "
	}
	status := lipgloss.NewStyle().Foreground(stateColor(state.State)).Bold(true).
		Render(indicator + " " + string(state.State))
	if state.Duration != "" {
		status += LabelStyle.Render("  " + state.Duration)
	}

	return lipgloss.JoinVertical(
		lipgloss.Center,
		titleStyle.Render("Kartoza Screen Mux"),
		mottoStyle.Render("Screen and system audio, one file"),
		dividerStyle.Render(strings.Repeat("─", HeaderWidth)),
		lipgloss.NewStyle().Width(HeaderWidth).Align(lipgloss.Center).Render(status),
	)
}

// Box style for content areas
var BoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorOrange).
	Padding(1, 2)

// LabelStyle is used for secondary text
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// ValueStyle is used for values next to labels
var ValueStyle = lipgloss.NewStyle().
	Foreground(ColorWhite)

// ErrorStyle is used for error messages
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed).
	Bold(true)

// SuccessStyle is used for success messages
var SuccessStyle = lipgloss.NewStyle().
	Foreground(ColorGreen).
	Bold(true)
