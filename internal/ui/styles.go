// Package ui renders the soft keyboard in a terminal with Bubble Tea
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red

	ColorText      = lipgloss.Color("252") // Light gray
	ColorSubtle    = lipgloss.Color("241") // Medium gray
	ColorMuted     = lipgloss.Color("238") // Dark gray
	ColorHighlight = lipgloss.Color("255") // White
)

// Base styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorMuted).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)
)

// Keyboard styles
var (
	KeyStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorMuted).
			Align(lipgloss.Center)

	ActiveKeyStyle = KeyStyle.
			Foreground(ColorHighlight).
			Background(ColorPrimary).
			Bold(true)

	// LockedKeyStyle marks a key held in its on state, like locked caps
	LockedKeyStyle = KeyStyle.
			Foreground(ColorSuccess).
			Bold(true)

	MenuStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Background(ColorSecondary).
			Align(lipgloss.Center)

	ActiveMenuStyle = MenuStyle.
			Background(ColorPrimary).
			Bold(true)

	CandidateStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Underline(true)

	PendingStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	ControlDescStyle = lipgloss.NewStyle().
				Foreground(ColorText)
)

// Status icons
var (
	IconLocked  = "⇪"
	IconUpper   = "⇧"
	IconLoading = "~"
	IconReady   = "✓"
	IconFailed  = "✗"
)

// FormatControl renders a key binding and its description
func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " - " + ControlDescStyle.Render(desc)
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}

	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
