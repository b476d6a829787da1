package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// UI color scheme
var (
	red    = lipgloss.AdaptiveColor{Light: "#FE5F86", Dark: "#FE5F86"}
	indigo = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	green  = lipgloss.AdaptiveColor{Light: "#02BA84", Dark: "#02BF87"}
	blue   = lipgloss.AdaptiveColor{Light: "#1E88E5", Dark: "#42A5F5"}
	yellow = lipgloss.AdaptiveColor{Light: "#FFC107", Dark: "#FFD54F"}
	gray   = lipgloss.AdaptiveColor{Light: "#9E9E9E", Dark: "#BDBDBD"}
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(indigo).
			Bold(true)

	senderStyle = lipgloss.NewStyle().
			Foreground(blue).
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(yellow)

	memoryStyle = lipgloss.NewStyle().
			Foreground(indigo)

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)
)
