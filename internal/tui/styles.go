package tui

import "github.com/charmbracelet/lipgloss"

// linkpath color palette, in the same spirit as the teacher's ice/deep
// palette but shifted toward the forwarding-engine domain (labels are
// rendered in the accent color; reachability states get their own hues).
var (
	ColorAccent = lipgloss.Color("#7AA2F7")
	ColorDeep   = lipgloss.Color("#565F89")
	ColorText   = lipgloss.Color("#C0CAF5")
	ColorGood   = lipgloss.Color("#9ECE6A")
	ColorWarn   = lipgloss.Color("#E0AF68")
	ColorBad    = lipgloss.Color("#F7768E")
	ColorMuted  = lipgloss.Color("#565F89")
)

var (
	StyleBase = lipgloss.NewStyle().Foreground(ColorText)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDeep).
			Padding(0, 1)

	StyleTitle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)

	StyleSubtitle = lipgloss.NewStyle().Foreground(ColorDeep).Italic(true)

	StyleTabActive = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Underline(true).
			Padding(0, 1)

	StyleTabInactive = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDeep).
			Padding(0, 1).
			Margin(0, 1)

	StyleStateGood      = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStateUnreach   = lipgloss.NewStyle().Foreground(ColorBad).Bold(true)
	StyleStatePending   = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	StyleStateAbsent    = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleStatusBar = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1)
)
