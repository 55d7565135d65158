// Package tui provides the bubbletea live view for a codchestra run and the
// monitor dashboard.
package tui

import "github.com/charmbracelet/lipgloss"

// defaultAccentColor is the default accent color (indigo).
const defaultAccentColor = "#7D56F4"

var (
	colorWhite  = lipgloss.Color("#FAFAFA")
	colorGray   = lipgloss.Color("#888888")
	colorGreen  = lipgloss.Color("#6BCB77")
	colorYellow = lipgloss.Color("#FFD93D")
	colorRed    = lipgloss.Color("#FF6B6B")
	colorOrange = lipgloss.Color("#FFA54F")
)

var (
	footerStyle    = lipgloss.NewStyle().Foreground(colorGray)
	timestampStyle = lipgloss.NewStyle().Foreground(colorGray)
	infoStyle      = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle      = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	resultStyle    = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	stoppedStyle   = lipgloss.NewStyle().Foreground(colorOrange).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(colorGray)
)

// styles holds the accent-dependent styles.
type styles struct {
	header lipgloss.Style
	panel  lipgloss.Style
	title  lipgloss.Style
}

func newStyles(accent string) styles {
	if accent == "" {
		accent = defaultAccentColor
	}
	c := lipgloss.Color(accent)
	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(colorWhite).Background(c).Padding(0, 1),
		panel:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c).Padding(0, 1),
		title:  lipgloss.NewStyle().Bold(true).Foreground(c),
	}
}

// runState is the badge shown in the header.
type runState int

const (
	stateRunning runState = iota
	stateDone
	stateStopped
	stateFailed
)

func (s runState) badge() string {
	switch s {
	case stateDone:
		return resultStyle.Render("● done")
	case stateStopped:
		return stoppedStyle.Render("● stopped")
	case stateFailed:
		return errorStyle.Render("● error")
	default:
		return warnStyle.Render("● running")
	}
}
