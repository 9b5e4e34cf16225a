// Package tui provides a live terminal dashboard for a primary run.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows queue depth, awaited suites, worker counts, and suite
// completion totals, refreshed on every dispatch-loop heartbeat.
package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// ANSI-256 palette. Numeric codes degrade better over ssh than truecolor
// hex, and most suites run on remote hosts.
var (
	colorAccent = lipgloss.Color("39")  // blue
	colorOK     = lipgloss.Color("114") // green
	colorWarn   = lipgloss.Color("214") // orange
	colorFail   = lipgloss.Color("203") // red
	colorDim    = lipgloss.Color("245") // gray
	colorFrame  = lipgloss.Color("238") // dark gray
)

var (
	bannerStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true).
			Underline(true)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorFrame).
			Padding(0, 2)

	keyStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(16)

	numStyle = lipgloss.NewStyle().
			Bold(true)

	okStyle   = numStyle.Foreground(colorOK)
	warnStyle = numStyle.Foreground(colorWarn)
	failStyle = numStyle.Foreground(colorFail)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true).
			MarginTop(1)
)

// row renders one key-value dashboard line with the default number style.
func row(key, value string) string {
	return rowStyled(key, value, numStyle)
}

// rowStyled renders one key-value dashboard line with an explicit value
// style, used for counters that change color with their value.
func rowStyled(key, value string, st lipgloss.Style) string {
	return keyStyle.Render(key+":") + st.Render(value)
}

// countStyle colors a counter green at zero and red above it.
func countStyle(n int64) lipgloss.Style {
	if n > 0 {
		return failStyle
	}
	return okStyle
}
