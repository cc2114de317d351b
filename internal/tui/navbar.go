package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type ViewType int

const (
	ViewBundles ViewType = iota
	ViewQueue
)

// TreeWidthPct is the percentage of terminal width used for the left pane.
const TreeWidthPct = 55

var viewNames = []string{"Bundles", "Queue"}

func renderNavbar(active ViewType, connected bool, counts [2]int, stats string, width int) string {
	activeStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Underline(true)
	inactiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	connStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	waitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statsStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var tabs string
	for i, name := range viewNames {
		if i > 0 {
			tabs += inactiveStyle.Render(" │ ")
		}
		countSuffix := ""
		if counts[i] > 0 {
			countSuffix = fmt.Sprintf(" (%d)", counts[i])
		}
		if ViewType(i) == active {
			tabs += activeStyle.Render(name + countSuffix)
		} else {
			tabs += inactiveStyle.Render(name) + countStyle.Render(countSuffix)
		}
	}

	left := " " + tabs
	if stats != "" {
		left += "   " + statsStyle.Render(stats)
	}

	var conn string
	if connected {
		conn = connStyle.Render("● extension connected")
	} else {
		conn = waitStyle.Render("○ waiting for extension")
	}
	gap := width - lipgloss.Width(left) - lipgloss.Width(conn) - 2
	if gap < 1 {
		gap = 1
	}
	padding := lipgloss.NewStyle().Width(gap)

	return left + padding.Render("") + conn + " "
}
