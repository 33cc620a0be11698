package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headingStyle = lipgloss.NewStyle().Bold(true)
)

// styleStatusLine colors a rule status line by its tag.
func styleStatusLine(line string) string {
	switch {
	case strings.HasPrefix(line, "[OK]"):
		return okStyle.Render(line)
	case strings.HasPrefix(line, "[VIOLATIONS]"):
		return warnStyle.Render(line)
	case strings.HasPrefix(line, "[FAILED]"), strings.HasPrefix(line, "[LOAD FAILED]"):
		return failStyle.Render(line)
	case strings.HasPrefix(line, "[SKIP]"), strings.HasPrefix(line, "[NO SCANNER]"):
		return mutedStyle.Render(line)
	}
	return line
}
