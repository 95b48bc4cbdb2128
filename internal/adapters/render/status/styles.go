package status

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/afk-farmer/internal/domain"
)

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	session    lipgloss.Style
	detail     lipgloss.Style
	warning    lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	label      lipgloss.Style
	meta       lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
	logTime    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		session:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		label:      lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		meta:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		logTime:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func statusStyle(status domain.Status) lipgloss.Style {
	switch status {
	case domain.StatusFarming:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	case domain.StatusStarting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	case domain.StatusResting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	case domain.StatusStopped:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	}
}

func severityMark(severity domain.Severity) string {
	switch severity {
	case domain.SeveritySuccess:
		return "+"
	case domain.SeverityWarn:
		return "!"
	case domain.SeverityError:
		return "x"
	default:
		return " "
	}
}
