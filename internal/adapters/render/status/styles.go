package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	account    lipgloss.Style
	detail     lipgloss.Style
	warning    lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	key        lipgloss.Style
	meta       lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
	badges     map[string]lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		account:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		key:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		meta:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		badges: map[string]lipgloss.Style{
			"active":           lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
			"succeeded":        lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
			"completed":        lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
			"cooling_down":     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			"in_progress":      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			"running":          lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			"disabled":         lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
			"failed_permanent": lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
			"cancelled":        lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
			"unauthenticated":  lipgloss.NewStyle().Foreground(lipgloss.Color("177")),
		},
	}
}

func (s styles) badge(state string) string {
	style, ok := s.badges[state]
	if !ok {
		style = s.meta
	}
	return style.Render("[" + state + "]")
}
