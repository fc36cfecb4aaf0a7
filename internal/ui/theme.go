package ui

import (
	"image/color"

	"charm.land/lipgloss/v2"
)

type Theme struct {
	Header      lipgloss.Style
	Status      lipgloss.Style
	PanelTitle  lipgloss.Style
	PanelBorder lipgloss.Style
	PanelBody   lipgloss.Style
	Accent      lipgloss.Style
	Focus       lipgloss.Style
	Pass        lipgloss.Style
	Fail        lipgloss.Style
	Pending     lipgloss.Style
	Muted       lipgloss.Style
	Added       lipgloss.Style
	Removed     lipgloss.Style
	Code        lipgloss.Style
}

type palette struct {
	bar     color.Color
	status  color.Color
	text    color.Color
	border  color.Color
	title   color.Color
	accent  color.Color
	pass    color.Color
	fail    color.Color
	pending color.Color
	muted   color.Color
	code    color.Color
}

func DefaultTheme() Theme {
	return ThemeForVariant("night")
}

func ThemeForVariant(variant string) Theme {
	switch variant {
	case "paper":
		return themeFrom(palette{
			bar:     lipgloss.Color("#1E2430"),
			status:  lipgloss.Color("#30394A"),
			text:    lipgloss.Color("#F4F6FA"),
			border:  lipgloss.Color("#4A5972"),
			title:   lipgloss.Color("#F2B872"),
			accent:  lipgloss.Color("#86B6F6"),
			pass:    lipgloss.Color("#80C4A3"),
			fail:    lipgloss.Color("#D17A86"),
			pending: lipgloss.Color("#F2B872"),
			muted:   lipgloss.Color("#A3ACC2"),
			code:    lipgloss.Color("#E8E2D0"),
		})
	case "retro":
		return themeFrom(palette{
			bar:     lipgloss.Color("#07150A"),
			status:  lipgloss.Color("#12301A"),
			text:    lipgloss.Color("#C5F7C4"),
			border:  lipgloss.Color("#1F5C2F"),
			title:   lipgloss.Color("#E5D47A"),
			accent:  lipgloss.Color("#9CF5A2"),
			pass:    lipgloss.Color("#9CF5A2"),
			fail:    lipgloss.Color("#FF6B6B"),
			pending: lipgloss.Color("#E5D47A"),
			muted:   lipgloss.Color("#73A17A"),
			code:    lipgloss.Color("#C5F7C4"),
		})
	default:
		return themeFrom(palette{
			bar:     lipgloss.Color("#0E1420"),
			status:  lipgloss.Color("#1B2740"),
			text:    lipgloss.Color("#EAF2FF"),
			border:  lipgloss.Color("#4B5F8A"),
			title:   lipgloss.Color("#5EEBFF"),
			accent:  lipgloss.Color("#5EEBFF"),
			pass:    lipgloss.Color("#67F0A8"),
			fail:    lipgloss.Color("#FF6F91"),
			pending: lipgloss.Color("#FFC857"),
			muted:   lipgloss.Color("#9CAAC6"),
			code:    lipgloss.Color("#D7E3FF"),
		})
	}
}

func themeFrom(p palette) Theme {
	return Theme{
		Header:      lipgloss.NewStyle().Background(p.bar).Foreground(p.text).Padding(0, 1),
		Status:      lipgloss.NewStyle().Background(p.status).Foreground(p.text).Padding(0, 1),
		PanelTitle:  lipgloss.NewStyle().Foreground(p.title).Bold(true),
		PanelBorder: lipgloss.NewStyle().Foreground(p.border),
		PanelBody:   lipgloss.NewStyle().Foreground(p.text),
		Accent:      lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		Focus:       lipgloss.NewStyle().Foreground(p.bar).Background(p.accent).Bold(true),
		Pass:        lipgloss.NewStyle().Foreground(p.pass).Bold(true),
		Fail:        lipgloss.NewStyle().Foreground(p.fail).Bold(true),
		Pending:     lipgloss.NewStyle().Foreground(p.pending),
		Muted:       lipgloss.NewStyle().Foreground(p.muted),
		Added:       lipgloss.NewStyle().Foreground(p.pass),
		Removed:     lipgloss.NewStyle().Foreground(p.fail),
		Code:        lipgloss.NewStyle().Foreground(p.code),
	}
}
