package dmailtui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette holds ANSI-256 color codes for one theme.
type Palette struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Own        string
	Other      string
	Badge      string
	Error      string
	Selected   string
	Border     string
}

// DefaultPalette is the baseline dark palette.
var DefaultPalette = Palette{
	Name:       "default",
	Foreground: "252",
	Muted:      "245",
	Accent:     "75",
	Own:        "81",
	Other:      "147",
	Badge:      "203",
	Error:      "203",
	Selected:   "75",
	Border:     "240",
}

// HighContrastPalette favors legibility on low-quality terminals.
var HighContrastPalette = Palette{
	Name:       "high-contrast",
	Foreground: "231",
	Muted:      "250",
	Accent:     "51",
	Own:        "87",
	Other:      "225",
	Badge:      "196",
	Error:      "196",
	Selected:   "51",
	Border:     "231",
}

// Palettes lists available palettes by name.
var Palettes = map[string]Palette{
	DefaultPalette.Name:      DefaultPalette,
	HighContrastPalette.Name: HighContrastPalette,
}

func paletteFor(name string) (Palette, error) {
	if name == "" {
		return DefaultPalette, nil
	}
	p, ok := Palettes[name]
	if !ok {
		return Palette{}, fmt.Errorf("invalid theme %q", name)
	}
	return p, nil
}

type styles struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	own      lipgloss.Style
	other    lipgloss.Style
	badge    lipgloss.Style
	errText  lipgloss.Style
	selected lipgloss.Style
	pane     lipgloss.Style
}

func newStyles(p Palette) styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Accent)),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		own:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Own)),
		other:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Other)),
		badge:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Badge)),
		errText:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Selected)),
		pane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.Border)).
			Padding(0, 1),
	}
}
