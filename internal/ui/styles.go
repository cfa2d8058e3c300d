package ui

import (
	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/lipgloss"
)

// Theme colours.
const (
	colorAccent = lipgloss.Color("#FF8C42")
	colorGlow   = lipgloss.Color("#FF9F5A")
	colorWarm   = lipgloss.Color("#FFB84D")
	colorMuted  = lipgloss.Color("#6B7280")
	colorText   = lipgloss.Color("#FFFFFF")
	colorFail   = lipgloss.Color("#FF4757")
	colorSkip   = lipgloss.Color("#FFA502")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginTop(1)

	SubtitleStyle = lipgloss.NewStyle().Foreground(colorMuted).MarginBottom(1)

	// StatLabelStyle pads summary labels so values line up.
	StatLabelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(9)

	RowsStyle    = lipgloss.NewStyle().Foreground(colorWarm).Bold(true)
	ColumnsStyle = lipgloss.NewStyle().Foreground(colorAccent)
	FailedStyle  = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	SkippedStyle = lipgloss.NewStyle().Foreground(colorSkip)

	HelpStyle = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(1, 2)
)

func pickerStyles() filepicker.Styles {
	s := filepicker.DefaultStyles()
	s.Cursor = lipgloss.NewStyle().Foreground(colorAccent)
	s.Symlink = lipgloss.NewStyle().Foreground(colorWarm)
	s.Directory = lipgloss.NewStyle().Foreground(colorWarm)
	s.File = lipgloss.NewStyle().Foreground(colorText)
	s.Permission = lipgloss.NewStyle().Foreground(colorMuted)
	s.Selected = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	s.FileSize = lipgloss.NewStyle().Foreground(colorMuted)
	return s
}
