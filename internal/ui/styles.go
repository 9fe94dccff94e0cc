package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Each color has a light and a dark terminal variant.
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "162", Dark: "212"}
	ColorSuccess   = lipgloss.AdaptiveColor{Light: "28", Dark: "82"}
	ColorWarning   = lipgloss.AdaptiveColor{Light: "166", Dark: "214"}
	ColorError     = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	ColorMuted     = lipgloss.AdaptiveColor{Light: "242", Dark: "245"}
	ColorHighlight = lipgloss.AdaptiveColor{Light: "136", Dark: "226"}
)

// Styles
var (
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	// Index listings
	IndexID  = lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	FilePath = lipgloss.NewStyle().Foreground(ColorPrimary)

	SectionTitle = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true).MarginTop(1)
	Divider      = lipgloss.NewStyle().Foreground(ColorMuted)

	// Answers
	Citation = lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	Snippet  = lipgloss.NewStyle().Foreground(ColorMuted).PaddingLeft(6)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	if width < 0 {
		width = 0
	}
	return Divider.Render(strings.Repeat("─", width))
}

// FormatSource renders a cited source with its bracketed number and, for
// paged documents, the page.
func FormatSource(i int, source string, page *int) string {
	ref := FilePath.Render(source)
	if page != nil {
		ref += Dim.Render(fmt.Sprintf(" p.%d", *page))
	}
	return Citation.Render(fmt.Sprintf("[%d]", i)) + " " + ref
}

// FormatBytes formats a byte count as a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
