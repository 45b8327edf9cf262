package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}

// Ayu palette.
var (
	ColorMuted    = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent   = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
	ColorRunning  = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorDone     = lipgloss.AdaptiveColor{Light: "#6cbf43", Dark: "#aad94c"}
	ColorFailed   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f26d78"}
	ColorPlanning = lipgloss.AdaptiveColor{Light: "#a37acc", Dark: "#d2a6ff"}
	ColorBarEmpty = lipgloss.AdaptiveColor{Light: "#d9d8d7", Dark: "#3d424d"}
)

var (
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	BoldStyle     = lipgloss.NewStyle().Bold(true)
	RunningStyle  = lipgloss.NewStyle().Foreground(ColorRunning)
	DoneStyle     = lipgloss.NewStyle().Foreground(ColorDone)
	FailedStyle   = lipgloss.NewStyle().Foreground(ColorFailed).Bold(true)
	PlanningStyle = lipgloss.NewStyle().Foreground(ColorPlanning)
	BarEmptyStyle = lipgloss.NewStyle().Foreground(ColorBarEmpty)
)

// Status icons.
const (
	IconNotStarted = "○"
	IconPlanning   = "◌"
	IconRunning    = "◐"
	IconBlocked    = "●"
	IconDone       = "✓"
	IconFailed     = "✗"
	IconPaused     = "‖"
)

// style returns the style and icon for a work or vision status.
func style(status string) (lipgloss.Style, string) {
	switch status {
	case "in_progress", "executing":
		return RunningStyle, IconRunning
	case "completed":
		return DoneStyle, IconDone
	case "failed":
		return FailedStyle, IconFailed
	case "blocked":
		return FailedStyle, IconBlocked
	case "planning", "pending":
		return PlanningStyle, IconPlanning
	case "paused":
		return MutedStyle, IconPaused
	default:
		return lipgloss.NewStyle(), IconNotStarted
	}
}

// RenderStatusIcon returns the colored icon for a status.
func RenderStatusIcon(status string) string {
	s, icon := style(status)
	return s.Render(icon)
}

// RenderStatus renders a status string with its color.
func RenderStatus(status string) string {
	s, _ := style(status)
	return s.Render(status)
}

// RenderProgress draws a bar of width cells followed by the percentage.
func RenderProgress(pct, width int) string {
	if width <= 0 {
		width = 20
	}
	pct = max(0, min(100, pct))
	filled := pct * width / 100
	bar := strings.Repeat("█", filled)
	rest := strings.Repeat("░", width-filled)
	fill := RunningStyle
	if pct == 100 {
		fill = DoneStyle
	}
	return fmt.Sprintf("%s%s %3d%%", fill.Render(bar), BarEmptyStyle.Render(rest), pct)
}

func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderBold(s string) string   { return BoldStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderVerdict renders a pass/fail word.
func RenderVerdict(ok bool, pass, fail string) string {
	if ok {
		return DoneStyle.Render(pass)
	}
	return FailedStyle.Render(fail)
}
