package ui

import (
	"github.com/charmbracelet/glamour"
)

const maxReadableWidth = 100

// RenderMarkdown renders a vision description. Plain text is returned when
// color is off or rendering fails.
func RenderMarkdown(markdown string) string {
	if markdown == "" || !ShouldUseColor() {
		return markdown
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(Width(80), maxReadableWidth)),
	)
	if err != nil {
		return markdown
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
