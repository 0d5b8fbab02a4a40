package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
)

const (
	// minMarkdownWrap keeps rendered markdown readable in narrow panes.
	minMarkdownWrap = 24
	// maxRendererWidths bounds the glamour renderers kept across resizes.
	maxRendererWidths = 4
	// maxRenderedBodies bounds the output cache; it is dropped wholesale when full.
	maxRenderedBodies = 256
)

// renderKey identifies one rendered markdown body at one wrap width.
type renderKey struct {
	width int
	body  string
}

// markdownRenderer renders task notes and comment bodies.
// The notes and thread panes wrap at different widths, so glamour renderers
// are kept per width and rendered output is memoized across View calls.
type markdownRenderer struct {
	renderers map[int]*glamour.TermRenderer
	rendered  map[renderKey]string
}

// render converts markdown into ANSI-styled text wrapped to width.
// When glamour fails the raw text is word-wrapped instead, and not cached.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := max(width, minMarkdownWrap)
	k := renderKey{width: wrapWidth, body: markdown}
	if out, ok := r.rendered[k]; ok {
		return out
	}

	tr, err := r.termRenderer(wrapWidth)
	if err != nil {
		return plainWrap(markdown, wrapWidth)
	}
	out, err := tr.Render(markdown)
	if err != nil {
		return plainWrap(markdown, wrapWidth)
	}
	out = strings.TrimRight(out, "\n")

	if r.rendered == nil || len(r.rendered) >= maxRenderedBodies {
		r.rendered = make(map[renderKey]string)
	}
	r.rendered[k] = out
	return out
}

// renderLines renders markdown and splits it into rows, keeping blank rows.
func (r *markdownRenderer) renderLines(markdown string, width int) []string {
	out := r.render(markdown, width)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// termRenderer returns the glamour renderer for one wrap width.
func (r *markdownRenderer) termRenderer(width int) (*glamour.TermRenderer, error) {
	if tr, ok := r.renderers[width]; ok {
		return tr, nil
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	if r.renderers == nil || len(r.renderers) >= maxRendererWidths {
		r.renderers = make(map[int]*glamour.TermRenderer, maxRendererWidths)
	}
	r.renderers[width] = tr
	return tr, nil
}

// plainWrap word-wraps text without markdown styling.
func plainWrap(text string, width int) string {
	lines := strings.Split(lipgloss.NewStyle().Width(width).Render(text), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}
