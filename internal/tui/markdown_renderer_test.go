package tui

import (
	"strings"
	"testing"

	"charm.land/lipgloss/v2"
)

// TestMarkdownRendererCaches verifies renderers are kept per width and output is memoized.
func TestMarkdownRendererCaches(t *testing.T) {
	r := &markdownRenderer{}
	if got := r.render("  \n ", 40); got != "" {
		t.Fatalf("render(blank) = %q, want empty", got)
	}
	if got := r.renderLines("", 40); got != nil {
		t.Fatalf("renderLines(blank) = %#v, want nil", got)
	}

	first := r.render("waiting on **vendor** quote", 40)
	if !strings.Contains(first, "vendor") {
		t.Fatalf("render() = %q, want body text", first)
	}
	if again := r.render("waiting on **vendor** quote", 40); again != first {
		t.Fatalf("second render differs: %q vs %q", again, first)
	}
	if len(r.rendered) != 1 || len(r.renderers) != 1 {
		t.Fatalf("cache sizes rendered=%d renderers=%d, want 1/1", len(r.rendered), len(r.renderers))
	}

	r.render("waiting on **vendor** quote", 5)
	if _, ok := r.renderers[minMarkdownWrap]; !ok {
		t.Fatalf("expected narrow widths to clamp to %d, got %v", minMarkdownWrap, r.renderers)
	}
	for width := 50; width < 50+maxRendererWidths+2; width++ {
		r.render("x", width)
	}
	if len(r.renderers) > maxRendererWidths {
		t.Fatalf("renderers = %d, want at most %d", len(r.renderers), maxRendererWidths)
	}
}

// TestPlainWrap verifies the unstyled fallback wraps words to the pane width.
func TestPlainWrap(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta"
	got := plainWrap(text, 12)
	lines := strings.Split(got, "\n")
	if len(lines) < 3 {
		t.Fatalf("plainWrap() = %q, want several lines", got)
	}
	for _, line := range lines {
		if w := lipgloss.Width(line); w > 12 {
			t.Fatalf("line %q width %d exceeds 12", line, w)
		}
		if strings.HasSuffix(line, " ") {
			t.Fatalf("line %q keeps trailing padding", line)
		}
	}
	if strings.Join(strings.Fields(got), " ") != text {
		t.Fatalf("plainWrap() lost words: %q", got)
	}
}
