package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_BasicMarkdown(t *testing.T) {
	out, err := Render([]byte("# Heading\n\nSome *emphasis* here.\n"))
	require.NoError(t, err)

	html := string(out)
	require.Contains(t, html, "<h1>Heading</h1>")
	require.Contains(t, html, "<em>emphasis</em>")
}

func TestRender_GFMTable(t *testing.T) {
	out, err := Render([]byte("| a | b |\n|---|---|\n| 1 | 2 |\n"))
	require.NoError(t, err)
	require.Contains(t, string(out), "<table>")
}

func TestRender_FencedCodeBlockUsesChromaClasses(t *testing.T) {
	out, err := Render([]byte("```go\nfunc main() {}\n```\n"))
	require.NoError(t, err)

	html := string(out)
	// Classes mode: spans carry chroma class names, no inline styles.
	require.Contains(t, html, "chroma")
	require.NotContains(t, html, "style=\"color")
}

func TestRender_UnknownLanguageFallsBack(t *testing.T) {
	out, err := Render([]byte("```nosuchlang\nplain text\n```\n"))
	require.NoError(t, err)
	require.Contains(t, string(out), "plain text")
}

func TestRender_Deterministic(t *testing.T) {
	input := []byte("# T\n\n```go\npackage main\n```\n\n- a\n- b\n")

	first, err := Render(input)
	require.NoError(t, err)
	second, err := Render(input)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSummary_FirstParagraphOnly(t *testing.T) {
	body := []byte("# Heading\n\nFirst paragraph text.\n\nSecond paragraph.\n")
	require.Equal(t, "First paragraph text.", Summary(body))
}

func TestSummary_EmptyBody(t *testing.T) {
	require.Empty(t, Summary(nil))
}

func TestHighlightCSS_ContainsChromaSelectors(t *testing.T) {
	css, err := HighlightCSS()
	require.NoError(t, err)
	require.Contains(t, css, ".chroma")
}
