// Package markdown renders post bodies to HTML.
//
// Rendering uses Goldmark with GFM extensions. Fenced code blocks are
// highlighted with chroma in classes mode, so the color palette lives in the
// compiled stylesheet instead of inline style attributes.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// HighlightStyle is the chroma style used for the generated highlight CSS.
const HighlightStyle = "github"

// markdownInstance is initialized once and reused. The parser configuration
// (extensions, options) never changes and the goldmark instance is safe to
// share; actual parsing creates per-call state via Convert.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
				extension.Typographer,
			),
			goldmark.WithRendererOptions(
				// Posts are authored locally; raw HTML passthrough is intended.
				gmhtml.WithUnsafe(),
				renderer.WithNodeRenderers(
					util.Prioritized(&codeBlockRenderer{}, 200),
				),
			),
		)
	})
	return markdownInstance
}

// Render converts a Markdown body (frontmatter already removed) to HTML.
func Render(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// Summary extracts the plain text of the first paragraph, for list pages and
// feed entries when the frontmatter carries no description.
func Summary(body []byte) string {
	root := getMarkdown().Parser().Parse(text.NewReader(body))

	var out strings.Builder
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		para, ok := n.(*gmast.Paragraph)
		if !ok {
			return gmast.WalkContinue, nil
		}
		for i := 0; i < para.Lines().Len(); i++ {
			seg := para.Lines().At(i)
			out.Write(seg.Value(body))
		}
		return gmast.WalkStop, nil
	})

	return strings.TrimSpace(out.String())
}

// HighlightCSS returns the chroma class definitions for HighlightStyle.
func HighlightCSS() (string, error) {
	style := styles.Get(HighlightStyle)
	if style == nil {
		style = styles.Fallback
	}
	formatter := chromahtml.New(chromahtml.WithClasses(true))

	var buf bytes.Buffer
	if err := formatter.WriteCSS(&buf, style); err != nil {
		return "", fmt.Errorf("write highlight css: %w", err)
	}
	return buf.String(), nil
}

// codeBlockRenderer renders fenced code blocks through chroma instead of
// goldmark's plain <pre><code> output.
type codeBlockRenderer struct{}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(gmast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node gmast.Node, entering bool) (gmast.WalkStatus, error) {
	if !entering {
		return gmast.WalkContinue, nil
	}
	block := node.(*gmast.FencedCodeBlock)

	var code bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		seg := block.Lines().At(i)
		code.Write(seg.Value(source))
	}

	language := string(block.Language(source))
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code.String())
	if err != nil {
		return gmast.WalkStop, fmt.Errorf("tokenise code block: %w", err)
	}

	style := styles.Get(HighlightStyle)
	if style == nil {
		style = styles.Fallback
	}
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.Format(w, style, iterator); err != nil {
		return gmast.WalkStop, fmt.Errorf("format code block: %w", err)
	}

	return gmast.WalkSkipChildren, nil
}
