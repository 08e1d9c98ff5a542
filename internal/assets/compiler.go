package assets

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/logfields"
	"git.home.luguber.info/inful/blogbuilder/internal/markdown"
)

//go:embed styles/base.css styles/utilities.css
var styleFS embed.FS

// StylesheetPath is the output-relative location of the compiled stylesheet,
// matching the href in the page templates.
const StylesheetPath = "assets/site.css"

// Compiler assembles the single site stylesheet.
type Compiler struct {
	cfg config.StylesConfig
}

// NewCompiler creates a stylesheet compiler for the given styles config.
func NewCompiler(cfg config.StylesConfig) *Compiler {
	return &Compiler{cfg: cfg}
}

// Compile produces the stylesheet. documents are the rendered HTML pages of
// this build; utility rules referencing only classes absent from them are
// dropped (unless purging is disabled). The user's custom CSS is appended
// verbatim and never purged, so custom utility classes referenced by
// templates always survive.
func (c *Compiler) Compile(documents [][]byte) ([]byte, error) {
	var out strings.Builder

	base, err := styleFS.ReadFile("styles/base.css")
	if err != nil {
		return nil, fmt.Errorf("read base stylesheet: %w", err)
	}
	out.Write(base)
	out.WriteString("\n")

	highlight, err := markdown.HighlightCSS()
	if err != nil {
		return nil, err
	}
	out.WriteString("/* Syntax highlighting */\n")
	out.WriteString(highlight)
	out.WriteString("\n")

	utilities, err := styleFS.ReadFile("styles/utilities.css")
	if err != nil {
		return nil, fmt.Errorf("read utilities stylesheet: %w", err)
	}
	if c.cfg.PurgeEnabled() {
		used, err := CollectClasses(documents)
		if err != nil {
			return nil, fmt.Errorf("scan rendered pages for classes: %w", err)
		}
		out.WriteString(purgeRules(parseRules(string(utilities)), used))
	} else {
		out.Write(utilities)
		out.WriteString("\n")
	}

	if c.cfg.CustomCSS != "" {
		custom, err := os.ReadFile(c.cfg.CustomCSS)
		if err != nil {
			if os.IsNotExist(err) {
				slog.Debug("No custom stylesheet found", logfields.Path(c.cfg.CustomCSS))
			} else {
				return nil, fmt.Errorf("read custom stylesheet: %w", err)
			}
		} else {
			out.WriteString("/* Custom */\n")
			out.Write(custom)
			out.WriteString("\n")
		}
	}

	return []byte(out.String()), nil
}
