// Package content discovers and models the source files of the site: Markdown
// posts and pages plus the assets that sit next to them.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"time"

	"git.home.luguber.info/inful/blogbuilder/internal/frontmatter"
)

// Kind distinguishes dated posts from standalone pages.
type Kind string

const (
	KindPost Kind = "post"
	KindPage Kind = "page"
)

// Page represents a discovered Markdown source file.
type Page struct {
	SourcePath   string // absolute path to the file
	RelativePath string // path relative to the content directory
	Kind         Kind
	Meta         frontmatter.Meta
	Body         []byte // markdown body, frontmatter removed
	Date         time.Time
	Slug         string
	Hash         string // sha256 of the raw source file
}

// Asset is a non-Markdown file found inside the content tree (images etc.),
// copied through to the output next to its page.
type Asset struct {
	SourcePath   string
	RelativePath string
}

// URL returns the site-relative URL of the rendered page.
func (p *Page) URL() string {
	switch p.Kind {
	case KindPost:
		return "/posts/" + p.Slug + "/"
	default:
		return "/" + p.Slug + "/"
	}
}

// OutputPath returns the output-relative path of the rendered HTML file.
func (p *Page) OutputPath() string {
	return path.Join(p.URL(), "index.html")[1:]
}

// Draft reports whether the page is marked as a draft.
func (p *Page) Draft() bool { return p.Meta.Draft }

// Future reports whether the page is dated after now.
func (p *Page) Future(now time.Time) bool {
	return !p.Date.IsZero() && p.Date.After(now)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
