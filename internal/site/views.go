// Package site renders discovered content into the final static site.
package site

import (
	"html/template"
	"strings"
	"time"

	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/content"
)

// SiteData is the site-wide template context.
type SiteData struct {
	Title       string
	Author      string
	Description string
	BaseURL     string
	Language    string
}

// PostView is the template-facing view of a rendered page.
type PostView struct {
	Title   string
	Slug    string
	URL     string
	Date    time.Time
	Tags    []string
	Summary string
	Content template.HTML
}

// TagView is one entry on the tag index.
type TagView struct {
	Name  string
	Count int
}

// YearView groups archive posts by year.
type YearView struct {
	Year  int
	Posts []*PostView
}

// PageData is the per-page template context.
type PageData struct {
	Site        SiteData
	Title       string
	Description string
	Canonical   string
	LiveReload  bool

	Post  *PostView
	Page  *PostView
	Posts []*PostView
	Tag   string
	Tags  []TagView
	Years []YearView
}

func newSiteData(cfg config.SiteConfig) SiteData {
	return SiteData{
		Title:       cfg.Title,
		Author:      cfg.Author,
		Description: cfg.Description,
		BaseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		Language:    cfg.Language,
	}
}

// newPostView assembles the view for a page whose body has already been
// rendered (or served from the render cache).
func newPostView(p *content.Page, html []byte, summary string) *PostView {
	if p.Meta.Description != "" {
		summary = p.Meta.Description
	}

	tags := make([]string, 0, len(p.Meta.Tags))
	for _, tag := range p.Meta.Tags {
		tag = content.Slugify(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	return &PostView{
		Title:   p.Meta.Title,
		Slug:    p.Slug,
		URL:     p.URL(),
		Date:    p.Date,
		Tags:    tags,
		Summary: summary,
		Content: template.HTML(html),
	}
}

// groupByYear splits posts (already newest first) into archive year groups.
func groupByYear(posts []*PostView) []YearView {
	var years []YearView
	for _, p := range posts {
		year := p.Date.Year()
		if len(years) == 0 || years[len(years)-1].Year != year {
			years = append(years, YearView{Year: year})
		}
		years[len(years)-1].Posts = append(years[len(years)-1].Posts, p)
	}
	return years
}
