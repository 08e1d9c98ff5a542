package site

import (
	"encoding/xml"
	"fmt"
	"time"
)

// feedLimit caps the number of entries in the Atom feed.
const feedLimit = 20

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Xmlns   string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Author  *atomAuthor `xml:"author,omitempty"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomEntry struct {
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Link    atomLink    `xml:"link"`
	Summary string      `xml:"summary,omitempty"`
	Content atomContent `xml:"content"`
}

type atomContent struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

// buildFeed produces the Atom feed. The feed's updated timestamp is the
// newest post date, never the build time, so rebuilding unchanged content
// yields identical bytes.
func buildFeed(site SiteData, posts []*PostView) ([]byte, error) {
	base := site.BaseURL
	if base == "" {
		base = "urn:blogbuilder"
	}

	feed := atomFeed{
		Xmlns:   "http://www.w3.org/2005/Atom",
		Title:   site.Title,
		ID:      base + "/",
		Updated: atomTime(newestDate(posts)),
		Links: []atomLink{
			{Href: base + "/feed.xml", Rel: "self", Type: "application/atom+xml"},
			{Href: base + "/"},
		},
	}
	if site.Author != "" {
		feed.Author = &atomAuthor{Name: site.Author}
	}

	limit := len(posts)
	if limit > feedLimit {
		limit = feedLimit
	}
	for _, p := range posts[:limit] {
		feed.Entries = append(feed.Entries, atomEntry{
			Title:   p.Title,
			ID:      base + p.URL,
			Updated: atomTime(p.Date),
			Link:    atomLink{Href: base + p.URL},
			Summary: p.Summary,
			Content: atomContent{Type: "html", Body: string(p.Content)},
		})
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal feed: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

func newestDate(posts []*PostView) time.Time {
	var newest time.Time
	for _, p := range posts {
		if p.Date.After(newest) {
			newest = p.Date
		}
	}
	return newest
}

func atomTime(t time.Time) string {
	if t.IsZero() {
		return time.Unix(0, 0).UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}
