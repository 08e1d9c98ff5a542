package site

import (
	"encoding/xml"
	"fmt"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// buildSitemap lists every page URL. Lastmod comes from post dates only;
// undated pages carry no lastmod.
func buildSitemap(site SiteData, posts, pages []*PostView) ([]byte, error) {
	base := site.BaseURL

	urlset := sitemapURLSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	urlset.URLs = append(urlset.URLs, sitemapURL{Loc: base + "/"})
	for _, p := range posts {
		entry := sitemapURL{Loc: base + p.URL}
		if !p.Date.IsZero() {
			entry.LastMod = p.Date.UTC().Format("2006-01-02")
		}
		urlset.URLs = append(urlset.URLs, entry)
	}
	for _, p := range pages {
		urlset.URLs = append(urlset.URLs, sitemapURL{Loc: base + p.URL})
	}

	out, err := xml.MarshalIndent(urlset, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sitemap: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
