package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"time"
)

//go:embed theme/*.html
var themeFS embed.FS

// pageKinds are the page types the theme must provide a template for.
var pageKinds = []string{"index", "post", "page", "tag", "tags", "archive"}

var templateFuncs = template.FuncMap{
	"isoDate":  func(t time.Time) string { return t.Format("2006-01-02") },
	"longDate": func(t time.Time) string { return t.Format("January 2, 2006") },
}

// templateSet holds one parsed template per page kind. Each kind is parsed as
// its own set (base.html plus the kind file defining "main") so the kinds
// cannot shadow each other's "main" definition.
type templateSet struct {
	byKind map[string]*template.Template
}

// loadTemplates parses the embedded theme, or the override directory when one
// is configured. A missing or broken template is a build failure.
func loadTemplates(overrideDir string) (*templateSet, error) {
	var fsys fs.FS
	var prefix string
	if overrideDir != "" {
		if st, err := os.Stat(overrideDir); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("templates dir not found: %s", overrideDir)
		}
		fsys = os.DirFS(overrideDir)
	} else {
		fsys = themeFS
		prefix = "theme/"
	}

	set := &templateSet{byKind: make(map[string]*template.Template, len(pageKinds))}
	for _, kind := range pageKinds {
		t, err := template.New(kind).Funcs(templateFuncs).ParseFS(fsys, prefix+"base.html", prefix+kind+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		if t.Lookup("base") == nil || t.Lookup("main") == nil {
			return nil, fmt.Errorf("template %s must define \"base\" and \"main\"", kind)
		}
		set.byKind[kind] = t
	}
	return set, nil
}

// render executes a page kind into a byte slice. Rendering into a buffer
// first means execution errors never leave a truncated file behind.
func (s *templateSet) render(kind string, data PageData) ([]byte, error) {
	t, ok := s.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("unknown page kind %q", kind)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}
	return buf.Bytes(), nil
}
