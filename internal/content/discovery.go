package content

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/blogbuilder/internal/frontmatter"
	"git.home.luguber.info/inful/blogbuilder/internal/logfields"
)

// Options controls which pages a discovery pass admits.
type Options struct {
	IncludeDrafts bool
	IncludeFuture bool
	Now           time.Time // zero means time.Now()
}

// Discovery walks the content directory and parses pages.
type Discovery struct {
	contentDir string
	opts       Options
}

// Result is the outcome of one discovery pass.
type Result struct {
	Posts  []*Page // date-descending, newest first
	Pages  []*Page // slug-ascending
	Assets []Asset

	SkippedDrafts int
	SkippedFuture int
	// NextPublish is the earliest date of a future-dated post excluded from
	// this pass; zero when none. The dev server uses it to schedule the
	// republish that makes the post visible.
	NextPublish time.Time
}

// NewDiscovery creates a discovery pass over contentDir.
func NewDiscovery(contentDir string, opts Options) *Discovery {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return &Discovery{contentDir: contentDir, opts: opts}
}

// datePrefix matches the conventional YYYY-MM-DD- filename prefix.
var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)$`)

// Discover parses every Markdown file under the content directory.
func (d *Discovery) Discover() (*Result, error) {
	absDir, err := filepath.Abs(d.contentDir)
	if err != nil {
		return nil, fmt.Errorf("resolve content dir: %w", err)
	}
	if st, statErr := os.Stat(absDir); statErr != nil || !st.IsDir() {
		return nil, fmt.Errorf("content dir not found or not a directory: %s", absDir)
	}

	result := &Result{}

	walkErr := filepath.WalkDir(absDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() {
			if strings.HasPrefix(name, ".") && path != absDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnoredFile(name) {
			return nil
		}

		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if !isMarkdownFile(name) {
			result.Assets = append(result.Assets, Asset{SourcePath: path, RelativePath: rel})
			return nil
		}

		page, pageErr := d.parsePage(path, rel)
		if pageErr != nil {
			return fmt.Errorf("parse %s: %w", rel, pageErr)
		}

		if page.Draft() && !d.opts.IncludeDrafts {
			slog.Debug("Skipping draft", logfields.File(rel))
			result.SkippedDrafts++
			return nil
		}
		if page.Future(d.opts.Now) && !d.opts.IncludeFuture {
			slog.Debug("Skipping future-dated post", logfields.File(rel), slog.Time("date", page.Date))
			result.SkippedFuture++
			if !page.Draft() && (result.NextPublish.IsZero() || page.Date.Before(result.NextPublish)) {
				result.NextPublish = page.Date
			}
			return nil
		}

		switch page.Kind {
		case KindPost:
			result.Posts = append(result.Posts, page)
		default:
			result.Pages = append(result.Pages, page)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sortPosts(result.Posts)
	sort.Slice(result.Pages, func(i, j int) bool { return result.Pages[i].Slug < result.Pages[j].Slug })

	if err := checkSlugCollisions(result); err != nil {
		return nil, err
	}

	slog.Info("Content discovered",
		slog.Int("posts", len(result.Posts)),
		slog.Int("pages", len(result.Pages)),
		slog.Int("assets", len(result.Assets)),
		slog.Int("skipped_drafts", result.SkippedDrafts),
		slog.Int("skipped_future", result.SkippedFuture))
	return result, nil
}

func (d *Discovery) parsePage(path, rel string) (*Page, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fm, body, _, _, err := frontmatter.Split(raw)
	if err != nil {
		return nil, err
	}
	meta, err := frontmatter.DecodeMeta(fm)
	if err != nil {
		return nil, err
	}

	page := &Page{
		SourcePath:   path,
		RelativePath: rel,
		Kind:         classifyKind(rel),
		Meta:         meta,
		Body:         body,
		Hash:         hashBytes(raw),
	}

	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	stem := base
	var filenameDate time.Time
	if m := datePrefix.FindStringSubmatch(base); m != nil {
		if t, perr := time.Parse("2006-01-02", m[1]); perr == nil {
			filenameDate = t
			stem = m[2]
		}
	}

	page.Date, err = meta.ParsedDate()
	if err != nil {
		return nil, err
	}
	if page.Date.IsZero() {
		page.Date = filenameDate
	}

	switch {
	case meta.Slug != "":
		page.Slug = Slugify(meta.Slug)
	case meta.Title != "":
		page.Slug = Slugify(meta.Title)
	default:
		page.Slug = Slugify(stem)
	}
	if page.Slug == "" {
		return nil, fmt.Errorf("cannot derive slug for %s", rel)
	}
	if page.Meta.Title == "" {
		page.Meta.Title = strings.ReplaceAll(stem, "-", " ")
	}

	return page, nil
}

// classifyKind maps content tree location to page kind: files under posts/
// are dated posts, everything else is a standalone page.
func classifyKind(rel string) Kind {
	if strings.HasPrefix(rel, "posts/") {
		return KindPost
	}
	return KindPage
}

// sortPosts orders newest first; undated posts sort last, ties break on slug
// so rebuild output is stable.
func sortPosts(posts []*Page) {
	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.Slug < b.Slug
	})
}

func checkSlugCollisions(result *Result) error {
	seen := make(map[string]string)
	for _, p := range append(append([]*Page{}, result.Posts...), result.Pages...) {
		url := p.URL()
		if prev, ok := seen[url]; ok {
			return fmt.Errorf("slug collision: %s and %s both map to %s", prev, p.RelativePath, url)
		}
		seen[url] = p.RelativePath
	}
	return nil
}

func isMarkdownFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".md" || ext == ".markdown"
}

func isIgnoredFile(filename string) bool {
	if strings.HasPrefix(filename, ".") {
		return true
	}
	if strings.HasSuffix(filename, "~") || strings.HasSuffix(filename, ".swp") {
		return true
	}
	return filename == "Thumbs.db"
}

// Tags returns the distinct tag slugs across posts, sorted, with their posts
// in the posts' own order. Tags are slugified so multi-word tags produce
// clean directory names.
func (r *Result) Tags() (names []string, byTag map[string][]*Page) {
	byTag = make(map[string][]*Page)
	for _, p := range r.Posts {
		for _, tag := range p.Meta.Tags {
			tag = Slugify(tag)
			if tag == "" {
				continue
			}
			byTag[tag] = append(byTag[tag], p)
		}
	}
	names = make([]string, 0, len(byTag))
	for tag := range byTag {
		names = append(names, tag)
	}
	sort.Strings(names)
	return names, byTag
}
