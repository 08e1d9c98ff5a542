package site

import (
	"context"
	"crypto/sha256"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogbuilder/internal/buildcache"
	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/content"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type fixture struct {
	cfg        *config.Config
	contentDir string
	outputDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		contentDir: filepath.Join(root, "content"),
		outputDir:  filepath.Join(root, "public"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(f.contentDir, "posts"), 0o755))
	f.cfg = &config.Config{
		Site: config.SiteConfig{
			Title: "Test Blog", Author: "Tester", BaseURL: "https://blog.test", Language: "en",
		},
		Content: config.ContentConfig{Dir: f.contentDir},
		Output:  config.OutputConfig{Directory: f.outputDir},
	}
	return f
}

func (f *fixture) write(t *testing.T, rel, body string) {
	t.Helper()
	path := filepath.Join(f.contentDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.contentDir, filepath.FromSlash(rel))))
}

func (f *fixture) discover(t *testing.T) *content.Result {
	t.Helper()
	result, err := content.NewDiscovery(f.contentDir, content.Options{Now: testNow}).Discover()
	require.NoError(t, err)
	return result
}

func (f *fixture) build(t *testing.T) *BuildReport {
	t.Helper()
	report, err := NewGenerator(f.cfg, f.outputDir).Build(context.Background(), f.discover(t))
	require.NoError(t, err)
	return report
}

func (f *fixture) readOutput(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.outputDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// hashTree returns path -> content hash for every file under dir.
func hashTree(t *testing.T, dir string) map[string][32]byte {
	t.Helper()
	sums := make(map[string][32]byte)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		sums[rel] = sha256.Sum256(data)
		return nil
	})
	require.NoError(t, err)
	return sums
}

func TestBuild_RendersPostsPagesAndIndexes(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello World\ndate: 2026-01-15\ntags: [go]\n---\nFirst post body.\n")
	f.write(t, "about.md", "---\ntitle: About\n---\nAbout me.\n")

	report := f.build(t)
	require.Equal(t, 1, report.Posts)
	require.Equal(t, 1, report.Pages)

	post := f.readOutput(t, "posts/hello-world/index.html")
	require.Contains(t, post, "Hello World")
	require.Contains(t, post, "First post body.")
	require.Contains(t, post, `href="/tags/go/"`)

	index := f.readOutput(t, "index.html")
	require.Contains(t, index, `href="/posts/hello-world/"`)

	require.Contains(t, f.readOutput(t, "about/index.html"), "About me.")
	require.Contains(t, f.readOutput(t, "tags/go/index.html"), "hello-world")
	require.Contains(t, f.readOutput(t, "tags/index.html"), "go")
	require.Contains(t, f.readOutput(t, "archive/index.html"), "2026")
	require.Contains(t, f.readOutput(t, "feed.xml"), "<feed")
	require.Contains(t, f.readOutput(t, "sitemap.xml"), "https://blog.test/posts/hello-world/")
	require.Contains(t, f.readOutput(t, "assets/site.css"), ".wrap")
}

func TestBuild_MultiWordTagsGetSluggedPaths(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-ml.md", "---\ntitle: ML Notes\ndate: 2026-01-15\ntags: [Machine Learning]\n---\nNotes.\n")

	f.build(t)

	// Tag pages live under the slug, and post pages link to the same path.
	require.Contains(t, f.readOutput(t, "tags/machine-learning/index.html"), "ml-notes")
	require.Contains(t, f.readOutput(t, "posts/ml-notes/index.html"), `href="/tags/machine-learning/"`)
	require.Contains(t, f.readOutput(t, "tags/index.html"), "machine-learning")
}

func TestBuild_TwiceIsByteIdentical(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\ntags: [go, testing]\n---\nBody with `code`.\n")
	f.write(t, "posts/2026-02-02-other.md", "---\ntitle: Other\ndate: 2026-02-02\n---\n```go\npackage main\n```\n")
	f.write(t, "about.md", "---\ntitle: About\n---\nAbout.\n")

	f.build(t)
	first := hashTree(t, f.outputDir)

	f.build(t)
	second := hashTree(t, f.outputDir)

	require.Equal(t, first, second)
}

func TestBuild_RemovedContentRemovesOutputPage(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")
	f.write(t, "posts/2026-02-02-gone.md", "---\ntitle: Gone\ndate: 2026-02-02\n---\nB.\n")

	f.build(t)
	require.FileExists(t, filepath.Join(f.outputDir, "posts/gone/index.html"))

	f.remove(t, "posts/2026-02-02-gone.md")
	f.build(t)

	require.NoFileExists(t, filepath.Join(f.outputDir, "posts/gone/index.html"))
	require.NotContains(t, f.readOutput(t, "index.html"), "/posts/gone/")
}

func TestBuild_InvalidTemplateReferenceFails(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")

	// Override theme with a template set whose post template references a
	// template that does not exist.
	templatesDir := t.TempDir()
	for _, kind := range pageKinds {
		body := "{{define \"main\"}}ok{{end}}"
		if kind == "post" {
			body = "{{define \"main\"}}{{template \"nonexistent\" .}}{{end}}"
		}
		require.NoError(t, os.WriteFile(filepath.Join(templatesDir, kind+".html"), []byte(body), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "base.html"),
		[]byte(`{{define "base"}}<html><body>{{template "main" .}}</body></html>{{end}}`), 0o644))
	f.cfg.Content.TemplatesDir = templatesDir

	_, err := NewGenerator(f.cfg, f.outputDir).Build(context.Background(), f.discover(t))
	require.Error(t, err)
}

func TestBuild_FailureKeepsPreviousOutput(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")

	f.build(t)
	before := hashTree(t, f.outputDir)

	// Break the build via a missing templates override dir.
	f.cfg.Content.TemplatesDir = filepath.Join(t.TempDir(), "missing")
	_, err := NewGenerator(f.cfg, f.outputDir).Build(context.Background(), f.discover(t))
	require.Error(t, err)

	require.Equal(t, before, hashTree(t, f.outputDir))
}

func TestBuild_CustomUtilityClassesSurviveCompilation(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")

	customPath := filepath.Join(t.TempDir(), "custom.css")
	require.NoError(t, os.WriteFile(customPath, []byte(".u-shout { text-transform: uppercase; }\n"), 0o644))
	f.cfg.Styles.CustomCSS = customPath

	f.build(t)
	css := f.readOutput(t, "assets/site.css")
	require.Contains(t, css, ".u-shout")
	// Classes used by the base templates are present too.
	require.Contains(t, css, ".site-header")
	require.Contains(t, css, ".theme-toggle")
}

func TestBuild_CopiesContentAssetsAndStaticDir(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")
	f.write(t, "posts/diagram.png", "fake-png")

	staticDir := filepath.Join(t.TempDir(), "static")
	require.NoError(t, os.MkdirAll(staticDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "favicon.ico"), []byte("icon"), 0o644))
	f.cfg.Content.StaticDir = staticDir

	f.build(t)
	require.FileExists(t, filepath.Join(f.outputDir, "posts/diagram.png"))
	require.FileExists(t, filepath.Join(f.outputDir, "favicon.ico"))
}

func TestBuild_IncrementalReusesCachedRenders(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")
	f.write(t, "posts/2026-02-02-other.md", "---\ntitle: Other\ndate: 2026-02-02\n---\nB.\n")

	cache, err := buildcache.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	gen := NewGenerator(f.cfg, f.outputDir).WithCache(cache, true)

	report, err := gen.Build(context.Background(), f.discover(t))
	require.NoError(t, err)
	require.Equal(t, 2, report.Rendered)
	require.Equal(t, 0, report.Reused)
	require.Equal(t, 2, report.Changed)

	// Unchanged input: everything comes from the render cache.
	report, err = gen.Build(context.Background(), f.discover(t))
	require.NoError(t, err)
	require.Equal(t, 0, report.Rendered)
	require.Equal(t, 2, report.Reused)
	require.Equal(t, 0, report.Changed)

	// Touching one post re-renders only that post.
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA changed.\n")
	report, err = gen.Build(context.Background(), f.discover(t))
	require.NoError(t, err)
	require.Equal(t, 1, report.Rendered)
	require.Equal(t, 1, report.Reused)
	require.Equal(t, 1, report.Changed)

	require.Contains(t, f.readOutput(t, "posts/hello/index.html"), "A changed.")

	builds, err := cache.RecentBuilds(10)
	require.NoError(t, err)
	require.Len(t, builds, 3)
}

func TestBuild_ChangedPageCountWithoutIncremental(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")

	cache, err := buildcache.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	// Full renders every time, but the hash table still reports what changed.
	gen := NewGenerator(f.cfg, f.outputDir).WithCache(cache, false)

	report, err := gen.Build(context.Background(), f.discover(t))
	require.NoError(t, err)
	require.Equal(t, 1, report.Changed)

	report, err = gen.Build(context.Background(), f.discover(t))
	require.NoError(t, err)
	require.Equal(t, 1, report.Rendered)
	require.Equal(t, 0, report.Changed)
}

func TestBuild_LiveReloadScriptInjection(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")

	_, err := NewGenerator(f.cfg, f.outputDir).WithLiveReload(true).Build(context.Background(), f.discover(t))
	require.NoError(t, err)
	require.Contains(t, f.readOutput(t, "index.html"), "/livereload")

	f.build(t)
	require.NotContains(t, f.readOutput(t, "index.html"), "/livereload")
}

func TestBuild_CanceledContext(t *testing.T) {
	f := newFixture(t)
	f.write(t, "posts/2026-01-15-hello.md", "---\ntitle: Hello\ndate: 2026-01-15\n---\nA.\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGenerator(f.cfg, f.outputDir).Build(ctx, f.discover(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildFeed_UpdatedFromNewestPostNotBuildTime(t *testing.T) {
	site := SiteData{Title: "T", BaseURL: "https://b.test"}
	posts := []*PostView{
		{Title: "a", URL: "/posts/a/", Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "b", URL: "/posts/b/", Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	feed, err := buildFeed(site, posts)
	require.NoError(t, err)
	require.Contains(t, string(feed), "<updated>2026-03-01T00:00:00Z</updated>")
}

func TestGroupByYear(t *testing.T) {
	posts := []*PostView{
		{Title: "c", Date: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "b", Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "a", Date: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
	}
	years := groupByYear(posts)
	require.Len(t, years, 2)
	require.Equal(t, 2026, years[0].Year)
	require.Len(t, years[0].Posts, 2)
	require.Equal(t, 2025, years[1].Year)
}
