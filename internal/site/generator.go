package site

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/blogbuilder/internal/assets"
	"git.home.luguber.info/inful/blogbuilder/internal/buildcache"
	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/content"
	"git.home.luguber.info/inful/blogbuilder/internal/logfields"
	"git.home.luguber.info/inful/blogbuilder/internal/markdown"
	"git.home.luguber.info/inful/blogbuilder/internal/metrics"
)

// Generator renders a discovery result into the output directory.
type Generator struct {
	cfg         *config.Config
	outputDir   string
	recorder    metrics.Recorder
	cache       *buildcache.Cache
	incremental bool
	liveReload  bool
}

// BuildReport summarizes a completed build.
type BuildReport struct {
	BuildID  string
	Posts    int
	Pages    int
	Assets   int
	Rendered int // page bodies rendered this build
	Reused   int // page bodies served from the render cache
	Changed  int // pages whose source hash differs from the previous build
	Duration time.Duration
}

// NewGenerator creates a site generator writing to outputDir.
func NewGenerator(cfg *config.Config, outputDir string) *Generator {
	return &Generator{
		cfg:       cfg,
		outputDir: filepath.Clean(outputDir),
		recorder:  metrics.NoopRecorder{},
	}
}

// WithRecorder injects a metrics recorder (optional). Returns the generator for chaining.
func (g *Generator) WithRecorder(r metrics.Recorder) *Generator {
	if r == nil {
		g.recorder = metrics.NoopRecorder{}
		return g
	}
	g.recorder = r
	return g
}

// WithCache attaches the build cache; incremental enables render reuse.
func (g *Generator) WithCache(c *buildcache.Cache, incremental bool) *Generator {
	g.cache = c
	g.incremental = incremental
	return g
}

// WithLiveReload injects the live-reload client script into every page.
func (g *Generator) WithLiveReload(enabled bool) *Generator {
	g.liveReload = enabled
	return g
}

// Build runs the full pipeline: render pages into a staging directory,
// compile the stylesheet, copy assets, then atomically swap the staging
// directory into place. The previous output stays untouched on failure.
func (g *Generator) Build(ctx context.Context, result *content.Result) (*BuildReport, error) {
	start := time.Now()
	report := &BuildReport{
		BuildID: uuid.NewString(),
		Posts:   len(result.Posts),
		Pages:   len(result.Pages),
		Assets:  len(result.Assets),
	}

	report, err := g.build(ctx, result, report)
	report.Duration = time.Since(start)
	g.recorder.ObserveBuildDuration(report.Duration)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	g.recorder.IncBuildOutcome(outcome)
	if g.cache != nil {
		if recErr := g.cache.RecordBuild(buildcache.BuildRecord{
			ID:        report.BuildID,
			StartedAt: start, FinishedAt: time.Now(),
			Posts: report.Posts, Pages: report.Pages, Assets: report.Assets,
			Outcome: outcome, Incremental: g.incremental,
		}); recErr != nil {
			slog.Warn("Failed to record build history", logfields.Error(recErr))
		}
	}
	if err != nil {
		return report, err
	}

	slog.Info("Site built",
		logfields.BuildID(report.BuildID),
		logfields.Output(g.outputDir),
		slog.Int("posts", report.Posts),
		slog.Int("pages", report.Pages),
		slog.Int("changed", report.Changed),
		slog.Int("reused", report.Reused),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))
	return report, nil
}

func (g *Generator) build(ctx context.Context, result *content.Result, report *BuildReport) (*BuildReport, error) {
	var templates *templateSet
	if err := g.stage(ctx, "templates", func() error {
		var err error
		templates, err = loadTemplates(g.cfg.Content.TemplatesDir)
		return err
	}); err != nil {
		return report, err
	}

	stageDir := g.outputDir + ".staging"
	if err := os.RemoveAll(stageDir); err != nil {
		return report, fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return report, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stageDir) }()

	// rendered collects every HTML document of this build, keyed by
	// output-relative path; the stylesheet purge scans all of them.
	rendered := make(map[string][]byte)

	if err := g.stage(ctx, "render", func() error {
		return g.renderPages(templates, result, rendered, report)
	}); err != nil {
		return report, err
	}

	if err := g.stage(ctx, "write", func() error {
		return writeRendered(stageDir, rendered)
	}); err != nil {
		return report, err
	}

	if err := g.stage(ctx, "styles", func() error {
		docs := make([][]byte, 0, len(rendered))
		for _, path := range sortedKeys(rendered) {
			docs = append(docs, rendered[path])
		}
		css, err := assets.NewCompiler(g.cfg.Styles).Compile(docs)
		if err != nil {
			return err
		}
		return writeFile(stageDir, assets.StylesheetPath, css)
	}); err != nil {
		return report, err
	}

	if err := g.stage(ctx, "assets", func() error {
		return g.copyAssets(stageDir, result)
	}); err != nil {
		return report, err
	}

	if err := g.stage(ctx, "swap", func() error {
		return swapDirs(stageDir, g.outputDir)
	}); err != nil {
		return report, err
	}

	g.updateCache(result, report)
	return report, nil
}

// stage runs one pipeline step with timing and result metrics.
func (g *Generator) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	g.recorder.ObserveStageDuration(name, time.Since(start))
	if err != nil {
		g.recorder.IncStageResult(name, metrics.ResultFailure)
		return fmt.Errorf("%s stage: %w", name, err)
	}
	g.recorder.IncStageResult(name, metrics.ResultSuccess)
	return nil
}

func (g *Generator) renderPages(templates *templateSet, result *content.Result, rendered map[string][]byte, report *BuildReport) error {
	site := newSiteData(g.cfg.Site)

	postViews := make([]*PostView, 0, len(result.Posts))
	for _, p := range result.Posts {
		view, err := g.buildView(p, report)
		if err != nil {
			return err
		}
		postViews = append(postViews, view)

		out, err := templates.render("post", PageData{
			Site: site, Title: view.Title, Description: view.Summary,
			Canonical: canonical(site, view.URL), LiveReload: g.liveReload, Post: view,
		})
		if err != nil {
			return err
		}
		rendered[p.OutputPath()] = out
	}

	pageViews := make([]*PostView, 0, len(result.Pages))
	for _, p := range result.Pages {
		view, err := g.buildView(p, report)
		if err != nil {
			return err
		}
		pageViews = append(pageViews, view)

		out, err := templates.render("page", PageData{
			Site: site, Title: view.Title, Description: view.Summary,
			Canonical: canonical(site, view.URL), LiveReload: g.liveReload, Page: view,
		})
		if err != nil {
			return err
		}
		rendered[p.OutputPath()] = out
	}

	index, err := templates.render("index", PageData{
		Site: site, Canonical: canonical(site, "/"), LiveReload: g.liveReload, Posts: postViews,
	})
	if err != nil {
		return err
	}
	rendered["index.html"] = index

	tagNames, byTag := result.Tags()
	tagViews := make([]TagView, 0, len(tagNames))
	viewBySlug := make(map[string]*PostView, len(postViews))
	for _, v := range postViews {
		viewBySlug[v.Slug] = v
	}
	for _, tag := range tagNames {
		tagged := make([]*PostView, 0, len(byTag[tag]))
		for _, p := range byTag[tag] {
			if v, ok := viewBySlug[p.Slug]; ok {
				tagged = append(tagged, v)
			}
		}
		tagViews = append(tagViews, TagView{Name: tag, Count: len(tagged)})

		out, err := templates.render("tag", PageData{
			Site: site, Title: "#" + tag,
			Canonical: canonical(site, "/tags/"+tag+"/"), LiveReload: g.liveReload,
			Tag: tag, Posts: tagged,
		})
		if err != nil {
			return err
		}
		rendered[filepath.ToSlash(filepath.Join("tags", tag, "index.html"))] = out
	}

	tagsIndex, err := templates.render("tags", PageData{
		Site: site, Title: "Tags",
		Canonical: canonical(site, "/tags/"), LiveReload: g.liveReload, Tags: tagViews,
	})
	if err != nil {
		return err
	}
	rendered["tags/index.html"] = tagsIndex

	archive, err := templates.render("archive", PageData{
		Site: site, Title: "Archive",
		Canonical: canonical(site, "/archive/"), LiveReload: g.liveReload,
		Years: groupByYear(postViews),
	})
	if err != nil {
		return err
	}
	rendered["archive/index.html"] = archive

	feed, err := buildFeed(site, postViews)
	if err != nil {
		return err
	}
	rendered["feed.xml"] = feed

	sitemap, err := buildSitemap(site, postViews, pageViews)
	if err != nil {
		return err
	}
	rendered["sitemap.xml"] = sitemap

	return nil
}

// buildView renders a page body, consulting the render cache when
// incremental mode is on.
func (g *Generator) buildView(p *content.Page, report *BuildReport) (*PostView, error) {
	if g.incremental && g.cache != nil {
		html, summary, found, err := g.cache.RenderedBody(p.Hash)
		if err != nil {
			slog.Warn("Render cache lookup failed", logfields.File(p.RelativePath), logfields.Error(err))
		} else if found {
			report.Reused++
			return newPostView(p, html, summary), nil
		}
	}

	html, err := markdown.Render(p.Body)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", p.RelativePath, err)
	}
	summary := markdown.Summary(p.Body)
	report.Rendered++

	if g.cache != nil {
		if err := g.cache.PutRenderedBody(p.Hash, html, summary); err != nil {
			slog.Warn("Render cache store failed", logfields.File(p.RelativePath), logfields.Error(err))
		}
	}
	return newPostView(p, html, summary), nil
}

func (g *Generator) copyAssets(stageDir string, result *content.Result) error {
	for _, asset := range result.Assets {
		if err := copyFile(asset.SourcePath, filepath.Join(stageDir, filepath.FromSlash(asset.RelativePath))); err != nil {
			return fmt.Errorf("copy asset %s: %w", asset.RelativePath, err)
		}
	}

	staticDir := g.cfg.Content.StaticDir
	if staticDir == "" {
		return nil
	}
	if st, err := os.Stat(staticDir); err != nil || !st.IsDir() {
		// Static dir is optional.
		return nil
	}
	return filepath.WalkDir(staticDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(staticDir, path)
		if relErr != nil {
			return relErr
		}
		return copyFile(path, filepath.Join(stageDir, rel))
	})
}

// updateCache counts pages whose source changed since the last build,
// refreshes the stored hashes and prunes entries for removed files. Cache
// maintenance failures do not fail the build.
func (g *Generator) updateCache(result *content.Result, report *BuildReport) {
	if g.cache == nil {
		return
	}
	all := append(append([]*content.Page{}, result.Posts...), result.Pages...)
	paths := make([]string, 0, len(all))
	hashes := make([]string, 0, len(all))
	for _, p := range all {
		paths = append(paths, p.RelativePath)
		hashes = append(hashes, p.Hash)
		prev, found, err := g.cache.PageHash(p.RelativePath)
		if err != nil {
			slog.Warn("Failed to read page hash", logfields.File(p.RelativePath), logfields.Error(err))
		} else if !found || prev != p.Hash {
			report.Changed++
		}
		if err := g.cache.PutPageHash(p.RelativePath, p.Hash); err != nil {
			slog.Warn("Failed to store page hash", logfields.File(p.RelativePath), logfields.Error(err))
		}
	}
	if err := g.cache.PruneExcept(paths); err != nil {
		slog.Warn("Failed to prune page hashes", logfields.Error(err))
	}
	if err := g.cache.PruneRendersExcept(hashes); err != nil {
		slog.Warn("Failed to prune cached renders", logfields.Error(err))
	}
}

func canonical(site SiteData, url string) string {
	if site.BaseURL == "" {
		return ""
	}
	return site.BaseURL + url
}

func writeRendered(stageDir string, rendered map[string][]byte) error {
	for _, rel := range sortedKeys(rendered) {
		if err := writeFile(stageDir, rel, rendered[rel]); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(stageDir, rel string, data []byte) error {
	path := filepath.Join(stageDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// swapDirs replaces dst with src. Rename is atomic on the same filesystem;
// staging lives next to the output dir to keep it that way.
func swapDirs(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove previous output: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("swap staging into place: %w", err)
	}
	return nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
