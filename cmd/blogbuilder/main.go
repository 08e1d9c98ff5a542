package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/blogbuilder/internal/buildcache"
	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/content"
	"git.home.luguber.info/inful/blogbuilder/internal/deploy"
	"git.home.luguber.info/inful/blogbuilder/internal/frontmatter"
	"git.home.luguber.info/inful/blogbuilder/internal/metrics"
	"git.home.luguber.info/inful/blogbuilder/internal/server"
	"git.home.luguber.info/inful/blogbuilder/internal/site"
	"git.home.luguber.info/inful/blogbuilder/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"blog.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Output      string `short:"o" help:"Output directory, overrides the configured one"`
		Drafts      bool   `short:"D" help:"Include draft posts"`
		Future      bool   `short:"F" help:"Include future-dated posts"`
		Incremental bool   `short:"i" help:"Reuse cached page renders for unchanged sources"`
	} `cmd:"" help:"Build the site into the output directory"`

	Dev struct {
		Port   int  `short:"p" help:"Listen port, overrides the configured one"`
		Drafts bool `short:"D" help:"Include draft posts"`
	} `cmd:"" help:"Serve the site locally, rebuilding on changes"`

	Deploy struct {
		SkipBuild bool `help:"Publish the existing output directory without rebuilding"`
	} `cmd:"" help:"Build and push the site to the publish branch"`

	New struct {
		Title string `arg:"" help:"Title of the new post"`
		Page  bool   `help:"Create a standalone page instead of a post"`
		Draft bool   `help:"Mark the new entry as a draft"`
	} `cmd:"" help:"Scaffold a new post with frontmatter"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	History struct {
		Limit int `short:"n" help:"Number of builds to show" default:"10"`
	} `cmd:"" help:"Show recent build history"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "build":
		cfg := mustLoadConfig()
		if err := runBuild(cfg, CLI.Build.Output, buildFlags{
			drafts: CLI.Build.Drafts, future: CLI.Build.Future, incremental: CLI.Build.Incremental,
		}); err != nil {
			slog.Error("Build failed", "error", err)
			os.Exit(1)
		}
	case "dev":
		cfg := mustLoadConfig()
		if err := runDev(cfg, CLI.Dev.Port, CLI.Dev.Drafts); err != nil {
			slog.Error("Dev server failed", "error", err)
			os.Exit(1)
		}
	case "deploy":
		cfg := mustLoadConfig()
		if err := runDeploy(cfg, CLI.Deploy.SkipBuild); err != nil {
			slog.Error("Deploy failed", "error", err)
			os.Exit(1)
		}
	case "new <title>":
		cfg := mustLoadConfig()
		if err := runNew(cfg, CLI.New.Title, CLI.New.Page, CLI.New.Draft); err != nil {
			slog.Error("Scaffold failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
	case "history":
		cfg := mustLoadConfig()
		if err := runHistory(cfg, CLI.History.Limit); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("blogbuilder %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

type buildFlags struct {
	drafts, future, incremental bool
}

func runBuild(cfg *config.Config, outputOverride string, flags buildFlags) error {
	outputDir := cfg.Output.Directory
	if outputOverride != "" {
		outputDir = outputOverride
	}
	slog.Info("Starting site build",
		"output", outputDir,
		"content", cfg.Content.Dir,
		"incremental", flags.incremental)

	result, err := content.NewDiscovery(cfg.Content.Dir, content.Options{
		IncludeDrafts: flags.drafts,
		IncludeFuture: flags.future,
	}).Discover()
	if err != nil {
		return err
	}
	if len(result.Posts) == 0 && len(result.Pages) == 0 {
		slog.Warn("No content found", "dir", cfg.Content.Dir)
	}
	if result.SkippedDrafts > 0 {
		slog.Info("Skipped drafts", "count", result.SkippedDrafts)
	}
	if result.SkippedFuture > 0 {
		slog.Info("Skipped future-dated posts", "count", result.SkippedFuture,
			"next_publish", result.NextPublish.Format(time.RFC3339))
	}

	gen := site.NewGenerator(cfg, outputDir)
	cache, err := openCache(cfg)
	if err != nil {
		slog.Warn("Build cache unavailable, rendering everything", "error", err)
	} else {
		defer func() { _ = cache.Close() }()
		gen = gen.WithCache(cache, flags.incremental)
	}

	_, err = gen.Build(context.Background(), result)
	return err
}

func runDev(cfg *config.Config, portOverride int, drafts bool) error {
	if portOverride != 0 {
		cfg.Dev.Port = portOverride
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := server.Options{
		Config:        cfg,
		Recorder:      metrics.NoopRecorder{},
		IncludeDrafts: drafts,
	}
	if cfg.Dev.Metrics {
		recorder := metrics.NewPrometheusRecorder(nil)
		opts.Recorder = recorder
		opts.MetricsHandler = recorder.Handler()
	}
	cache, err := openCache(cfg)
	if err != nil {
		slog.Warn("Build cache unavailable, rendering everything", "error", err)
	} else {
		defer func() { _ = cache.Close() }()
		opts.Cache = cache
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runDeploy(cfg *config.Config, skipBuild bool) error {
	if !skipBuild {
		if err := runBuild(cfg, "", buildFlags{}); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := deploy.NewDeployer(cfg.Deploy).Publish(ctx, cfg.Output.Directory)
	if errors.Is(err, deploy.ErrNoChanges) {
		slog.Info("Published branch already up to date")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("Deploy finished", "branch", result.Branch, "commit", result.Commit[:8], "files", result.Files)
	return nil
}

func runNew(cfg *config.Config, title string, page, draft bool) error {
	slug := content.Slugify(title)
	if slug == "" {
		return fmt.Errorf("title %q produces an empty slug", title)
	}
	now := time.Now()

	var path string
	if page {
		path = filepath.Join(cfg.Content.Dir, slug+".md")
	} else {
		path = filepath.Join(cfg.Content.Dir, "posts",
			fmt.Sprintf("%s-%s.md", now.Format("2006-01-02"), slug))
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("already exists: %s", path)
	}

	fields := map[string]any{
		"title": title,
		"date":  now.Format("2006-01-02T15:04:05Z07:00"),
	}
	if draft {
		fields["draft"] = true
	}
	if !page {
		fields["tags"] = []string{}
	}
	if _, _, err := frontmatter.EnsureUID(fields); err != nil {
		return err
	}
	fm, err := yaml.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal frontmatter: %w", err)
	}

	doc := frontmatter.Join(fm, []byte("Write here.\n"), true, frontmatter.Style{Newline: "\n"})
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return err
	}
	slog.Info("Created "+kindWord(page), "path", path, "slug", slug)
	return nil
}

func kindWord(page bool) string {
	if page {
		return "page"
	}
	return "post"
}

func runHistory(cfg *config.Config, limit int) error {
	cache, err := openCache(cfg)
	if err != nil {
		return fmt.Errorf("open build cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	records, err := cache.RecentBuilds(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No builds recorded yet.")
		return nil
	}
	for _, rec := range records {
		mode := "full"
		if rec.Incremental {
			mode = "incremental"
		}
		fmt.Printf("%s  %-7s  %-11s  posts=%d pages=%d assets=%d  %s\n",
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.Outcome, mode,
			rec.Posts, rec.Pages, rec.Assets,
			rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	}
	return nil
}

func runInit(configPath string, force bool) error {
	slog.Info("Initializing configuration", "path", configPath, "force", force)
	if err := config.Init(configPath, force); err != nil {
		return err
	}
	fmt.Printf("Wrote %s. Put posts under content/posts/ and run 'blogbuilder build'.\n", configPath)
	return nil
}

func openCache(cfg *config.Config) (*buildcache.Cache, error) {
	if cfg.Output.CacheDir == "" {
		return nil, fmt.Errorf("no cache dir configured")
	}
	return buildcache.OpenDir(cfg.Output.CacheDir)
}
