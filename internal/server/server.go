// Package server implements the live-reloading preview server behind the
// dev command: a static file server over the build output, an SSE endpoint
// for browser reloads, a filesystem watcher driving debounced rebuilds, and
// a scheduler that republishes when a future-dated post comes due.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/blogbuilder/internal/buildcache"
	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/content"
	"git.home.luguber.info/inful/blogbuilder/internal/logfields"
	"git.home.luguber.info/inful/blogbuilder/internal/metrics"
	"git.home.luguber.info/inful/blogbuilder/internal/site"
)

// Options configures a DevServer.
type Options struct {
	Config         *config.Config
	OutputDir      string
	Cache          *buildcache.Cache // optional, enables incremental rebuilds
	Recorder       metrics.Recorder  // optional
	MetricsHandler http.Handler      // optional, mounted at /metrics when set
	IncludeDrafts  bool
}

// DevServer serves the generated site and rebuilds it on content changes.
type DevServer struct {
	cfg       *config.Config
	outputDir string
	cache     *buildcache.Cache
	recorder  metrics.Recorder
	metricsH  http.Handler
	drafts    bool

	hub     *LiveReloadHub
	status  buildStatus
	buildMu sync.Mutex // one build at a time; watcher and scheduler both trigger

	schedMu   sync.Mutex
	scheduler gocron.Scheduler
	publishAt time.Time
}

// buildStatus tracks the current build state for error display.
type buildStatus struct {
	mu           sync.RWMutex
	lastError    error
	hasGoodBuild bool
}

func (bs *buildStatus) setError(err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.lastError = err
}

func (bs *buildStatus) setSuccess() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.lastError = nil
	bs.hasGoodBuild = true
}

func (bs *buildStatus) get() (err error, hasGoodBuild bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.lastError, bs.hasGoodBuild
}

// New creates a DevServer. The content directory must exist.
func New(opts Options) (*DevServer, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if st, err := os.Stat(opts.Config.Content.Dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("content dir not found or not a directory: %s", opts.Config.Content.Dir)
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = opts.Config.Output.Directory
	}
	return &DevServer{
		cfg:       opts.Config,
		outputDir: filepath.Clean(outputDir),
		cache:     opts.Cache,
		recorder:  recorder,
		metricsH:  opts.MetricsHandler,
		drafts:    opts.IncludeDrafts,
		hub:       NewLiveReloadHub(recorder),
	}, nil
}

// Run builds the site, serves it, and rebuilds on changes until the context
// is canceled.
func (s *DevServer) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	s.scheduler = scheduler
	s.scheduler.Start()

	debounce := newDebouncer(s.cfg.Dev.Debounce())
	defer debounce.stop()

	// Initial build. Failure is not fatal; the server starts anyway so the
	// author can fix the problem and let the watcher pick up the save.
	s.rebuild(ctx, "startup")

	httpServer, err := s.startHTTP(ctx)
	if err != nil {
		_ = s.scheduler.Shutdown()
		return err
	}

	watcher, err := newWatcher(
		s.cfg.Content.Dir,
		s.cfg.Content.StaticDir,
		s.cfg.Content.TemplatesDir,
		s.cfg.Styles.CustomCSS,
	)
	if err != nil {
		_ = httpServer.Close()
		_ = s.scheduler.Shutdown()
		return err
	}
	defer func() { _ = watcher.Close() }()

	go s.rebuildWorker(ctx, debounce.out)

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(httpServer)
		case ev, ok := <-watcher.Events:
			if !ok {
				return s.shutdown(httpServer)
			}
			handleFileEvent(watcher, ev, func() {
				s.recorder.IncRebuildTrigger("fswatch")
				debounce.trigger()
			})
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return s.shutdown(httpServer)
			}
			slog.Warn("watcher error", logfields.Error(watchErr))
		}
	}
}

func (s *DevServer) startHTTP(ctx context.Context) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/livereload", s.hub)
	if s.metricsH != nil {
		mux.Handle("/metrics", s.metricsH)
	}
	mux.Handle("/", s.siteHandler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Dev.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", s.cfg.Dev.Port, err)
	}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("dev server failed", logfields.Error(serveErr))
		}
	}()
	slog.Info("Preview server listening", "port", s.cfg.Dev.Port,
		"url", fmt.Sprintf("http://localhost:%d", s.cfg.Dev.Port))
	return srv, nil
}

// siteHandler serves the build output, or a plain error page while no
// successful build exists yet.
func (s *DevServer) siteHandler() http.Handler {
	files := http.FileServer(http.Dir(s.outputDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if buildErr, good := s.status.get(); !good {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "build failed, fix the error and save again:\n\n%v\n", buildErr)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *DevServer) rebuildWorker(ctx context.Context, requests <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-requests:
			s.rebuild(ctx, "change")
		}
	}
}

// rebuild discovers content and regenerates the site. On success connected
// browsers are told to reload; on failure the previous output keeps serving.
func (s *DevServer) rebuild(ctx context.Context, reason string) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if reason != "startup" {
		slog.Info("Change detected; rebuilding site")
	}
	result, err := content.NewDiscovery(s.cfg.Content.Dir, content.Options{IncludeDrafts: s.drafts}).Discover()
	if err != nil {
		slog.Warn("rebuild failed", logfields.Error(err))
		s.status.setError(err)
		return
	}

	gen := site.NewGenerator(s.cfg, s.outputDir).
		WithRecorder(s.recorder).
		WithLiveReload(true)
	if s.cache != nil {
		gen = gen.WithCache(s.cache, true)
	}
	report, err := gen.Build(ctx, result)
	if err != nil {
		slog.Warn("rebuild failed", logfields.Error(err))
		s.status.setError(err)
		return
	}
	s.status.setSuccess()
	s.hub.Broadcast(report.BuildID)
	s.schedulePublish(ctx, result.NextPublish)
}

// schedulePublish arranges a rebuild for when the next future-dated post
// comes due, replacing any previously scheduled one.
func (s *DevServer) schedulePublish(ctx context.Context, at time.Time) {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if s.scheduler == nil || at.IsZero() || at.Equal(s.publishAt) {
		return
	}
	s.publishAt = at

	_, err := s.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() {
			slog.Info("Scheduled post is due; republishing", "publish_at", at.Format(time.RFC3339))
			s.recorder.IncRebuildTrigger("schedule")
			s.rebuild(ctx, "schedule")
		}),
		gocron.WithName("publish-due-post"),
	)
	if err != nil {
		slog.Warn("Failed to schedule republish", logfields.Error(err))
		return
	}
	slog.Info("Republish scheduled for future-dated post", "publish_at", at.Format(time.RFC3339))
}

func (s *DevServer) shutdown(httpServer *http.Server) error {
	slog.Info("Shutting down preview server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", logfields.Error(err))
	}
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			slog.Warn("Scheduler shutdown error", logfields.Error(err))
		}
	}
	return nil
}
