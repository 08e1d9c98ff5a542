package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/metrics"
)

func devConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	contentDir := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(contentDir, 0o755))
	cfg := &config.Config{
		Site:    config.SiteConfig{Title: "Dev"},
		Content: config.ContentConfig{Dir: contentDir},
		Output:  config.OutputConfig{Directory: filepath.Join(root, "public")},
		Dev:     config.DevConfig{Port: 0},
	}
	return cfg, root
}

func TestNew_RequiresContentDir(t *testing.T) {
	cfg, _ := devConfig(t)
	cfg.Content.Dir = filepath.Join(t.TempDir(), "missing")
	_, err := New(Options{Config: cfg})
	require.Error(t, err)
}

func TestSiteHandler_ErrorPageUntilFirstGoodBuild(t *testing.T) {
	cfg, root := devConfig(t)
	s, err := New(Options{Config: cfg, Recorder: metrics.NoopRecorder{}})
	require.NoError(t, err)

	s.status.setError(errors.New("template parse failed"))
	srv := httptest.NewServer(s.siteHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Contains(t, string(body), "template parse failed")

	// Once a build succeeds the file server takes over.
	outputDir := filepath.Join(root, "public")
	require.NoError(t, os.MkdirAll(outputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "index.html"), []byte("<html>hello</html>"), 0o644))
	s.status.setSuccess()

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "hello")
}

func TestRun_WatcherFailureShutsDownCleanly(t *testing.T) {
	cfg, _ := devConfig(t)
	s, err := New(Options{Config: cfg, Recorder: metrics.NoopRecorder{}})
	require.NoError(t, err)

	// Remove every watch root after construction so the watcher cannot
	// start. Run must tear down the HTTP server and scheduler it already
	// started and report the error instead of hanging.
	require.NoError(t, os.RemoveAll(cfg.Content.Dir))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = s.Run(ctx)
	require.Error(t, err)
	require.NoError(t, ctx.Err(), "Run should fail fast, not wait for the context deadline")
}

func TestSiteHandler_StaleSiteSurvivesFailedRebuild(t *testing.T) {
	cfg, root := devConfig(t)
	s, err := New(Options{Config: cfg})
	require.NoError(t, err)

	outputDir := filepath.Join(root, "public")
	require.NoError(t, os.MkdirAll(outputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "index.html"), []byte("stale but good"), 0o644))
	s.status.setSuccess()
	s.status.setError(errors.New("rebuild broke"))

	srv := httptest.NewServer(s.siteHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "stale but good")
}
