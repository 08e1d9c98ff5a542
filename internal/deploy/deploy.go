// Package deploy publishes the built site to a git branch. The branch holds
// only build output, never source, so it can be served directly by GitHub
// Pages style hosting.
package deploy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/blogbuilder/internal/config"
	"git.home.luguber.info/inful/blogbuilder/internal/logfields"
	"git.home.luguber.info/inful/blogbuilder/internal/workspace"
)

// Deployer pushes build output to the configured publish branch.
type Deployer struct {
	cfg       config.DeployConfig
	workspace *workspace.Manager
}

// Result describes a completed publish.
type Result struct {
	Commit string
	Branch string
	Files  int
}

// NewDeployer creates a deployer working in an ephemeral temp directory.
func NewDeployer(cfg config.DeployConfig) *Deployer {
	return &Deployer{cfg: cfg, workspace: workspace.NewManager("")}
}

// Publish commits the contents of siteDir to the publish branch and pushes.
// Returns ErrNoChanges when the branch already holds an identical tree.
func (d *Deployer) Publish(ctx context.Context, siteDir string) (*Result, error) {
	if d.cfg.RemoteURL == "" {
		return nil, fmt.Errorf("deploy.remote_url is not configured")
	}
	if st, err := os.Stat(siteDir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("site dir not found: %s (run build first)", siteDir)
	}

	auth, err := createAuth(d.cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("setup authentication: %w", err)
	}

	if err := d.workspace.Create(); err != nil {
		return nil, err
	}
	defer func() {
		if cleanErr := d.workspace.Cleanup(); cleanErr != nil {
			slog.Warn("Failed to clean deploy workspace", logfields.Error(cleanErr))
		}
	}()

	repoDir, err := d.workspace.CreateSubdir("publish")
	if err != nil {
		return nil, err
	}

	repo, branchExisted, err := d.prepareRepo(ctx, repoDir, auth)
	if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	if err := clearWorktree(repoDir); err != nil {
		return nil, fmt.Errorf("clear publish worktree: %w", err)
	}
	files, err := copyTree(siteDir, repoDir)
	if err != nil {
		return nil, fmt.Errorf("stage site files: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("stage changes: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}
	if status.IsClean() && branchExisted {
		return nil, ErrNoChanges
	}

	now := time.Now().UTC()
	commit, err := wt.Commit(fmt.Sprintf("Publish site %s", now.Format(time.RFC3339)), &git.CommitOptions{
		Author: &object.Signature{Name: d.cfg.CommitName, Email: d.cfg.CommitEmail, When: now},
	})
	if err != nil {
		return nil, fmt.Errorf("commit site: %w", err)
	}

	if err := d.push(ctx, repo, auth); err != nil {
		return nil, err
	}

	slog.Info("Site published",
		logfields.Remote(d.cfg.RemoteURL),
		logfields.Branch(d.cfg.Branch),
		slog.String("commit", commit.String()[:8]),
		slog.Int("files", files))
	return &Result{Commit: commit.String(), Branch: d.cfg.Branch, Files: files}, nil
}

// prepareRepo clones the publish branch, or initializes a fresh repository
// pointed at it when the branch does not exist on the remote yet.
func (d *Deployer) prepareRepo(ctx context.Context, repoDir string, auth transport.AuthMethod) (*git.Repository, bool, error) {
	branchRef := plumbing.NewBranchReferenceName(d.cfg.Branch)
	repo, err := git.PlainCloneContext(ctx, repoDir, false, &git.CloneOptions{
		URL:           d.cfg.RemoteURL,
		ReferenceName: branchRef,
		SingleBranch:  true,
		Auth:          auth,
	})
	if err == nil {
		return repo, true, nil
	}
	if !isMissingBranch(err) {
		return nil, false, classifyGitError("clone", d.cfg.RemoteURL, err)
	}

	slog.Debug("Publish branch missing on remote, starting from scratch", logfields.Branch(d.cfg.Branch))
	repo, err = git.PlainInit(repoDir, false)
	if err != nil {
		return nil, false, fmt.Errorf("init publish repo: %w", err)
	}
	if _, err := repo.CreateRemote(&gitcfg.RemoteConfig{Name: "origin", URLs: []string{d.cfg.RemoteURL}}); err != nil {
		return nil, false, fmt.Errorf("configure remote: %w", err)
	}
	// Point HEAD at the publish branch so the first commit creates it.
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return nil, false, fmt.Errorf("set publish branch: %w", err)
	}
	return repo, false, nil
}

func (d *Deployer) push(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) error {
	branchRef := plumbing.NewBranchReferenceName(d.cfg.Branch)
	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{gitcfg.RefSpec(branchRef + ":" + branchRef)},
		Auth:       auth,
	})
	if err == nil || err == git.NoErrAlreadyUpToDate {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "non-fast-forward") {
		return &RemoteDivergedError{Op: "push", URL: d.cfg.RemoteURL, Branch: d.cfg.Branch, Err: err}
	}
	return classifyGitError("push", d.cfg.RemoteURL, err)
}

// clearWorktree removes everything under dir except the .git directory, so
// files deleted from the site disappear from the published branch too.
func clearWorktree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == git.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyTree(src, dst string) (int, error) {
	files := 0
	err := filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			if rel == "." {
				return nil
			}
			return os.MkdirAll(target, 0o755)
		}
		files++
		return copyFile(path, target)
	})
	return files, err
}

func copyFile(src, dst string) error {
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
