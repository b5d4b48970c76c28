// Package resources locates the resource bundle holding Brodmann labels and
// WMQL query files. The bundle is either a local directory or a git
// repository cloned into a cache directory and pulled before each run.
package resources

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/neuroflow/internal/config"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/retry"
)

// TokenEnv holds an optional HTTP token for private bundle repositories.
const TokenEnv = "NEUROFLOW_RESOURCES_TOKEN"

// Fetcher resolves the resource bundle.
type Fetcher struct {
	cfg    config.ResourcesConfig
	policy retry.Policy
	logger *slog.Logger
}

// NewFetcher creates a fetcher for cfg. Network operations are retried with policy.
func NewFetcher(cfg config.ResourcesConfig, policy retry.Policy, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, policy: policy, logger: logger}
}

// Path returns where the bundle is read from without touching the network.
func (f *Fetcher) Path() string {
	if f.cfg.URL != "" {
		return f.cfg.CacheDir
	}
	return f.cfg.Dir
}

// Fetch makes the bundle available and returns its path. A local directory is
// passed through unchanged; a missing one only produces a warning since runs
// without Brodmann labels or tract queries are still meaningful.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	if f.cfg.URL == "" {
		dir := f.cfg.Dir
		if _, err := os.Stat(dir); err != nil {
			f.logger.Warn("Resource directory not found", logfields.Dir(dir))
		}
		return dir, nil
	}

	path := f.cfg.CacheDir
	op := func() error {
		if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
			return f.pull(ctx, path)
		}
		return f.clone(ctx, path)
	}
	notify := func(err error, attempt int, wait time.Duration) {
		f.logger.Warn("Resource fetch failed, retrying", logfields.URL(f.cfg.URL),
			slog.Int("attempt", attempt), logfields.Duration(wait), logfields.Error(err))
	}
	if err := f.policy.Do(ctx, op, notify); err != nil {
		return "", err
	}
	return path, nil
}

func (f *Fetcher) auth() transport.AuthMethod {
	if token := os.Getenv(TokenEnv); token != "" {
		return &http.BasicAuth{Username: "token", Password: token}
	}
	return nil
}

func (f *Fetcher) clone(ctx context.Context, path string) error {
	f.logger.Info("Cloning resource bundle", logfields.URL(f.cfg.URL), logfields.Path(path))
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to clear resource cache").
			WithContext("path", path).Build()
	}
	opts := &git.CloneOptions{URL: f.cfg.URL, Auth: f.auth()}
	if f.cfg.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(f.cfg.Branch)
		opts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, path, false, opts)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryResources, "failed to clone resource bundle").
			WithContext("url", f.cfg.URL).
			Retryable().Build()
	}
	f.logger.Info("Resource bundle cloned", logfields.URL(f.cfg.URL), slog.String("commit", head(repo)))
	return nil
}

func (f *Fetcher) pull(ctx context.Context, path string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryResources, "failed to open resource cache").
			WithContext("path", path).Build()
	}
	wt, err := repo.Worktree()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryResources, "failed to open resource worktree").
			WithContext("path", path).Build()
	}
	opts := &git.PullOptions{RemoteName: "origin", Auth: f.auth()}
	if f.cfg.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(f.cfg.Branch)
		opts.SingleBranch = true
	}
	err = wt.PullContext(ctx, opts)
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		f.logger.Debug("Resource bundle up to date", logfields.Path(path))
	case err != nil:
		return ferrors.WrapError(err, ferrors.CategoryResources, "failed to pull resource bundle").
			WithContext("url", f.cfg.URL).
			Retryable().Build()
	default:
		f.logger.Info("Resource bundle updated", logfields.Path(path), slog.String("commit", head(repo)))
	}
	return nil
}

func head(repo *git.Repository) string {
	ref, err := repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()[:8]
}
