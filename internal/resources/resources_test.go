package resources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/retry"
)

// bundleRepo creates a local repository with one committed query file.
func bundleRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFile(t, repo, dir, "wmql_queries.qry", "cc_2 = ...")
	return dir, repo
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.org", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestLocalDirectoryPassthrough(t *testing.T) {
	dir := t.TempDir()
	f := NewFetcher(config.ResourcesConfig{Dir: dir}, retry.DefaultPolicy(), nil)
	got, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.Equal(t, dir, f.Path())

	missing := NewFetcher(config.ResourcesConfig{Dir: filepath.Join(dir, "nope")}, retry.DefaultPolicy(), nil)
	got, err = missing.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nope"), got)
}

func TestCloneThenPull(t *testing.T) {
	origin, repo := bundleRepo(t)
	cache := filepath.Join(t.TempDir(), "bundle")
	f := NewFetcher(config.ResourcesConfig{URL: origin, CacheDir: cache}, retry.DefaultPolicy(), nil)

	path, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cache, path)
	assert.FileExists(t, filepath.Join(cache, "wmql_queries.qry"))

	// Unchanged origin pulls cleanly.
	_, err = f.Fetch(context.Background())
	require.NoError(t, err)

	commitFile(t, repo, origin, "wmql_dict.qry", "dict")
	_, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cache, "wmql_dict.qry"))
}

func TestCloneFailureIsResourcesError(t *testing.T) {
	f := NewFetcher(config.ResourcesConfig{
		URL:      filepath.Join(t.TempDir(), "missing-repo"),
		CacheDir: filepath.Join(t.TempDir(), "bundle"),
	}, retry.DefaultPolicy(), nil)
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
}
