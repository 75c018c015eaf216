// Package vcstest builds throwaway origin repositories for tests.
//
// Local remotes are served in-process by go-git's transport server, so tests
// do not need a git binary.
package vcstest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/require"
)

// DefaultBranch is the branch every origin starts on.
const DefaultBranch = "main"

var installOnce sync.Once

// InstallFileTransport serves file:// and bare-path remotes in-process.
func InstallFileTransport() {
	installOnce.Do(func() {
		client.InstallProtocol("file", server.NewClient(server.DefaultLoader))
	})
}

// Origin is a non-bare repository acting as a remote.
type Origin struct {
	Dir  string
	Repo *git.Repository
}

// NewOrigin creates an origin on DefaultBranch with files committed.
func NewOrigin(t testing.TB, files map[string]string) *Origin {
	t.Helper()
	InstallFileTransport()

	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(DefaultBranch)},
	})
	require.NoError(t, err)

	o := &Origin{Dir: dir, Repo: repo}
	o.Commit(t, files, "initial commit")
	return o
}

// URL is the remote address of the origin.
func (o *Origin) URL() string {
	return filepath.Join(o.Dir, ".git")
}

// Commit writes files onto the current branch and commits them.
// An empty content deletes the file.
func (o *Origin) Commit(t testing.TB, files map[string]string, msg string) string {
	t.Helper()
	w, err := o.Repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		path := filepath.Join(o.Dir, filepath.FromSlash(name))
		if content == "" {
			_, err = w.Remove(name)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err = w.Add(name)
		require.NoError(t, err)
	}

	hash, err := w.Commit(msg, &git.CommitOptions{
		Author:            &object.Signature{Name: "Origin", Email: "origin@example.com", When: time.Now()},
		AllowEmptyCommits: true,
	})
	require.NoError(t, err)
	return hash.String()
}

// CreateBranch points branch at the current HEAD of the origin.
func (o *Origin) CreateBranch(t testing.TB, branch string) string {
	t.Helper()
	head, err := o.Repo.Head()
	require.NoError(t, err)
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), head.Hash())
	require.NoError(t, o.Repo.Storer.SetReference(ref))
	return head.Hash().String()
}

// SetPullRequest publishes hash as refs/pull/<n>/head.
func (o *Origin) SetPullRequest(t testing.TB, n int, hash string) {
	t.Helper()
	name := plumbing.ReferenceName(fmt.Sprintf("refs/pull/%d/head", n))
	require.NoError(t, o.Repo.Storer.SetReference(plumbing.NewHashReference(name, plumbing.NewHash(hash))))
}

// Head returns the hash the branch points at.
func (o *Origin) Head(t testing.TB, branch string) string {
	t.Helper()
	ref, err := o.Repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	return ref.Hash().String()
}

// FileAt reads path from the tip of branch.
func (o *Origin) FileAt(t testing.TB, branch, path string) string {
	t.Helper()
	commit, err := o.Repo.CommitObject(plumbing.NewHash(o.Head(t, branch)))
	require.NoError(t, err)
	f, err := commit.File(path)
	require.NoError(t, err)
	content, err := f.Contents()
	require.NoError(t, err)
	return content
}

// CommitMessage returns the message of the tip of branch.
func (o *Origin) CommitMessage(t testing.TB, branch string) (string, object.Signature) {
	t.Helper()
	commit, err := o.Repo.CommitObject(plumbing.NewHash(o.Head(t, branch)))
	require.NoError(t, err)
	return commit.Message, commit.Author
}
