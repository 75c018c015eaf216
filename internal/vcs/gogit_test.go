package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/stylefix/internal/vcs/vcstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	orderedSource = "<?php\n\nuse B;\nuse A;\n\nclass Foo\n{\n}\n"
	sortedSource  = "<?php\n\nuse A;\nuse B;\n\nclass Foo\n{\n}\n"
)

func cloneOrigin(t *testing.T, origin *vcstest.Origin) (Repository, string) {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "wc")
	repo, err := NewGoGit(nil).Clone(context.Background(), origin.URL(), dest, Auth{})
	require.NoError(t, err)
	return repo, dest
}

func setUp(t *testing.T, repo Repository, branch, commit string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Fetch(ctx, "+refs/heads/"+branch+":refs/remotes/origin/"+branch))
	require.NoError(t, repo.Reset(ctx, commit))
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(b)
}

func TestGoGit_CloneFetchReset(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{"src/Foo.php": orderedSource})
	first := origin.Head(t, vcstest.DefaultBranch)
	second := origin.Commit(t, map[string]string{"src/Bar.php": "<?php\n"}, "add bar")

	repo, dir := cloneOrigin(t, origin)
	setUp(t, repo, vcstest.DefaultBranch, first)

	_, err := os.Stat(filepath.Join(dir, "src", "Bar.php"))
	assert.True(t, os.IsNotExist(err), "reset must move the tree back to the first commit")

	writeFile(t, dir, "scratch.txt", "left over from a previous run")
	writeFile(t, dir, "src/Foo.php", "garbage")
	setUp(t, repo, vcstest.DefaultBranch, second)

	assert.Equal(t, orderedSource, readFile(t, dir, "src/Foo.php"))
	assert.Equal(t, "<?php\n", readFile(t, dir, "src/Bar.php"))
	_, err = os.Stat(filepath.Join(dir, "scratch.txt"))
	assert.True(t, os.IsNotExist(err), "untracked files are removed")

	diff, err := repo.Diff(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestGoGit_FetchPullRequest(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{"a.php": "<?php\n"})
	repo, dir := cloneOrigin(t, origin)

	prHead := origin.Commit(t, map[string]string{"b.php": "<?php\necho 1;\n"}, "pr work")
	origin.SetPullRequest(t, 7, prHead)

	ctx := context.Background()
	require.NoError(t, repo.Fetch(ctx, "+refs/pull/7/head:refs/remotes/origin/pr/7"))
	require.NoError(t, repo.Fetch(ctx, "+refs/pull/7/head:refs/remotes/origin/pr/7"), "refetching is not an error")
	require.NoError(t, repo.Reset(ctx, prHead))

	assert.Equal(t, "<?php\necho 1;\n", readFile(t, dir, "b.php"))
}

func TestGoGit_ResetUnknownCommit(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{"a.php": "<?php\n"})
	repo, _ := cloneOrigin(t, origin)

	err := repo.Reset(context.Background(), "0123456789abcdef0123456789abcdef01234567")
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestGoGit_FetchInvalidRefSpec(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{"a.php": "<?php\n"})
	repo, _ := cloneOrigin(t, origin)

	assert.Error(t, repo.Fetch(context.Background(), "refs/heads/*:refs/remotes/origin/x"))
}

func TestGoGit_Diff(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{
		"src/Foo.php": orderedSource,
		"old.php":     "<?php\n// obsolete\n",
		"same.php":    "<?php\n",
	})
	repo, dir := cloneOrigin(t, origin)

	writeFile(t, dir, "src/Foo.php", sortedSource)
	writeFile(t, dir, "src/New.php", "<?php\n")
	writeFile(t, dir, "same.php", "<?php\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "old.php")))

	diff, err := repo.Diff(context.Background())
	require.NoError(t, err)

	assert.Contains(t, diff, "diff --git a/src/Foo.php b/src/Foo.php")
	assert.Contains(t, diff, "-use B;")
	assert.Contains(t, diff, "+use B;")
	assert.Contains(t, diff, "diff --git a/src/New.php b/src/New.php")
	assert.Contains(t, diff, "new file mode")
	assert.Contains(t, diff, "diff --git a/old.php b/old.php")
	assert.Contains(t, diff, "deleted file mode")
	assert.NotContains(t, diff, "same.php")
}

func TestGoGit_ApplyRoundTrip(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{
		"src/Foo.php": orderedSource,
		"old.php":     "<?php\n",
	})
	head := origin.Head(t, vcstest.DefaultBranch)

	producer, producerDir := cloneOrigin(t, origin)
	writeFile(t, producerDir, "src/Foo.php", sortedSource)
	writeFile(t, producerDir, "added.php", "<?php\necho 'hi';\n")
	require.NoError(t, os.Remove(filepath.Join(producerDir, "old.php")))
	diff, err := producer.Diff(context.Background())
	require.NoError(t, err)

	consumer, consumerDir := cloneOrigin(t, origin)
	setUp(t, consumer, vcstest.DefaultBranch, head)
	require.NoError(t, consumer.Apply(context.Background(), diff))

	assert.Equal(t, sortedSource, readFile(t, consumerDir, "src/Foo.php"))
	assert.Equal(t, "<?php\necho 'hi';\n", readFile(t, consumerDir, "added.php"))
	_, err = os.Stat(filepath.Join(consumerDir, "old.php"))
	assert.True(t, os.IsNotExist(err))

	again, err := consumer.Diff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, diff, again, "applying a diff reproduces it")
}

func TestGoGit_ApplyConflictLeavesTreeUntouched(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{
		"a.php": "<?php\n$a = 1;\n",
		"b.php": orderedSource,
	})
	producer, producerDir := cloneOrigin(t, origin)
	writeFile(t, producerDir, "a.php", "<?php\n$a = 2;\n")
	writeFile(t, producerDir, "b.php", sortedSource)
	diff, err := producer.Diff(context.Background())
	require.NoError(t, err)

	consumer, consumerDir := cloneOrigin(t, origin)
	writeFile(t, consumerDir, "b.php", "<?php\n// rewritten\n")

	err = consumer.Apply(context.Background(), diff)
	require.ErrorIs(t, err, ErrPatchConflict)
	assert.Equal(t, "<?php\n$a = 1;\n", readFile(t, consumerDir, "a.php"), "no file is written on conflict")
}

func TestGoGit_ApplyRejectsEmptyPatch(t *testing.T) {
	assert.ErrorIs(t, ApplyPatch(context.Background(), t.TempDir(), ""), ErrPatchConflict)
}

func TestGoGit_CheckoutCommitPush(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{"src/Foo.php": orderedSource})
	head := origin.Head(t, vcstest.DefaultBranch)
	repo, dir := cloneOrigin(t, origin)
	setUp(t, repo, vcstest.DefaultBranch, head)

	ctx := context.Background()
	require.NoError(t, repo.Checkout(ctx, "stylefix/fixes"))

	_, err := repo.Commit(ctx, "nothing", Signature{Name: "Bot", Email: "bot@example.com"})
	require.ErrorIs(t, err, ErrNothingToCommit)

	writeFile(t, dir, "src/Foo.php", sortedSource)
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	hash, err := repo.Commit(ctx, "Apply fixes", Signature{Name: "Bot", Email: "bot@example.com", When: when})
	require.NoError(t, err)
	require.Len(t, hash, 40)

	require.NoError(t, repo.Push(ctx, "stylefix/fixes"))

	assert.Equal(t, hash, origin.Head(t, "stylefix/fixes"))
	assert.Equal(t, sortedSource, origin.FileAt(t, "stylefix/fixes", "src/Foo.php"))
	assert.Equal(t, head, origin.Head(t, vcstest.DefaultBranch), "default branch is untouched")
	msg, author := origin.CommitMessage(t, "stylefix/fixes")
	assert.Equal(t, "Apply fixes", msg)
	assert.Equal(t, "Bot", author.Name)
	assert.Equal(t, "bot@example.com", author.Email)
}

func TestGoGit_OpenNotRepository(t *testing.T) {
	_, err := NewGoGit(nil).Open(t.TempDir(), Auth{})
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestGoGit_OpenExisting(t *testing.T) {
	origin := vcstest.NewOrigin(t, map[string]string{"a.php": "<?php\n"})
	_, dir := cloneOrigin(t, origin)

	repo, err := NewGoGit(nil).Open(dir, Auth{})
	require.NoError(t, err)
	diff, err := repo.Diff(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestGoGit_MissingKeyFile(t *testing.T) {
	_, err := NewGoGit(nil).Open(t.TempDir(), Auth{KeyFile: filepath.Join(t.TempDir(), "absent.key")})
	assert.Error(t, err)
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		in      string
		want    Signature
		wantErr bool
	}{
		{in: "Graham Campbell <graham@example.com>", want: Signature{Name: "Graham Campbell", Email: "graham@example.com"}},
		{in: "  Bot <bot@example.com> ", want: Signature{Name: "Bot", Email: "bot@example.com"}},
		{in: "bot@example.com", wantErr: true},
		{in: "Bot <not an email>", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSignature(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Name+" <"+tt.want.Email+">", got.String())
		})
	}
}
