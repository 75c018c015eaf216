package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"go.uber.org/zap"
)

const remoteName = "origin"

// GoGit is a Backend that runs git operations in-process.
type GoGit struct {
	logger *zap.Logger
}

// NewGoGit creates a go-git backend.
func NewGoGit(logger *zap.Logger) *GoGit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoGit{logger: logger}
}

// Clone implements Backend.
func (g *GoGit) Clone(ctx context.Context, url, dest string, auth Auth) (Repository, error) {
	method, err := authMethod(auth)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:        url,
		Auth:       method,
		RemoteName: remoteName,
	})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	g.logger.Debug("cloned repository", zap.String("path", dest))
	return &goGitRepository{repo: repo, path: dest, auth: method, logger: g.logger}, nil
}

// Open implements Backend.
func (g *GoGit) Open(path string, auth Auth) (Repository, error) {
	method, err := authMethod(auth)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &goGitRepository{repo: repo, path: path, auth: method, logger: g.logger}, nil
}

func authMethod(auth Auth) (transport.AuthMethod, error) {
	switch {
	case auth.KeyFile != "":
		user := auth.User
		if user == "" {
			user = "git"
		}
		keys, err := ssh.NewPublicKeysFromFile(user, auth.KeyFile, "")
		if err != nil {
			return nil, fmt.Errorf("load ssh key: %w", err)
		}
		return keys, nil
	case auth.Token != "":
		return &githttp.BasicAuth{Username: "x-access-token", Password: auth.Token}, nil
	default:
		return nil, nil
	}
}

type goGitRepository struct {
	repo   *git.Repository
	path   string
	auth   transport.AuthMethod
	logger *zap.Logger
}

func (r *goGitRepository) Fetch(ctx context.Context, refSpec string) error {
	spec := config.RefSpec(refSpec)
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid refspec %q: %w", refSpec, err)
	}
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       r.auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s: %w", refSpec, err)
	}
	return nil
}

func (r *goGitRepository) Reset(ctx context.Context, commit string) error {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrUnknownRevision, commit, err)
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := w.Reset(&git.ResetOptions{Commit: *hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to %s: %w", commit, err)
	}
	if err := w.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return ctx.Err()
}

func (r *goGitRepository) Checkout(ctx context.Context, branch string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}
	name := plumbing.NewBranchReferenceName(branch)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(name, head.Hash())); err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := w.Checkout(&git.CheckoutOptions{Branch: name, Keep: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	return ctx.Err()
}

func (r *goGitRepository) Commit(ctx context.Context, message string, author Signature) (string, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		return "", ErrNothingToCommit
	}

	for path, s := range status {
		if s.Worktree == git.Unmodified {
			continue
		}
		if s.Worktree == git.Deleted {
			_, err = w.Remove(path)
		} else {
			_, err = w.Add(path)
		}
		if err != nil {
			return "", fmt.Errorf("stage %s: %w", path, err)
		}
	}

	when := author.When
	if when.IsZero() {
		when = time.Now()
	}
	sig := &object.Signature{Name: author.Name, Email: author.Email, When: when}
	hash, err := w.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	r.logger.Debug("committed changes", zap.String("commit", hash.String()))
	return hash.String(), ctx.Err()
}

func (r *goGitRepository) Push(ctx context.Context, branch string) error {
	name := plumbing.NewBranchReferenceName(branch)
	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(name + ":" + name)},
		Auth:       r.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}
