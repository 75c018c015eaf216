// Package repository manages the local working copy of a hosted project.
//
// A WorkingCopy lives at <root>/repos/<project id>. It is created lazily on
// first use, may hold a private key for transport, and can be thrown away at
// any point: Delete is safe whether the copy is complete, partial or absent.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/stylefix/internal/vcs"
	"go.uber.org/zap"
)

// DefaultCommitMessage is used by Commit when no message is given.
const DefaultCommitMessage = "Applied fixes from stylefix"

// ErrNotCloned is returned by operations that need a clone before one exists.
var ErrNotCloned = errors.New("working copy has not been cloned")

// Options configures a Factory.
type Options struct {
	// Root is the storage root; working copies go under <Root>/repos.
	Root string
	// RemoteTemplate formats the HTTPS remote from "owner/repo".
	RemoteTemplate string
	// SSHRemoteTemplate formats the remote when a private key is supplied.
	SSHRemoteTemplate string
	SSHUser           string
	// Token authenticates HTTPS transport.
	Token string
	// Author signs commits that do not name one.
	Author vcs.Signature
}

// Factory makes working copies that share one backend and storage root.
type Factory struct {
	opts    Options
	backend vcs.Backend
	logger  *zap.Logger
}

// NewFactory creates a Factory.
func NewFactory(backend vcs.Backend, opts Options, logger *zap.Logger) (*Factory, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if !filepath.IsAbs(opts.Root) {
		return nil, fmt.Errorf("storage root must be absolute: %q", opts.Root)
	}
	if opts.RemoteTemplate == "" {
		opts.RemoteTemplate = "https://github.com/%s.git"
	}
	if opts.SSHRemoteTemplate == "" {
		opts.SSHRemoteTemplate = "git@github.com:%s.git"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{opts: opts, backend: backend, logger: logger}, nil
}

// Make returns the working copy for project id. Nothing touches the disk
// until the copy is used. key is an optional PEM private key.
func (f *Factory) Make(name string, id int64, key string) *WorkingCopy {
	dir := filepath.Join(f.opts.Root, "repos")
	base := strconv.FormatInt(id, 10)

	wc := &WorkingCopy{
		name:    name,
		id:      id,
		path:    filepath.Join(dir, base),
		key:     key,
		backend: f.backend,
		author:  f.opts.Author,
		logger:  f.logger.With(zap.String("project.name", name), zap.Int64("project.id", id)),
	}
	if key != "" {
		wc.keyPath = filepath.Join(dir, base+".key")
		wc.url = fmt.Sprintf(f.opts.SSHRemoteTemplate, name)
		wc.auth = vcs.Auth{KeyFile: wc.keyPath, User: f.opts.SSHUser}
	} else {
		wc.url = fmt.Sprintf(f.opts.RemoteTemplate, name)
		wc.auth = vcs.Auth{Token: f.opts.Token}
	}
	return wc
}

// WorkingCopy is one project's clone on local disk. It is not safe for
// concurrent use; callers serialize runs per project.
//
// A working copy made with a key writes it to <root>/repos/<id>.key with
// mode 0600. The key file outlives the run and stays on disk until Delete
// removes it together with the clone.
type WorkingCopy struct {
	name    string
	id      int64
	path    string
	keyPath string
	key     string
	url     string
	auth    vcs.Auth
	author  vcs.Signature
	backend vcs.Backend
	logger  *zap.Logger

	repo vcs.Repository
}

// Path is the working tree directory.
func (wc *WorkingCopy) Path() string { return wc.path }

// Name is the hosted "owner/repo" name.
func (wc *WorkingCopy) Name() string { return wc.name }

// ID is the project id.
func (wc *WorkingCopy) ID() int64 { return wc.id }

// Exists reports whether a clone is present, judged by its .git directory.
func (wc *WorkingCopy) Exists() bool {
	info, err := os.Stat(filepath.Join(wc.path, ".git"))
	return err == nil && info.IsDir()
}

// EnsureExists clones the project if there is no clone yet and opens it
// otherwise. A directory left behind by an interrupted clone is removed
// first.
func (wc *WorkingCopy) EnsureExists(ctx context.Context) error {
	if err := wc.writeKey(); err != nil {
		return err
	}
	if wc.repo != nil {
		return nil
	}

	if wc.Exists() {
		repo, err := wc.backend.Open(wc.path, wc.auth)
		if err != nil {
			return fmt.Errorf("open working copy: %w", err)
		}
		wc.repo = repo
		return nil
	}

	if err := os.RemoveAll(wc.path); err != nil {
		return fmt.Errorf("remove partial working copy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(wc.path), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	wc.logger.Info("cloning repository", zap.String("path", wc.path))
	repo, err := wc.backend.Clone(ctx, wc.url, wc.path, wc.auth)
	if err != nil {
		return fmt.Errorf("clone %s: %w", wc.name, err)
	}
	wc.repo = repo
	return nil
}

func (wc *WorkingCopy) writeKey() error {
	if wc.keyPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(wc.keyPath), 0o755); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	key := wc.key
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	if err := os.WriteFile(wc.keyPath, []byte(key), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(wc.keyPath, 0o600); err != nil {
		return fmt.Errorf("restrict private key: %w", err)
	}
	return nil
}

func (wc *WorkingCopy) open() (vcs.Repository, error) {
	if wc.repo != nil {
		return wc.repo, nil
	}
	if !wc.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotCloned, wc.path)
	}
	if err := wc.writeKey(); err != nil {
		return nil, err
	}
	repo, err := wc.backend.Open(wc.path, wc.auth)
	if err != nil {
		return nil, fmt.Errorf("open working copy: %w", err)
	}
	wc.repo = repo
	return repo, nil
}

// FetchRef fetches ref from origin into the remote-tracking namespace.
func (wc *WorkingCopy) FetchRef(ctx context.Context, ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	repo, err := wc.open()
	if err != nil {
		return err
	}
	wc.logger.Debug("fetching ref", zap.String("ref", ref.Name()))
	return repo.Fetch(ctx, ref.RefSpec())
}

// ResetTo hard-resets the tree to commit and removes untracked files.
func (wc *WorkingCopy) ResetTo(ctx context.Context, commit string) error {
	repo, err := wc.open()
	if err != nil {
		return err
	}
	return repo.Reset(ctx, commit)
}

// Setup brings the working copy to commit: clone if needed, fetch ref, reset.
func (wc *WorkingCopy) Setup(ctx context.Context, ref Ref, commit string) error {
	if err := wc.EnsureExists(ctx); err != nil {
		return err
	}
	if err := wc.FetchRef(ctx, ref); err != nil {
		return err
	}
	return wc.ResetTo(ctx, commit)
}

// Delete removes the working tree and the key file. Missing pieces are not
// an error.
func (wc *WorkingCopy) Delete(_ context.Context) error {
	wc.repo = nil
	var errs []error
	if err := os.RemoveAll(wc.path); err != nil {
		errs = append(errs, fmt.Errorf("remove working copy: %w", err))
	}
	if wc.keyPath != "" {
		if err := os.Remove(wc.keyPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove private key: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	wc.logger.Info("deleted working copy", zap.String("path", wc.path))
	return nil
}

// Diff returns uncommitted changes against HEAD as a git unified diff.
func (wc *WorkingCopy) Diff(ctx context.Context) (string, error) {
	repo, err := wc.open()
	if err != nil {
		return "", err
	}
	return repo.Diff(ctx)
}

// Checkout creates or moves branch to HEAD and switches to it.
func (wc *WorkingCopy) Checkout(ctx context.Context, branch string) error {
	if err := BranchRef(branch).Validate(); err != nil {
		return err
	}
	repo, err := wc.open()
	if err != nil {
		return err
	}
	return repo.Checkout(ctx, branch)
}

// Apply applies a git unified diff to the tree.
func (wc *WorkingCopy) Apply(ctx context.Context, patch string) error {
	repo, err := wc.open()
	if err != nil {
		return err
	}
	return repo.Apply(ctx, patch)
}

// Commit stages every change and commits it. An empty message means
// DefaultCommitMessage and a nil author means the factory's author.
func (wc *WorkingCopy) Commit(ctx context.Context, message string, author *vcs.Signature) (string, error) {
	repo, err := wc.open()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultCommitMessage
	}
	sig := wc.author
	if author != nil {
		sig = *author
	}
	hash, err := repo.Commit(ctx, message, sig)
	if err != nil {
		return "", err
	}
	wc.logger.Info("committed fixes", zap.String("commit", hash), zap.String("author", sig.String()))
	return hash, nil
}

// Publish pushes branch to origin.
func (wc *WorkingCopy) Publish(ctx context.Context, branch string) error {
	repo, err := wc.open()
	if err != nil {
		return err
	}
	if err := repo.Push(ctx, branch); err != nil {
		return err
	}
	wc.logger.Info("published branch", zap.String("branch", branch))
	return nil
}
