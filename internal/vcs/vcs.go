// Package vcs is the version-control backend used by working copies.
//
// The backend is specified at its interface so the repository lifecycle can be
// tested against fakes; GoGit implements it in-process with go-git.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	// ErrNotRepository is returned by Open when path holds no repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrPatchConflict is returned by Apply when a patch does not fit the tree.
	ErrPatchConflict = errors.New("patch does not apply")

	// ErrNothingToCommit is returned by Commit on a clean tree.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrUnknownRevision is returned by Reset when the commit is not present.
	ErrUnknownRevision = errors.New("unknown revision")
)

// Auth selects the transport credentials for clone, fetch and push.
type Auth struct {
	// KeyFile is a PEM private key used for SSH remotes.
	KeyFile string
	// User is the SSH user, "git" when empty.
	User string
	// Token is sent as HTTP basic auth for HTTPS remotes.
	Token string
}

// Signature identifies a commit author.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// ParseSignature parses "Name <email>".
func ParseSignature(s string) (Signature, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return Signature{}, fmt.Errorf("invalid author %q: %w", s, err)
	}
	if addr.Name == "" {
		return Signature{}, fmt.Errorf("invalid author %q: missing name", s)
	}
	return Signature{Name: addr.Name, Email: addr.Address}, nil
}

// String formats the signature as "Name <email>".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// Backend creates repositories on disk.
type Backend interface {
	// Clone clones url into dest, which must not exist yet.
	Clone(ctx context.Context, url, dest string, auth Auth) (Repository, error)
	// Open opens the repository at path.
	Open(path string, auth Auth) (Repository, error)
}

// Repository is a local clone with an "origin" remote.
type Repository interface {
	// Fetch fetches one refspec from origin. Being up to date is not an error.
	Fetch(ctx context.Context, refSpec string) error
	// Reset hard-resets the tree to commit and removes untracked files.
	Reset(ctx context.Context, commit string) error
	// Diff returns uncommitted changes against HEAD as a git unified diff.
	Diff(ctx context.Context) (string, error)
	// Checkout points branch at HEAD and switches to it, like checkout -B.
	Checkout(ctx context.Context, branch string) error
	// Apply applies a git unified diff to the working tree.
	Apply(ctx context.Context, patch string) error
	// Commit stages every change and commits it.
	Commit(ctx context.Context, message string, author Signature) (string, error)
	// Push publishes branch to the same name on origin.
	Push(ctx context.Context, branch string) error
}
