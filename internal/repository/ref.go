package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRef is returned when a ref names neither or both of a branch and
// a pull request.
var ErrInvalidRef = errors.New("exactly one of branch or pull request must be set")

// Ref selects what to fetch from origin: a branch or a pull request head.
type Ref struct {
	Branch      string
	PullRequest int
}

// BranchRef returns a ref for a branch.
func BranchRef(name string) Ref {
	return Ref{Branch: name}
}

// PullRequestRef returns a ref for the head of pull request n.
func PullRequestRef(n int) Ref {
	return Ref{PullRequest: n}
}

// Validate reports whether exactly one selector is set.
func (r Ref) Validate() error {
	switch {
	case r.Branch != "" && r.PullRequest != 0:
		return fmt.Errorf("%w: got branch %q and pull request %d", ErrInvalidRef, r.Branch, r.PullRequest)
	case r.Branch == "" && r.PullRequest == 0:
		return ErrInvalidRef
	case r.PullRequest < 0:
		return fmt.Errorf("%w: pull request %d", ErrInvalidRef, r.PullRequest)
	case strings.ContainsAny(r.Branch, " ~^:?*[\\"):
		return fmt.Errorf("%w: branch %q", ErrInvalidRef, r.Branch)
	}
	return nil
}

// IsPullRequest reports whether the ref is a pull request head.
func (r Ref) IsPullRequest() bool {
	return r.Branch == "" && r.PullRequest > 0
}

// Name is the full reference name on origin.
func (r Ref) Name() string {
	if r.IsPullRequest() {
		return fmt.Sprintf("refs/pull/%d/head", r.PullRequest)
	}
	return "refs/heads/" + r.Branch
}

// RefSpec is the forced fetch refspec into the origin remote namespace.
func (r Ref) RefSpec() string {
	if r.IsPullRequest() {
		return fmt.Sprintf("+%s:refs/remotes/origin/pr/%d", r.Name(), r.PullRequest)
	}
	return fmt.Sprintf("+%s:refs/remotes/origin/%s", r.Name(), r.Branch)
}

// CacheKey names the ref for the cache manager: "branch.<name>" or "pr.<n>".
func (r Ref) CacheKey() string {
	if r.IsPullRequest() {
		return fmt.Sprintf("pr.%d", r.PullRequest)
	}
	return "branch." + r.Branch
}

func (r Ref) String() string {
	return r.CacheKey()
}
