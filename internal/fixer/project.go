package fixer

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fyrsmithlabs/stylefix/internal/logging"
	"github.com/fyrsmithlabs/stylefix/internal/repository"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidProject marks configuration errors in the caller's input.
	// They fail fast and are never retried.
	ErrInvalidProject = errors.New("invalid project")

	// ErrMissingRef is returned, wrapped in ErrInvalidProject, when a project
	// names neither a branch nor a pull request.
	ErrMissingRef = errors.New("project names neither a branch nor a pull request")
)

var projectValidate = validator.New()

// Project identifies a hosted repository at one revision.
//
// Exactly one of Branch and PullRequest is set.
type Project struct {
	Name        string `json:"name" validate:"required"`
	ID          int64  `json:"id" validate:"gt=0"`
	Commit      string `json:"commit" validate:"required,hexadecimal,min=7,max=64"`
	Branch      string `json:"branch,omitempty" validate:"required_without=PullRequest,excluded_with=PullRequest"`
	PullRequest int    `json:"pull_request,omitempty" validate:"omitempty,gt=0"`
}

// Validate checks the project before any work is done for it.
func (p Project) Validate() error {
	if err := projectValidate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Field() == "Branch" && fe.Tag() == "required_without" {
					return fmt.Errorf("%w: %w", ErrInvalidProject, ErrMissingRef)
				}
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	if err := p.Ref().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	return nil
}

// Ref is the ref the project's revision is fetched from.
func (p Project) Ref() repository.Ref {
	return repository.Ref{Branch: p.Branch, PullRequest: p.PullRequest}
}

func (p Project) run(id string) logging.Run {
	return logging.Run{
		ID:          id,
		ProjectID:   strconv.FormatInt(p.ID, 10),
		ProjectName: p.Name,
		Ref:         p.Ref().CacheKey(),
		Commit:      p.Commit,
	}
}
