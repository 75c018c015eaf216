package fixer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/stylefix/internal/attempt"
	"github.com/fyrsmithlabs/stylefix/internal/repository"
	"github.com/fyrsmithlabs/stylefix/internal/telemetry"
	"github.com/fyrsmithlabs/stylefix/internal/vcs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrEmptyDiff is returned when there is nothing to apply.
	ErrEmptyDiff = errors.New("diff is empty")
	// ErrNoTarget is returned when neither the options nor the project name
	// a branch to publish to.
	ErrNoTarget = errors.New("no target branch")
)

// ApplierConfig holds the collaborators of an Applier.
type ApplierConfig struct {
	Repositories *repository.Factory
	Policy       attempt.Policy
	Telemetry    *telemetry.Telemetry
	Logger       *zap.Logger
}

// ApplyOptions are per-run inputs of Apply.
type ApplyOptions struct {
	// Target is the branch to publish to. Defaults to the project branch.
	Target string
	// Message is the commit message. Defaults to
	// repository.DefaultCommitMessage.
	Message string
	// Author signs the commit. Defaults to the configured bot identity.
	Author *vcs.Signature
	// Key is a PEM private key for SSH transport.
	Key string
}

// Applier commits a previously produced diff and publishes it.
type Applier struct {
	runner
}

// NewApplier creates an Applier.
func NewApplier(cfg ApplierConfig) (*Applier, error) {
	if cfg.Repositories == nil {
		return nil, errors.New("repository factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{runner: runner{
		repositories: cfg.Repositories,
		policy:       cfg.Policy,
		inst:         newInstruments(cfg.Telemetry, logger),
		logger:       logger,
	}}, nil
}

// Apply sets the project up at its commit, applies diff on the target branch,
// commits and pushes it. It returns the new commit hash.
//
// Only the setup is retried. Failures after it are returned as they are and
// leave the working copy in place.
func (a *Applier) Apply(ctx context.Context, p Project, diff string, opts ApplyOptions) (string, error) {
	ctx, logger, err := a.begin(ctx, p)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(diff) == "" {
		return "", ErrEmptyDiff
	}
	target := opts.Target
	if target == "" {
		target = p.Branch
	}
	if target == "" {
		return "", fmt.Errorf("%w: pull request %d needs an explicit target", ErrNoTarget, p.PullRequest)
	}

	ctx, span := a.inst.tracer.Start(ctx, "fixer.apply", trace.WithAttributes(
		attribute.Int64("project.id", p.ID),
		attribute.String("project.name", p.Name),
		attribute.String("target", target),
	))
	defer span.End()

	hash, err := a.apply(ctx, p, diff, target, opts, logger)
	if err != nil {
		count(ctx, a.inst.applies, resultFailed)
		fail(span, err)
		logger.Error("apply failed", zap.String("target", target), zap.Error(err))
		return "", err
	}

	count(ctx, a.inst.applies, resultSuccessful)
	span.SetAttributes(attribute.String("commit", hash))
	logger.Info("fixes published", zap.String("target", target), zap.String("commit", hash))
	return hash, nil
}

func (a *Applier) apply(ctx context.Context, p Project, diff, target string, opts ApplyOptions, logger *zap.Logger) (string, error) {
	wc := a.repositories.Make(p.Name, p.ID, opts.Key)
	if err := a.setUp(ctx, wc, p, logger); err != nil {
		return "", err
	}

	if err := wc.Checkout(ctx, target); err != nil {
		return "", fmt.Errorf("checkout %s: %w", target, err)
	}
	if err := wc.Apply(ctx, diff); err != nil {
		return "", fmt.Errorf("apply diff: %w", err)
	}
	hash, err := wc.Commit(ctx, opts.Message, opts.Author)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if err := wc.Publish(ctx, target); err != nil {
		return "", fmt.Errorf("publish %s: %w", target, err)
	}
	return hash, nil
}
