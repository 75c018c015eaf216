// Package fixer orchestrates analysis runs, diff application and config
// testing on top of the repository, cache and engine packages.
package fixer

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/stylefix/internal/attempt"
	"github.com/fyrsmithlabs/stylefix/internal/cache"
	"github.com/fyrsmithlabs/stylefix/internal/engine"
	"github.com/fyrsmithlabs/stylefix/internal/report"
	"github.com/fyrsmithlabs/stylefix/internal/repository"
	"github.com/fyrsmithlabs/stylefix/internal/resolver"
	"github.com/fyrsmithlabs/stylefix/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FallbackDefaultBranch is the cache inheritance source when no default
// branch is known.
const FallbackDefaultBranch = "master"

// DefaultBranchResolver looks up a hosted repository's default branch.
type DefaultBranchResolver interface {
	DefaultBranch(ctx context.Context, fullName string) (string, error)
}

// CacheBinder binds cache artifacts to runs. *cache.Manager implements it.
type CacheBinder interface {
	SetUp(id int64, refName, defaultRefName string) (*cache.Binding, error)
	TearDown(b *cache.Binding)
}

// AnalyzerConfig holds the collaborators of an Analyzer.
type AnalyzerConfig struct {
	Repositories *repository.Factory
	Engines      engine.Factory
	// Caches enables incremental analysis. Optional.
	Caches CacheBinder
	// Branches resolves default branches for cache inheritance. Optional.
	Branches  DefaultBranchResolver
	Policy    attempt.Policy
	Telemetry *telemetry.Telemetry
	Logger    *zap.Logger
}

// AnalyzeOptions are per-run inputs of Analyze.
type AnalyzeOptions struct {
	// Key is a PEM private key for SSH transport.
	Key string
	// Config replaces the project's own style configuration.
	Config []byte
	// Header forces the header rule on with this text.
	Header string
	// DefaultBranch skips the default branch lookup.
	DefaultBranch string
	// NoCache runs without binding a cache artifact.
	NoCache bool
}

// Analyzer produces reports of style fixes for a project revision.
type Analyzer struct {
	runner
	engines  engine.Factory
	caches   CacheBinder
	branches DefaultBranchResolver
	resolver *resolver.Resolver
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if cfg.Repositories == nil {
		return nil, errors.New("repository factory is required")
	}
	if cfg.Engines == nil {
		return nil, errors.New("engine factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		runner: runner{
			repositories: cfg.Repositories,
			policy:       cfg.Policy,
			inst:         newInstruments(cfg.Telemetry, logger),
			logger:       logger,
		},
		engines:  cfg.Engines,
		caches:   cfg.Caches,
		branches: cfg.Branches,
		resolver: resolver.New(logger),
	}, nil
}

// Analyze materializes the project at its commit, runs a fresh engine over it
// and reports the resulting diff and errors. The working copy keeps the
// fixes until the next setup resets it.
func (a *Analyzer) Analyze(ctx context.Context, p Project, opts AnalyzeOptions) (*report.Report, error) {
	ctx, logger, err := a.begin(ctx, p)
	if err != nil {
		return nil, err
	}

	ctx, span := a.inst.tracer.Start(ctx, "fixer.analyze", trace.WithAttributes(
		attribute.Int64("project.id", p.ID),
		attribute.String("project.name", p.Name),
		attribute.String("run.ref", p.Ref().CacheKey()),
	))
	defer span.End()

	rep, err := a.analyze(ctx, p, opts, logger)
	if err != nil {
		count(ctx, a.inst.analyses, resultFailed)
		fail(span, err)
		logger.Error("analysis failed", zap.Error(err))
		return nil, err
	}

	result := resultSuccessful
	if !rep.Successful() {
		result = resultUnsuccessful
	}
	count(ctx, a.inst.analyses, result)
	span.SetAttributes(
		attribute.Int("files", len(rep.Files())),
		attribute.Int("errors", len(rep.Errors())),
	)
	logger.Info("analysis finished",
		zap.Bool("successful", rep.Successful()),
		zap.Int("files", len(rep.Files())),
		zap.Int("errors", len(rep.Errors())),
	)
	return rep, nil
}

func (a *Analyzer) analyze(ctx context.Context, p Project, opts AnalyzeOptions, logger *zap.Logger) (*report.Report, error) {
	wc := a.repositories.Make(p.Name, p.ID, opts.Key)
	if err := a.setUp(ctx, wc, p, logger); err != nil {
		return nil, err
	}

	eng, err := a.engines()
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	var cachePath string
	if a.caches != nil && !opts.NoCache {
		binding, err := a.caches.SetUp(p.ID, p.Ref().CacheKey(), a.defaultBranch(ctx, p, opts, logger))
		if err != nil {
			logger.Warn("running without cache", zap.Error(err))
		} else {
			defer a.caches.TearDown(binding)
			cachePath = binding.Path()
		}
	}

	cfg, err := a.resolver.Resolve(wc.Path(), eng.Rules(), resolver.Options{
		Config:    opts.Config,
		Header:    opts.Header,
		CachePath: cachePath,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve style configuration: %w", err)
	}

	errs, err := eng.Analyze(ctx, wc.Path(), cfg)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	diff, err := wc.Diff(ctx)
	if err != nil {
		return nil, fmt.Errorf("diff working copy: %w", err)
	}
	return report.Build(diff, errs, wc.Path())
}

// defaultBranch picks the cache inheritance source: the caller's value, the
// hosting API's answer, or FallbackDefaultBranch.
func (a *Analyzer) defaultBranch(ctx context.Context, p Project, opts AnalyzeOptions, logger *zap.Logger) string {
	if opts.DefaultBranch != "" {
		return opts.DefaultBranch
	}
	if a.branches != nil {
		branch, err := a.branches.DefaultBranch(ctx, p.Name)
		if err == nil {
			return branch
		}
		logger.Warn("default branch lookup failed", zap.Error(err))
	}
	return FallbackDefaultBranch
}
