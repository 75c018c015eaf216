package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fyrsmithlabs/stylefix/internal/attempt"
	"github.com/fyrsmithlabs/stylefix/internal/cache"
	"github.com/fyrsmithlabs/stylefix/internal/config"
	"github.com/fyrsmithlabs/stylefix/internal/engine/native"
	"github.com/fyrsmithlabs/stylefix/internal/fixer"
	"github.com/fyrsmithlabs/stylefix/internal/hosting"
	"github.com/fyrsmithlabs/stylefix/internal/logging"
	"github.com/fyrsmithlabs/stylefix/internal/repository"
	"github.com/fyrsmithlabs/stylefix/internal/telemetry"
	"github.com/fyrsmithlabs/stylefix/internal/vcs"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
)

// app holds the process-wide dependencies built from configuration.
type app struct {
	cfg         *config.Config
	logger      *logging.Logger
	tel         *telemetry.Telemetry
	metricsFile string
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, errors.Join(err, tel.Shutdown(ctx))
	}
	if err := tel.Degraded(); err != nil {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(err))
	}

	return &app{cfg: cfg, logger: logger, tel: tel, metricsFile: flags.metricsFile}, nil
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.Endpoint != "" {
		tc.Endpoint = cfg.Telemetry.Endpoint
	}
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	return tc
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	// Command output goes to stdout; logs must not mix with it.
	lc.Stderr = true
	lc.OTEL = cfg.Telemetry.Enabled
	return logging.New(lc, global.GetLoggerProvider())
}

// close flushes telemetry, metrics and logs.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, prometheus.DefaultGatherer); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, err)
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *app) zap() *zap.Logger {
	return a.logger.Underlying()
}

func (a *app) policy() attempt.Policy {
	return attempt.Policy{Backoff: a.cfg.Retry.Backoff.Duration(), Logger: a.zap()}
}

func (a *app) repositories() (*repository.Factory, error) {
	return repository.NewFactory(vcs.NewGoGit(a.zap().Named("vcs")), repository.Options{
		Root:              a.cfg.Storage.Root,
		RemoteTemplate:    a.cfg.Git.RemoteTemplate,
		SSHRemoteTemplate: a.cfg.Git.SSHRemoteTemplate,
		SSHUser:           a.cfg.Git.SSHUser,
		Token:             a.cfg.GitHub.Token.Value(),
		Author:            vcs.Signature{Name: a.cfg.Git.AuthorName, Email: a.cfg.Git.AuthorEmail},
	}, a.zap().Named("repository"))
}

func (a *app) analyzer(ctx context.Context) (*fixer.Analyzer, error) {
	repos, err := a.repositories()
	if err != nil {
		return nil, err
	}

	var caches fixer.CacheBinder
	if !a.cfg.Cache.Disabled {
		manager, err := cache.NewManager(a.cfg.Storage.Root, cache.Layout(a.cfg.Cache.Layout), a.zap().Named("cache"))
		if err != nil {
			return nil, err
		}
		caches = manager
	}

	branches, err := hosting.NewClient(ctx, hosting.Options{
		Token:             a.cfg.GitHub.Token,
		BaseURL:           a.cfg.GitHub.BaseURL,
		RequestsPerSecond: a.cfg.GitHub.RequestsPerSecond,
		Burst:             a.cfg.GitHub.Burst,
	}, a.zap().Named("hosting"))
	if err != nil {
		return nil, err
	}

	return fixer.NewAnalyzer(fixer.AnalyzerConfig{
		Repositories: repos,
		Engines:      native.Factory(a.zap().Named("engine")),
		Caches:       caches,
		Branches:     branches,
		Policy:       a.policy(),
		Telemetry:    a.tel,
		Logger:       a.zap().Named("fixer"),
	})
}

func (a *app) applier() (*fixer.Applier, error) {
	repos, err := a.repositories()
	if err != nil {
		return nil, err
	}
	return fixer.NewApplier(fixer.ApplierConfig{
		Repositories: repos,
		Policy:       a.policy(),
		Telemetry:    a.tel,
		Logger:       a.zap().Named("fixer"),
	})
}

func (a *app) tester() (*fixer.Tester, error) {
	return fixer.NewTester(fixer.TesterConfig{
		Scratch: filepath.Join(a.cfg.Storage.Root, "scratch"),
		Engines: native.Factory(a.zap().Named("engine")),
		Logger:  a.zap().Named("fixer"),
	})
}
