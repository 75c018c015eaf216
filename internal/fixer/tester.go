package fixer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/stylefix/internal/engine"
	"github.com/fyrsmithlabs/stylefix/internal/report"
	"github.com/fyrsmithlabs/stylefix/internal/resolver"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SampleFileName is the name a tested sample is analyzed under.
const SampleFileName = "Test.php"

// TesterConfig holds the collaborators of a Tester.
type TesterConfig struct {
	// Scratch is the directory test runs create their files under.
	Scratch string
	Engines engine.Factory
	Logger  *zap.Logger
}

// TestOptions are per-run inputs of Test.
type TestOptions struct {
	Config []byte
	Header string
}

// Results is the outcome of testing a configuration against a sample.
type Results struct {
	// Sample is the fixed sample.
	Sample string               `json:"sample"`
	Errors []report.ErrorRecord `json:"errors"`
}

// Tester runs a configuration against a code sample without a repository.
type Tester struct {
	scratch  string
	engines  engine.Factory
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// NewTester creates a Tester.
func NewTester(cfg TesterConfig) (*Tester, error) {
	if !filepath.IsAbs(cfg.Scratch) {
		return nil, fmt.Errorf("scratch directory must be absolute: %q", cfg.Scratch)
	}
	if cfg.Engines == nil {
		return nil, errors.New("engine factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tester{
		scratch:  cfg.Scratch,
		engines:  cfg.Engines,
		resolver: resolver.New(logger),
		logger:   logger,
	}, nil
}

// Test fixes sample with the given configuration. The scratch files are
// removed whatever the outcome.
func (t *Tester) Test(ctx context.Context, sample string, opts TestOptions) (*Results, error) {
	dir := filepath.Join(t.scratch, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			t.logger.Warn("failed to remove scratch directory", zap.String("path", dir), zap.Error(err))
		}
	}()

	path := filepath.Join(dir, SampleFileName)
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return nil, fmt.Errorf("write sample: %w", err)
	}

	eng, err := t.engines()
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	cfg, err := t.resolver.Resolve(dir, eng.Rules(), resolver.Options{
		Config: opts.Config,
		Header: opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve style configuration: %w", err)
	}

	errs, err := eng.Analyze(ctx, dir, cfg)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	fixed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixed sample: %w", err)
	}
	return &Results{
		Sample: string(fixed),
		Errors: report.Records(errs, dir),
	}, nil
}
