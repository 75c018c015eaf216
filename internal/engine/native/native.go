// Package native is the built-in analysis engine: a small set of PHP style
// rules, a linter, and a content-hash cache for incremental runs.
package native

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/stylefix/internal/engine"
	"github.com/fyrsmithlabs/stylefix/internal/finder"
	"go.uber.org/zap"
)

// Engine implements engine.Engine.
type Engine struct {
	logger *zap.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Factory returns an engine.Factory building native engines.
func Factory(logger *zap.Logger) engine.Factory {
	return func() (engine.Engine, error) {
		return New(logger), nil
	}
}

// Rules implements engine.Engine.
func (e *Engine) Rules() []string {
	return ruleNames()
}

// Analyze implements engine.Engine.
func (e *Engine) Analyze(ctx context.Context, dir string, cfg engine.StyleConfig) (*engine.Errors, error) {
	files := cfg.Files()
	if files == nil {
		var err error
		if files, err = finder.New(finder.Spec{}); err != nil {
			return nil, err
		}
	}
	paths, err := files.Files(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}

	var rules []rule
	for _, r := range catalog {
		if cfg.Enabled(r.name) {
			rules = append(rules, r)
		}
	}

	errs := &engine.Errors{}
	sig := signature(cfg)
	cache := newFileCache(sig)
	if cfg.CacheEnabled() {
		if cache, err = loadFileCache(cfg.CachePath(), sig); err != nil {
			e.logger.Warn("ignoring unreadable cache", zap.String("path", cfg.CachePath()), zap.Error(err))
		}
	}
	next := newFileCache(sig)

	var fixed int
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			errs.Exceptions = append(errs.Exceptions, engine.Error{Path: rel, Message: err.Error()})
			continue
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			errs.Exceptions = append(errs.Exceptions, engine.Error{Path: rel, Message: err.Error()})
			continue
		}

		hash := hashContent(content)
		if cache.fresh(rel, hash) {
			next.Hashes[rel] = hash
			continue
		}

		out, ok := e.fixFile(abs, rel, string(content), rules, cfg, errs)
		if !ok {
			continue
		}
		if out != string(content) {
			if err := os.WriteFile(abs, []byte(out), info.Mode().Perm()); err != nil {
				errs.Exceptions = append(errs.Exceptions, engine.Error{Path: rel, Message: err.Error()})
				continue
			}
			fixed++
		}
		next.Hashes[rel] = hashContent([]byte(out))
	}

	if cfg.CacheEnabled() {
		if err := next.save(cfg.CachePath()); err != nil {
			errs.Internal = append(errs.Internal, engine.Error{Message: err.Error()})
		}
	}

	e.logger.Debug("analysis finished",
		zap.Int("files", len(paths)),
		zap.Int("fixed", fixed),
		zap.Int("errors", errs.Len()),
	)
	return errs, nil
}

// fixFile runs the rules over one file. It returns false when the file must
// be left untouched; the reason is recorded in errs.
func (e *Engine) fixFile(abs, rel, src string, rules []rule, cfg engine.StyleConfig, errs *engine.Errors) (string, bool) {
	if err := lint(abs, src); err != nil {
		if cfg.Linting() {
			errs.Invalid = append(errs.Invalid, engine.Error{Path: rel, Message: err.Error()})
		}
		return "", false
	}

	out, err := applyRules(src, rules, cfg)
	if err != nil {
		errs.Exceptions = append(errs.Exceptions, engine.Error{Path: rel, Message: err.Error()})
		return "", false
	}

	if cfg.Linting() && out != src {
		if err := lint(abs, out); err != nil {
			errs.Lint = append(errs.Lint, engine.Error{Path: rel, Message: err.Error()})
			return "", false
		}
	}
	return out, true
}

func applyRules(src string, rules []rule, cfg engine.StyleConfig) (out string, err error) {
	out = src
	for _, r := range rules {
		out, err = applyRule(r, out, cfg)
		if err != nil {
			return "", err
		}
	}
	return out, nil
}

func applyRule(r rule, src string, cfg engine.StyleConfig) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rule %s panicked: %v", r.name, p)
		}
	}()
	out, err = r.fix(src, cfg)
	if err != nil {
		return "", fmt.Errorf("rule %s: %w", r.name, err)
	}
	return out, nil
}
