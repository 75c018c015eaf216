// Package resolver turns a project's declared style configuration into the
// immutable StyleConfig an engine runs with.
package resolver

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/stylefix/internal/engine"
	"github.com/fyrsmithlabs/stylefix/internal/finder"
	"github.com/fyrsmithlabs/stylefix/internal/styleconfig"
	"go.uber.org/zap"
)

// Options are the caller's overrides for one run.
type Options struct {
	// Config replaces the project's configuration file when non-nil.
	Config []byte
	// Header forces the header rule on with this text.
	Header string
	// CachePath enables caching at this artifact path.
	CachePath string
}

// Resolver resolves style configurations.
type Resolver struct {
	logger *zap.Logger
}

// New creates a Resolver.
func New(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve reads the configuration of the project at projectPath (or
// opts.Config) and keeps only the rules found in catalog. Unknown rule
// names are dropped without error.
func (r *Resolver) Resolve(projectPath string, catalog []string, opts Options) (engine.StyleConfig, error) {
	declared, err := r.declared(projectPath, opts.Config)
	if err != nil {
		return engine.StyleConfig{}, err
	}

	spec := finder.FromExtensions(declared.Extensions, declared.Excluded)
	if declared.Finder != nil {
		spec = *declared.Finder
	}
	files, err := finder.New(spec)
	if err != nil {
		return engine.StyleConfig{}, fmt.Errorf("%w: finder: %v", styleconfig.ErrInvalid, err)
	}

	known := make(map[string]bool, len(catalog))
	for _, name := range catalog {
		known[name] = true
	}

	var rules, dropped []string
	for _, name := range declared.Rules {
		if known[name] {
			rules = append(rules, name)
		} else {
			dropped = append(dropped, name)
		}
	}

	header := declared.Header
	if opts.Header != "" {
		header = opts.Header
		if known[engine.HeaderRule] {
			rules = append(rules, engine.HeaderRule)
		}
	}

	if len(dropped) > 0 {
		sort.Strings(dropped)
		r.logger.Debug("dropping rules unknown to the engine", zap.Strings("rules", dropped))
	}

	return engine.NewStyleConfig(engine.Settings{
		Rules:     rules,
		Files:     files,
		CachePath: opts.CachePath,
		Linting:   declared.Linting,
		Header:    header,
	}), nil
}

func (r *Resolver) declared(projectPath string, override []byte) (*styleconfig.Declared, error) {
	if override != nil {
		return styleconfig.Parse(override)
	}
	d, found, err := styleconfig.Load(projectPath)
	if err != nil {
		return nil, err
	}
	if !found {
		r.logger.Debug("no style configuration, using defaults", zap.String("file", styleconfig.FileName))
	}
	return d, nil
}
