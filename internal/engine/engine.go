// Package engine defines the boundary to the analysis engine that inspects
// and rewrites source files.
//
// Engines see one immutable StyleConfig per run. Differences between engine
// implementations stay behind the Engine interface.
package engine

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/stylefix/internal/finder"
)

// HeaderRule is the rule that writes the configured header comment.
const HeaderRule = "header_comment"

// Engine analyzes a directory, rewriting files in place.
type Engine interface {
	// Rules is the catalog of rule names the engine knows.
	Rules() []string
	// Analyze fixes the files cfg selects under dir. Problems with single
	// files are reported in Errors; the error return is for failures of the
	// run as a whole.
	Analyze(ctx context.Context, dir string, cfg StyleConfig) (*Errors, error)
}

// Factory builds a fresh engine. It is called once per run.
type Factory func() (Engine, error)

// Error is one problem with one file. Path is relative to the analyzed
// directory; Message is the engine's raw text.
type Error struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Errors is the categorized error set of a run.
type Errors struct {
	// Invalid files could not be parsed before fixing.
	Invalid []Error `json:"invalid,omitempty"`
	// Exceptions are rule failures while fixing.
	Exceptions []Error `json:"exceptions,omitempty"`
	// Lint errors are files the fixes would have broken; they are left as is.
	Lint []Error `json:"lint,omitempty"`
	// Internal errors are engine failures not tied to a source file.
	Internal []Error `json:"internal,omitempty"`
}

// Len is the total number of errors.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Invalid) + len(e.Exceptions) + len(e.Lint) + len(e.Internal)
}

// Settings are the inputs of NewStyleConfig.
type Settings struct {
	Rules     []string
	Files     *finder.Finder
	CachePath string
	Linting   bool
	Header    string
}

// StyleConfig is the effective configuration of one run. It is a value:
// accessors return copies and nothing mutates it after construction.
type StyleConfig struct {
	rules     []string
	files     *finder.Finder
	cachePath string
	linting   bool
	header    string
}

// NewStyleConfig builds a StyleConfig. Rules are copied, sorted and
// de-duplicated.
func NewStyleConfig(s Settings) StyleConfig {
	seen := make(map[string]bool, len(s.Rules))
	rules := make([]string, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r != "" && !seen[r] {
			seen[r] = true
			rules = append(rules, r)
		}
	}
	sort.Strings(rules)
	return StyleConfig{
		rules:     rules,
		files:     s.Files,
		cachePath: s.CachePath,
		linting:   s.Linting,
		header:    s.Header,
	}
}

// Rules returns the enabled rule names, sorted.
func (c StyleConfig) Rules() []string {
	return append([]string(nil), c.rules...)
}

// Enabled reports whether rule is enabled.
func (c StyleConfig) Enabled(rule string) bool {
	i := sort.SearchStrings(c.rules, rule)
	return i < len(c.rules) && c.rules[i] == rule
}

// Files selects the files to analyze. Nil selects every file.
func (c StyleConfig) Files() *finder.Finder { return c.files }

// CacheEnabled reports whether a cache artifact is bound.
func (c StyleConfig) CacheEnabled() bool { return c.cachePath != "" }

// CachePath is the bound cache artifact, or "".
func (c StyleConfig) CachePath() string { return c.cachePath }

// Linting reports whether files are linted before and after fixing.
func (c StyleConfig) Linting() bool { return c.linting }

// Header is the header comment text, or "".
func (c StyleConfig) Header() string { return c.header }
