// Package styleconfig parses a project's declared style configuration.
package styleconfig

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/stylefix/internal/finder"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// FileName is the configuration file looked up at the project root.
const FileName = ".styleci.yml"

const maxFileSize = 1024 * 1024 // 1MB

// ErrInvalid is returned for documents that cannot be used.
var ErrInvalid = errors.New("invalid style configuration")

var (
	defaultExtensions = []string{"php"}
	defaultExcluded   = []string{"vendor"}
)

// Declared is the configuration a project asks for, before it is matched
// against what an engine supports.
type Declared struct {
	Preset string
	// Rules is the explicit rules list, or else the preset plus enabled,
	// minus disabled in both cases. Sorted and unique.
	Rules      []string
	Extensions []string
	Excluded   []string
	// Finder replaces Extensions and Excluded when set.
	Finder  *finder.Spec
	Linting bool
	Header  string
}

type document struct {
	Preset     string       `koanf:"preset"`
	Rules      []string     `koanf:"rules"`
	Enabled    []string     `koanf:"enabled"`
	Disabled   []string     `koanf:"disabled"`
	Extensions []string     `koanf:"extensions"`
	Exclude    []string     `koanf:"exclude"`
	Finder     *finder.Spec `koanf:"finder"`
	Linting    *bool        `koanf:"linting"`
	Header     string       `koanf:"header"`

	// hasRules tells an explicit empty rules list from an absent one.
	hasRules bool
}

// Default is the configuration of a project without a configuration file.
func Default() *Declared {
	d, err := fromDocument(document{})
	if err != nil {
		panic(err)
	}
	return d
}

// Parse reads a YAML document.
func Parse(data []byte) (*Declared, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var doc document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	doc.hasRules = k.Exists("rules")
	return fromDocument(doc)
}

// Load parses the project's FileName. It returns Default and false when the
// file does not exist.
func Load(projectPath string) (*Declared, bool, error) {
	path := filepath.Join(projectPath, FileName)
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", FileName, err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, fmt.Errorf("%w: %s is not a regular file", ErrInvalid, FileName)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", FileName, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", FileName, err)
	}
	if len(data) > maxFileSize {
		return nil, false, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalid, FileName, maxFileSize)
	}

	d, err := Parse(data)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func fromDocument(doc document) (*Declared, error) {
	preset := strings.ToLower(strings.TrimSpace(doc.Preset))
	if preset == "" {
		preset = DefaultPreset
	}
	base, ok := PresetRules(preset)
	if !ok {
		return nil, fmt.Errorf("%w: unknown preset %q (known: %s)", ErrInvalid, doc.Preset, strings.Join(Presets(), ", "))
	}

	declared := append(base, doc.Enabled...)
	if doc.hasRules {
		declared = doc.Rules
	}
	rules := make(map[string]bool, len(declared))
	for _, r := range declared {
		if r = normalizeRule(r); r != "" {
			rules[r] = true
		}
	}
	for _, r := range doc.Disabled {
		delete(rules, normalizeRule(r))
	}

	d := &Declared{
		Preset:     preset,
		Rules:      make([]string, 0, len(rules)),
		Extensions: orDefault(doc.Extensions, defaultExtensions),
		Excluded:   orDefault(doc.Exclude, defaultExcluded),
		Finder:     doc.Finder,
		Linting:    doc.Linting == nil || *doc.Linting,
		Header:     strings.TrimSpace(doc.Header),
	}
	for r := range rules {
		d.Rules = append(d.Rules, r)
	}
	sort.Strings(d.Rules)
	return d, nil
}

func normalizeRule(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func orDefault(values, def []string) []string {
	if len(values) == 0 {
		return append([]string(nil), def...)
	}
	return append([]string(nil), values...)
}
