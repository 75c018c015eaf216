// Package finder selects the files of a project that the engine analyzes.
//
// A Finder always skips dot files, dot directories, version control
// directories, vendor directories and Blade templates. On top of that every
// configured pattern must accept a file, including every pattern of one
// filter kind, and exclusions win over inclusions. Extensions are the one
// list of alternatives. A Finder with no name patterns accepts every file
// name.
package finder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Spec is the declarative form of a Finder, as written in a project's style
// configuration.
type Spec struct {
	In          []string `koanf:"in"`
	Exclude     []string `koanf:"exclude"`
	Name        []string `koanf:"name"`
	NotName     []string `koanf:"not-name"`
	Contains    []string `koanf:"contains"`
	NotContains []string `koanf:"not-contains"`
	Path        []string `koanf:"path"`
	NotPath     []string `koanf:"not-path"`
	Depth       []string `koanf:"depth"`
	Date        []string `koanf:"date"`

	// Extensions selects files ending in any of the listed extensions. It is
	// set by FromExtensions, never by a finder section.
	Extensions []string `koanf:"-"`
}

// FromExtensions builds the spec used when a project declares file
// extensions and excluded directories instead of a finder section.
func FromExtensions(extensions, excluded []string) Spec {
	return Spec{
		Exclude:    append([]string(nil), excluded...),
		Extensions: append([]string(nil), extensions...),
	}
}

// alwaysSkipped are directory names never searched.
var alwaysSkipped = map[string]bool{
	"CVS":          true,
	"_darcs":       true,
	".arch-params": true,
	".monotone":    true,
	".bzr":         true,
	".git":         true,
	".hg":          true,
	".svn":         true,
	"vendor":       true,
}

const bladeSuffix = ".blade.php"

// Finder is a compiled Spec. It is immutable and safe for concurrent use.
type Finder struct {
	in      []string
	exclude []string

	extensions            []matcher
	name, notName         []matcher
	contains, notContains []matcher
	path, notPath         []matcher
	depth                 []depthRule
	date                  []dateRule
}

// New compiles spec. Date expressions are resolved against the current time.
func New(spec Spec) (*Finder, error) {
	return newAt(spec, time.Now())
}

func newAt(spec Spec, now time.Time) (*Finder, error) {
	f := &Finder{}

	for _, dir := range spec.In {
		f.in = append(f.in, cleanRel(dir))
	}
	if len(f.in) == 0 {
		f.in = []string{""}
	}
	for _, dir := range spec.Exclude {
		if dir = cleanRel(dir); dir != "" {
			f.exclude = append(f.exclude, dir)
		}
	}

	var err error
	for _, ext := range spec.Extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			continue
		}
		m, err := namePattern("*." + ext)
		if err != nil {
			return nil, err
		}
		f.extensions = append(f.extensions, m)
	}
	if f.name, err = compileAll(spec.Name, namePattern); err != nil {
		return nil, err
	}
	if f.notName, err = compileAll(spec.NotName, namePattern); err != nil {
		return nil, err
	}
	if f.contains, err = compileAll(spec.Contains, textPattern); err != nil {
		return nil, err
	}
	if f.notContains, err = compileAll(spec.NotContains, textPattern); err != nil {
		return nil, err
	}
	if f.path, err = compileAll(spec.Path, textPattern); err != nil {
		return nil, err
	}
	if f.notPath, err = compileAll(spec.NotPath, textPattern); err != nil {
		return nil, err
	}

	for _, expr := range spec.Depth {
		rule, err := parseDepth(expr)
		if err != nil {
			return nil, err
		}
		f.depth = append(f.depth, rule)
	}
	for _, expr := range spec.Date {
		rule, err := parseDate(expr, now)
		if err != nil {
			return nil, err
		}
		f.date = append(f.date, rule)
	}
	return f, nil
}

// cleanRel normalizes a user supplied relative directory to slash form with
// no leading or trailing separators; the project root is "".
func cleanRel(dir string) string {
	dir = path.Clean("/" + filepath.ToSlash(strings.TrimSpace(dir)))
	return strings.TrimPrefix(dir, "/")
}

// Match reports whether the file at rel, a slash-separated path relative to
// root, is selected.
func (f *Finder) Match(root, rel string) bool {
	rel = cleanRel(rel)
	for _, in := range f.in {
		sub, ok := within(in, rel)
		if ok && f.matchFile(filepath.Join(root, filepath.FromSlash(rel)), sub) {
			return true
		}
	}
	return false
}

func within(dir, rel string) (string, bool) {
	if dir == "" {
		return rel, rel != ""
	}
	if !strings.HasPrefix(rel, dir+"/") {
		return "", false
	}
	return strings.TrimPrefix(rel, dir+"/"), true
}

// matchFile applies every rule to a file; sub is its path below the search
// directory.
func (f *Finder) matchFile(abs, sub string) bool {
	dir, base := path.Split(sub)
	dir = strings.TrimSuffix(dir, "/")

	if dir != "" && f.skipDir(dir) {
		return false
	}
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, bladeSuffix) {
		return false
	}
	if len(f.extensions) > 0 && !anyMatch(f.extensions, base) {
		return false
	}
	if !allMatch(f.name, base) {
		return false
	}
	if anyMatch(f.notName, base) {
		return false
	}
	if !allMatch(f.path, sub) {
		return false
	}
	if anyMatch(f.notPath, sub) {
		return false
	}

	depth := strings.Count(sub, "/")
	for _, rule := range f.depth {
		if !rule.accepts(depth) {
			return false
		}
	}

	info, err := os.Lstat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	for _, rule := range f.date {
		if !rule.accepts(info.ModTime()) {
			return false
		}
	}

	if len(f.contains) == 0 && len(f.notContains) == 0 {
		return true
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return false
	}
	text := string(content)
	if !allMatch(f.contains, text) {
		return false
	}
	return !anyMatch(f.notContains, text)
}

// skipDir reports whether any segment of dir, or dir as a whole, is hidden,
// version control or excluded.
func (f *Finder) skipDir(dir string) bool {
	for _, seg := range strings.Split(dir, "/") {
		if strings.HasPrefix(seg, ".") || alwaysSkipped[seg] {
			return true
		}
	}
	wrapped := "/" + dir + "/"
	for _, ex := range f.exclude {
		if strings.Contains(wrapped, "/"+ex+"/") {
			return true
		}
	}
	return false
}

// Files walks root and returns the selected files as sorted, slash-separated
// paths relative to root.
func (f *Finder) Files(ctx context.Context, root string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, in := range f.in {
		start, err := securejoin.SecureJoin(root, filepath.FromSlash(in))
		if err != nil {
			return nil, fmt.Errorf("resolve finder directory %q: %w", in, err)
		}
		info, err := os.Stat(start)
		if err != nil {
			return nil, fmt.Errorf("finder directory %q: %w", in, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("finder directory %q is not a directory", in)
		}

		err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(start, p)
			if err != nil {
				return fmt.Errorf("computing relative path: %w", err)
			}
			sub := filepath.ToSlash(rel)
			if d.IsDir() {
				if sub != "." && f.skipDir(sub) {
					return filepath.SkipDir
				}
				return nil
			}
			if !f.matchFile(p, sub) {
				return nil
			}

			full := sub
			if in != "" {
				full = in + "/" + sub
			}
			if !seen[full] {
				seen[full] = true
				files = append(files, full)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %q: %w", in, err)
		}
	}

	sort.Strings(files)
	return files, nil
}
