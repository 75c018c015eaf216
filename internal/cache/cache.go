// Package cache binds incremental-analysis cache artifacts to a run.
//
// Artifacts are keyed by project id and ref ("branch.<name>" or "pr.<n>").
// A ref with no artifact of its own inherits a copy of the default branch's
// artifact so new branches and pull requests do not start cold. Artifacts
// survive tear down; the manager holds no locks and callers serialize runs
// per (project, ref).
package cache

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Layout selects the on-disk naming scheme.
type Layout string

const (
	// LayoutEngine stores <root>/cache/<id>/<escaped key>.cache.
	LayoutEngine Layout = "engine"
	// LayoutLegacy stores <root>/fixers/<id>/branch-<name> and pr-<n>.
	LayoutLegacy Layout = "legacy"
)

const (
	branchPrefix = "branch."
	prPrefix     = "pr."
)

// ErrInvalidKey is returned for ref names that are not "branch.<name>" or "pr.<n>".
var ErrInvalidKey = errors.New("invalid cache key")

// Binding is the cache artifact bound to one run.
type Binding struct {
	ID             int64
	RefName        string
	DefaultRefName string

	path  string
	bound bool
}

// Path is the artifact location the engine reads and writes.
func (b *Binding) Path() string { return b.path }

// Bound reports whether the binding is still held by a run.
func (b *Binding) Bound() bool { return b.bound }

// Manager creates and releases cache bindings.
type Manager struct {
	root   string
	layout Layout
	logger *zap.Logger
}

// NewManager creates a manager storing artifacts under root.
func NewManager(root string, layout Layout, logger *zap.Logger) (*Manager, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("cache root must be absolute: %q", root)
	}
	switch layout {
	case "":
		layout = LayoutEngine
	case LayoutEngine, LayoutLegacy:
	default:
		return nil, fmt.Errorf("unknown cache layout %q", layout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{root: root, layout: layout, logger: logger}, nil
}

// SetUp binds the artifact for (id, refName). When it does not exist yet and
// the default branch has one, that artifact is copied forward first.
// defaultRefName is a branch name or an already prefixed key; empty disables
// inheritance.
func (m *Manager) SetUp(id int64, refName, defaultRefName string) (*Binding, error) {
	path, err := m.Path(id, refName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	b := &Binding{ID: id, RefName: refName, DefaultRefName: defaultRefName, path: path, bound: true}
	logger := m.logger.With(zap.Int64("project.id", id), zap.String("run.ref", refName))

	if exists(path) {
		setupsTotal.WithLabelValues(resultHit).Inc()
		logger.Debug("cache hit", zap.String("path", path))
		return b, nil
	}

	if defaultRefName != "" {
		src, err := m.Path(id, defaultKey(defaultRefName))
		if err != nil {
			return nil, err
		}
		if src != path && exists(src) {
			if err := copyFile(src, path); err != nil {
				return nil, fmt.Errorf("inherit cache from %s: %w", defaultRefName, err)
			}
			setupsTotal.WithLabelValues(resultInherited).Inc()
			logger.Debug("cache inherited from default branch", zap.String("from", src))
			return b, nil
		}
	}

	setupsTotal.WithLabelValues(resultCold).Inc()
	logger.Debug("cache cold", zap.String("path", path))
	return b, nil
}

// TearDown releases b. The artifact stays on disk for the next run.
func (m *Manager) TearDown(b *Binding) {
	if b == nil || !b.bound {
		return
	}
	b.bound = false
	m.logger.Debug("cache unbound",
		zap.Int64("project.id", b.ID),
		zap.String("run.ref", b.RefName),
	)
}

// Path computes the artifact location for (id, refName) without touching
// the disk.
func (m *Manager) Path(id int64, refName string) (string, error) {
	kind, name, err := splitKey(refName)
	if err != nil {
		return "", err
	}
	dir := strconv.FormatInt(id, 10)
	if m.layout == LayoutLegacy {
		return filepath.Join(m.root, "fixers", dir, kind+"-"+url.PathEscape(name)), nil
	}
	return filepath.Join(m.root, "cache", dir, url.PathEscape(refName)+".cache"), nil
}

func splitKey(refName string) (kind, name string, err error) {
	switch {
	case strings.HasPrefix(refName, branchPrefix):
		kind, name = "branch", strings.TrimPrefix(refName, branchPrefix)
	case strings.HasPrefix(refName, prPrefix):
		kind, name = "pr", strings.TrimPrefix(refName, prPrefix)
		if n, err := strconv.Atoi(name); err != nil || n <= 0 {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, refName)
		}
	}
	if name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, refName)
	}
	return kind, name, nil
}

func defaultKey(name string) string {
	if strings.HasPrefix(name, branchPrefix) || strings.HasPrefix(name, prPrefix) {
		return name
	}
	return branchPrefix + name
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// copyFile copies src to dst through a temporary file in dst's directory so
// a failed copy never leaves a truncated artifact behind.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".inherit-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
