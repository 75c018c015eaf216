package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	securejoin "github.com/cyphar/filepath-securejoin"
)

// pendingWrite is one file outcome of a patch, computed before anything is
// written so a conflicting patch leaves the tree untouched.
type pendingWrite struct {
	path    string
	remove  string
	content []byte
	mode    os.FileMode
	delete  bool
}

// Apply implements Repository.
func (r *goGitRepository) Apply(ctx context.Context, patch string) error {
	return ApplyPatch(ctx, r.path, patch)
}

// ApplyPatch applies a git unified diff to the tree rooted at root.
// Every file is computed first; nothing is written unless all of them apply.
func ApplyPatch(ctx context.Context, root, patch string) error {
	files, _, err := gitdiff.Parse(strings.NewReader(patch))
	if err != nil {
		return fmt.Errorf("parse patch: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: patch contains no files", ErrPatchConflict)
	}

	writes := make([]pendingWrite, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, err := planFile(root, f)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}

	for _, w := range writes {
		if err := commitWrite(w); err != nil {
			return err
		}
	}
	return nil
}

func planFile(root string, f *gitdiff.File) (pendingWrite, error) {
	name := f.NewName
	if f.IsDelete {
		name = f.OldName
	}

	var src []byte
	mode := os.FileMode(0o644)
	if !f.IsNew {
		oldPath, err := securejoin.SecureJoin(root, f.OldName)
		if err != nil {
			return pendingWrite{}, fmt.Errorf("resolve %s: %w", f.OldName, err)
		}
		info, err := os.Stat(oldPath)
		if err != nil {
			return pendingWrite{}, fmt.Errorf("%w: %s: %v", ErrPatchConflict, f.OldName, err)
		}
		mode = info.Mode().Perm()
		if src, err = os.ReadFile(oldPath); err != nil {
			return pendingWrite{}, fmt.Errorf("read %s: %w", f.OldName, err)
		}
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(src), f); err != nil {
		return pendingWrite{}, fmt.Errorf("%w: %s: %v", ErrPatchConflict, name, err)
	}

	target, err := securejoin.SecureJoin(root, name)
	if err != nil {
		return pendingWrite{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	w := pendingWrite{path: target, content: out.Bytes(), mode: mode, delete: f.IsDelete}
	if f.NewMode != 0 {
		w.mode = f.NewMode.Perm()
	}
	if f.IsRename {
		if w.remove, err = securejoin.SecureJoin(root, f.OldName); err != nil {
			return pendingWrite{}, fmt.Errorf("resolve %s: %w", f.OldName, err)
		}
	}
	return w, nil
}

func commitWrite(w pendingWrite) error {
	if w.delete {
		if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", w.path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", w.path, err)
	}
	if err := os.WriteFile(w.path, w.content, w.mode); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if w.remove != "" && w.remove != w.path {
		if err := os.Remove(w.remove); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove renamed %s: %w", w.remove, err)
		}
	}
	return nil
}
