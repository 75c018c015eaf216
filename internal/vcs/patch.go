package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/binary"
	utildiff "github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff implements Repository. Paths are ordered so the output is stable.
func (r *goGitRepository) Diff(ctx context.Context) (string, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		return "", nil
	}

	head, err := r.headTree()
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(status))
	for path, s := range status {
		if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	p := &patch{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fp, err := r.filePatch(head, path)
		if err != nil {
			return "", err
		}
		if fp != nil {
			p.files = append(p.files, fp)
		}
	}
	if len(p.files) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	if err := fdiff.NewUnifiedEncoder(&buf, fdiff.DefaultContextLines).Encode(p); err != nil {
		return "", fmt.Errorf("encode diff: %w", err)
	}
	return buf.String(), nil
}

func (r *goGitRepository) headTree() (*object.Tree, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load HEAD tree: %w", err)
	}
	return tree, nil
}

// filePatch compares path in the HEAD tree with the working tree. It returns
// nil when both sides are byte-identical.
func (r *goGitRepository) filePatch(head *object.Tree, path string) (*filePatch, error) {
	var from, to *file
	var oldContent, newContent []byte

	if entry, err := head.FindEntry(path); err == nil {
		f, err := head.TreeEntryFile(entry)
		if err != nil {
			return nil, fmt.Errorf("load %s from HEAD: %w", path, err)
		}
		contents, err := f.Contents()
		if err != nil {
			return nil, fmt.Errorf("read %s from HEAD: %w", path, err)
		}
		oldContent = []byte(contents)
		from = &file{path: path, hash: f.Hash, mode: entry.Mode}
	} else if !errors.Is(err, object.ErrEntryNotFound) && !errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, fmt.Errorf("look up %s in HEAD: %w", path, err)
	}

	abs := filepath.Join(r.path, filepath.FromSlash(path))
	if info, err := os.Lstat(abs); err == nil && info.Mode().IsRegular() {
		newContent, err = os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		mode, err := filemode.NewFromOSFileMode(info.Mode())
		if err != nil {
			mode = filemode.Regular
		}
		to = &file{path: path, hash: plumbing.ComputeHash(plumbing.BlobObject, newContent), mode: mode}
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if from == nil && to == nil {
		return nil, nil
	}
	if from != nil && to != nil && from.hash == to.hash && from.mode == to.mode {
		return nil, nil
	}

	fp := &filePatch{from: from, to: to}
	if isBinary(oldContent) || isBinary(newContent) {
		fp.binary = true
		return fp, nil
	}
	fp.chunks = chunks(string(oldContent), string(newContent))
	return fp, nil
}

func isBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	ok, err := binary.IsBinary(bytes.NewReader(content))
	return err == nil && ok
}

func chunks(from, to string) []fdiff.Chunk {
	diffs := utildiff.Do(from, to)
	out := make([]fdiff.Chunk, 0, len(diffs))
	for _, d := range diffs {
		var op fdiff.Operation
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			op = fdiff.Equal
		case diffmatchpatch.DiffInsert:
			op = fdiff.Add
		case diffmatchpatch.DiffDelete:
			op = fdiff.Delete
		}
		out = append(out, &chunk{content: d.Text, op: op})
	}
	return out
}

// patch, filePatch, file and chunk implement the fdiff interfaces for a
// working tree that has no git objects for its modified side.
type patch struct {
	files []fdiff.FilePatch
}

func (p *patch) FilePatches() []fdiff.FilePatch { return p.files }
func (p *patch) Message() string { return "" }

type filePatch struct {
	from, to *file
	binary   bool
	chunks   []fdiff.Chunk
}

func (fp *filePatch) IsBinary() bool { return fp.binary }

func (fp *filePatch) Files() (fdiff.File, fdiff.File) {
	// Typed nils must not leak into the interface values.
	var from, to fdiff.File
	if fp.from != nil {
		from = fp.from
	}
	if fp.to != nil {
		to = fp.to
	}
	return from, to
}

func (fp *filePatch) Chunks() []fdiff.Chunk { return fp.chunks }

type file struct {
	path string
	hash plumbing.Hash
	mode filemode.FileMode
}

func (f *file) Hash() plumbing.Hash { return f.hash }
func (f *file) Mode() filemode.FileMode { return f.mode }
func (f *file) Path() string { return f.path }

type chunk struct {
	content string
	op      fdiff.Operation
}

func (c *chunk) Content() string { return c.content }
func (c *chunk) Type() fdiff.Operation { return c.op }
