// Package sanitize cleans engine messages before they are stored or shown.
//
// Messages lose every reference to where the working copy lives on disk,
// have their whitespace collapsed and always end in exactly one full stop.
package sanitize

import (
	"path/filepath"
	"strings"
)

// minSeparators is where path shortening stops: "/var/repos" is never stripped
// piecemeal into "/var".
const minSeparators = 2

// Message sanitizes msg for storage, stripping workdir and its ancestors.
//
// Message is idempotent: Message(Message(m, p), p) == Message(m, p).
func Message(msg, workdir string) string {
	for {
		stripped := stripPaths(msg, workdir)
		if stripped == msg {
			break
		}
		msg = stripped
	}
	msg = strings.Join(strings.Fields(msg), " ")

	for {
		trimmed := strings.TrimSpace(strings.TrimRight(msg, ".!?"))
		if trimmed == msg {
			break
		}
		msg = trimmed
	}
	return msg + "."
}

// stripPaths removes the resolved and literal forms of dir, then repeats with
// dir's parent while it still has more than minSeparators separators.
func stripPaths(msg, dir string) string {
	dir = strings.TrimRight(filepath.ToSlash(dir), "/")
	for dir != "" {
		if real, ok := resolve(dir); ok && real != dir {
			msg = removeAll(msg, real+"/")
			msg = removeAll(msg, real)
		}
		msg = removeAll(msg, dir+"/")
		msg = removeAll(msg, dir)

		if strings.Count(dir, "/") <= minSeparators {
			break
		}
		dir = dir[:strings.LastIndex(dir, "/")]
	}
	return msg
}

// resolve returns the absolute, symlink-free form of dir.
func resolve(dir string) (string, bool) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(filepath.ToSlash(real), "/"), true
}

// removeAll deletes s from msg until no occurrence remains, so removals
// cannot leave a freshly joined copy of s behind.
func removeAll(msg, s string) string {
	if s == "" || s == "/" {
		return msg
	}
	for strings.Contains(msg, s) {
		msg = strings.ReplaceAll(msg, s, "")
	}
	return msg
}
