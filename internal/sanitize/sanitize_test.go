package sanitize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		workdir string
		want    string
	}{
		{
			name:    "strips working copy prefix",
			msg:     "PHP Parse error: syntax error in /srv/stylefix/repos/12/src/Foo.php on line 3",
			workdir: "/srv/stylefix/repos/12",
			want:    "PHP Parse error: syntax error in src/Foo.php on line 3.",
		},
		{
			name:    "strips shortened ancestors",
			msg:     "cannot read /srv/stylefix/cache/12/branch.main",
			workdir: "/srv/stylefix/repos/12",
			want:    "cannot read cache/12/branch.main.",
		},
		{
			name:    "stops at two separators",
			msg:     "see /srv/stylefix for details",
			workdir: "/srv/stylefix/repos/12",
			want:    "see for details.",
		},
		{
			name:    "collapses whitespace",
			msg:     "Something   went\twrong\n here",
			workdir: "/a/b/c",
			want:    "Something went wrong here.",
		},
		{
			name:    "replaces trailing punctuation",
			msg:     "Broken file!?!",
			workdir: "/a/b/c",
			want:    "Broken file.",
		},
		{
			name:    "punctuation separated by spaces",
			msg:     "done. . !",
			workdir: "/a/b/c",
			want:    "done.",
		},
		{
			name:    "empty message",
			msg:     "",
			workdir: "/a/b/c",
			want:    ".",
		},
		{
			name:    "empty workdir leaves paths",
			msg:     "error in /x/y.php",
			workdir: "",
			want:    "error in /x/y.php.",
		},
		{
			name:    "relative workdir",
			msg:     "error in repos/12/Foo.php",
			workdir: "repos/12",
			want:    "error in Foo.php.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.msg, tt.workdir))
		})
	}
}

func TestMessage_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"...",
		"Fatal error in /srv/stylefix/repos/3/a.php!",
		"  spaced   out  . ",
		"/srv/srv/stylefix/repos/3stylefix/repos/3/x",
		"why?",
	}
	for _, in := range inputs {
		once := Message(in, "/srv/stylefix/repos/3")
		assert.Equal(t, once, Message(once, "/srv/stylefix/repos/3"), "input %q", in)
	}
}

func TestMessage_ResolvesSymlinks(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real", "repos", "5")
	require.NoError(t, os.MkdirAll(real, 0o755))
	link := filepath.Join(base, "link")
	if err := os.Symlink(filepath.Join(base, "real"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)

	workdir := filepath.Join(link, "repos", "5")
	got := Message("failed to fix "+filepath.ToSlash(resolved)+"/Foo.php", workdir)

	assert.Equal(t, "failed to fix Foo.php.", got)
	assert.NotContains(t, got, filepath.ToSlash(resolved))
}
