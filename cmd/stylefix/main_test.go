package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/stylefix/internal/vcs/vcstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(t.TempDir(), "stylefix.yml")
	content := "storage:\n  root: " + root + "\n" +
		"git:\n  remote_template: \"%s\"\n" +
		"logging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTestConfigCommand(t *testing.T) {
	cfgPath, root := writeConfig(t)
	sample := filepath.Join(t.TempDir(), "Sample.php")
	require.NoError(t, os.WriteFile(sample, []byte("<?php\n\nuse B;\nuse A;\n"), 0o644))
	metrics := filepath.Join(t.TempDir(), "metrics.prom")

	out, err := execute(t, "--config", cfgPath, "--metrics-file", metrics, "test-config", "--sample-file", sample)
	require.NoError(t, err)

	var res struct {
		Sample string            `json:"sample"`
		Errors []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "<?php\n\nuse A;\nuse B;\n", res.Sample)
	assert.Empty(t, res.Errors)
	assert.FileExists(t, metrics)

	entries, err := os.ReadDir(filepath.Join(root, "scratch"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnalyzeAndApplyCommands(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	origin := vcstest.NewOrigin(t, map[string]string{"src/Foo.php": "<?php\n\nuse B;\nuse A;\n"})
	head := origin.Head(t, vcstest.DefaultBranch)
	project := []string{"--name", origin.URL(), "--id", "3", "--commit", head, "--branch", vcstest.DefaultBranch}

	out, err := execute(t, append([]string{"--config", cfgPath, "analyze", "--default-branch", "main"}, project...)...)
	require.NoError(t, err)

	var rep struct {
		Successful bool     `json:"successful"`
		Files      []string `json:"files"`
		Diff       string   `json:"diff"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.False(t, rep.Successful)
	assert.Equal(t, []string{"src/Foo.php"}, rep.Files)

	diffFile := filepath.Join(t.TempDir(), "fixes.diff")
	require.NoError(t, os.WriteFile(diffFile, []byte(rep.Diff), 0o644))

	out, err = execute(t, append([]string{"--config", cfgPath, "apply", "--diff-file", diffFile,
		"--target", "style", "--author", "Jane <jane@example.com>"}, project...)...)
	require.NoError(t, err)
	assert.Equal(t, origin.Head(t, "style"), strings.TrimSpace(out))
	assert.Equal(t, "<?php\n\nuse A;\nuse B;\n", origin.FileAt(t, "style", "src/Foo.php"))
}

func TestAnalyzeCommand_FlagValidation(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	base := []string{"--config", cfgPath, "analyze", "--name", "acme/widget", "--id", "1", "--commit", "abcdef0"}

	tests := []struct {
		name string
		args []string
	}{
		{name: "no ref", args: base},
		{name: "both refs", args: append(append([]string(nil), base...), "--branch", "main", "--pr", "2")},
		{name: "missing commit", args: []string{"--config", cfgPath, "analyze", "--name", "acme/widget", "--id", "1", "--branch", "main"}},
		{name: "positional argument", args: append(append([]string(nil), base...), "--branch", "main", "extra")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestApplyCommand_InvalidAuthor(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	diff := filepath.Join(t.TempDir(), "d.diff")
	require.NoError(t, os.WriteFile(diff, []byte("x"), 0o644))

	_, err := execute(t, "--config", cfgPath, "apply", "--name", "acme/widget", "--id", "1",
		"--commit", "abcdef0", "--branch", "main", "--diff-file", diff, "--author", "not an address")
	assert.Error(t, err)
}

func TestServeCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "serve", "--addr", "127.0.0.1:0"})
	assert.NoError(t, cmd.ExecuteContext(ctx))
}

func TestServeCommand_InvalidAddr(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	for _, addr := range []string{"localhost", "localhost:http", "localhost:70000"} {
		t.Run(addr, func(t *testing.T) {
			_, err := execute(t, "--config", cfgPath, "serve", "--addr", addr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid --addr")
		})
	}
}
