package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/stylefix/internal/fixer"
	"github.com/fyrsmithlabs/stylefix/internal/vcs"
	"github.com/spf13/cobra"
)

// projectFlags select the project revision a command works on.
type projectFlags struct {
	name        string
	id          int64
	commit      string
	branch      string
	pullRequest int
	keyFile     string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "hosted repository name, owner/repo")
	cmd.Flags().Int64Var(&f.id, "id", 0, "project id")
	cmd.Flags().StringVar(&f.commit, "commit", "", "commit to analyze")
	cmd.Flags().StringVar(&f.branch, "branch", "", "branch the commit is on")
	cmd.Flags().IntVar(&f.pullRequest, "pr", 0, "pull request the commit is the head of")
	cmd.Flags().StringVar(&f.keyFile, "key-file", "", "PEM private key for SSH transport")
	cmd.MarkFlagsMutuallyExclusive("branch", "pr")
	cmd.MarkFlagsOneRequired("branch", "pr")
	for _, name := range []string{"name", "id", "commit"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (f *projectFlags) project() fixer.Project {
	return fixer.Project{
		Name:        f.name,
		ID:          f.id,
		Commit:      f.commit,
		Branch:      f.branch,
		PullRequest: f.pullRequest,
	}
}

func (f *projectFlags) key() (string, error) {
	if f.keyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(f.keyFile)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return string(data), nil
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp builds the app, runs fn and closes the app, joining errors.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(*app) error) (err error) {
	a, err := newApp(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.close(cmd.Context()))
	}()
	return fn(a)
}

func newAnalyzeCmd(global *globalFlags) *cobra.Command {
	var (
		pf            projectFlags
		configFile    string
		header        string
		defaultBranch string
		noCache       bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a project revision and print the report",
		Long: `Analyze materializes the project at the given commit, runs the style engine
and prints the report as JSON. The exit status is zero whether or not fixes
were found; check the "successful" field.

Examples:
  stylefix analyze --name acme/widget --id 42 --commit 4b825dc --branch main
  stylefix analyze --name acme/widget --id 42 --commit 4b825dc --pr 17 --header "Copyright Acme"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := pf.key()
			if err != nil {
				return err
			}
			override, err := readInput(cmd, configFile)
			if err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			return withApp(cmd, global, func(a *app) error {
				analyzer, err := a.analyzer(cmd.Context())
				if err != nil {
					return err
				}
				rep, err := analyzer.Analyze(cmd.Context(), pf.project(), fixer.AnalyzeOptions{
					Key:           key,
					Config:        override,
					Header:        header,
					DefaultBranch: defaultBranch,
					NoCache:       noCache,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd, rep)
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&configFile, "config-file", "", "style configuration replacing the project's own (- for stdin)")
	cmd.Flags().StringVar(&header, "header", "", "enable the header rule with this text")
	cmd.Flags().StringVar(&defaultBranch, "default-branch", "", "default branch for cache inheritance (looked up when empty)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "run without the incremental cache")
	return cmd
}

func newApplyCmd(global *globalFlags) *cobra.Command {
	var (
		pf       projectFlags
		diffFile string
		target   string
		message  string
		author   string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Commit a diff on top of a project revision and push it",
		Long: `Apply materializes the project at the given commit, applies the diff on the
target branch, commits and pushes it. The new commit hash is printed.

Examples:
  stylefix apply --name acme/widget --id 42 --commit 4b825dc --branch main --diff-file fixes.diff
  stylefix analyze ... | jq -r .diff | stylefix apply ... --diff-file - --target style-fixes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := pf.key()
			if err != nil {
				return err
			}
			diff, err := readInput(cmd, diffFile)
			if err != nil {
				return fmt.Errorf("read diff: %w", err)
			}
			var sig *vcs.Signature
			if author != "" {
				parsed, err := vcs.ParseSignature(author)
				if err != nil {
					return err
				}
				sig = &parsed
			}
			return withApp(cmd, global, func(a *app) error {
				applier, err := a.applier()
				if err != nil {
					return err
				}
				hash, err := applier.Apply(cmd.Context(), pf.project(), string(diff), fixer.ApplyOptions{
					Target:  target,
					Message: message,
					Author:  sig,
					Key:     key,
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
				return err
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&diffFile, "diff-file", "", "diff to apply (- for stdin)")
	cmd.Flags().StringVar(&target, "target", "", "branch to publish to (defaults to --branch)")
	cmd.Flags().StringVar(&message, "message", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", `commit author, "Name <email>"`)
	_ = cmd.MarkFlagRequired("diff-file")
	return cmd
}

func newTestConfigCmd(global *globalFlags) *cobra.Command {
	var (
		sampleFile string
		configFile string
		header     string
	)
	cmd := &cobra.Command{
		Use:   "test-config",
		Short: "Run a style configuration against a code sample",
		Long: `Test-config fixes a single PHP sample with the given style configuration and
prints the fixed sample together with any errors, as JSON.

Examples:
  stylefix test-config --sample-file Sample.php --config-file .styleci.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sample, err := readInput(cmd, sampleFile)
			if err != nil {
				return fmt.Errorf("read sample: %w", err)
			}
			override, err := readInput(cmd, configFile)
			if err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			return withApp(cmd, global, func(a *app) error {
				tester, err := a.tester()
				if err != nil {
					return err
				}
				res, err := tester.Test(cmd.Context(), string(sample), fixer.TestOptions{
					Config: override,
					Header: header,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&sampleFile, "sample-file", "", "PHP sample to fix (- for stdin)")
	cmd.Flags().StringVar(&configFile, "config-file", "", "style configuration to test")
	cmd.Flags().StringVar(&header, "header", "", "enable the header rule with this text")
	_ = cmd.MarkFlagRequired("sample-file")
	return cmd
}
