// Package main implements the stylefix CLI: analyze a project revision, apply
// a produced diff, test a style configuration against a code sample, or serve
// those operations over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// version information, set at build time
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath  string
	metricsFile string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "stylefix",
		Short: "Automated code style analysis and fixing",
		Long: `stylefix materializes a hosted repository at a revision, runs the style
engine over it and reports the fixes as a diff. A produced diff can then be
committed and pushed back with the apply command.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("STYLEFIX_CONFIG"), "path to the stylefix configuration file")
	root.PersistentFlags().StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(newAnalyzeCmd(flags))
	root.AddCommand(newApplyCmd(flags))
	root.AddCommand(newTestConfigCmd(flags))
	root.AddCommand(newServeCmd(flags))
	return root
}
