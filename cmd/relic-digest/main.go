package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sha1n/relic-digest/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "relic-digest"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "RELIC digest server",
		Long:    "Summarizes git repositories file by file and directory by directory with a language model and indexes the summaries",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithFlags(cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.Flags())
	rootCmd.AddCommand(newIndexCommand(version))
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func newIndexCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <repository-url>",
		Short: "Summarize and index a single repository in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return app.RunIndexWithDeps(ctx, app.DefaultRunParams(), cmd.Flags(), version, args[0])
		},
	}
	app.RegisterJobFlags(cmd.Flags())
	return cmd
}

func runWithFlags(flags *pflag.FlagSet, version string) error {
	ctx, stop := signalContext()
	defer stop()
	return app.RunWithDeps(ctx, app.DefaultRunParams(), flags, version)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
