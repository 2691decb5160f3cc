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
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "awsexport",
		Short: "Dump AWS infrastructure state to JSON",
		Long: `awsexport - AWS infrastructure snapshot exporter

Runs a fixed sequence of read-only AWS queries and writes each response to
its own JSON file under exports/aws-infrastructure-export-<YYYYMMDD-HHMMSS>/.

Credentials and region come from the ambient AWS configuration
(environment, shared config files, instance role). Running awsexport with
no arguments performs an export.`,
		Version:       version,
		Args:          cobra.NoArgs,
		RunE:          runExport,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`awsexport {{.Version}} - AWS infrastructure snapshot exporter
`)
	addExportFlags(rootCmd)
}
