package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/yairfalse/awsexport/internal/config"
	"github.com/yairfalse/awsexport/internal/emitter"
	"github.com/yairfalse/awsexport/internal/exporter"
	awsprovider "github.com/yairfalse/awsexport/internal/provider/aws"
	"github.com/yairfalse/awsexport/internal/telemetry"
)

var (
	exportConfigPath string
	exportRegion     string
	exportProfile    string
	exportRoot       string
	exportTextfile   string
	exportDebug      bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export AWS resources to timestamped JSON files",
	Long: `Export the current state of AWS infrastructure into a fresh directory.

Core queries (EC2 instances, VPCs, security groups, subnets, route tables,
internet and NAT gateways, S3 buckets, IAM roles) abort the run on failure.
Load balancers, RDS instances and Lambda functions may not exist in every
account; their failures print a notice and the export continues.`,
	Example: `  awsexport export                           # Ambient credentials and region
  awsexport export --region eu-west-1        # Specific region
  awsexport export --profile prod            # Shared config profile
  awsexport export --out /backups/aws        # Different export root
  awsexport export -c awsexport.toml         # Load settings from TOML`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addExportFlags(exportCmd)
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&exportConfigPath, "config", "c", "", "Path to TOML config file")
	cmd.Flags().StringVarP(&exportRegion, "region", "r", "", "AWS region (default: from AWS config)")
	cmd.Flags().StringVar(&exportProfile, "profile", "", "AWS shared config profile")
	cmd.Flags().StringVarP(&exportRoot, "out", "o", config.DefaultRoot, "Directory export sessions are created under")
	cmd.Flags().StringVar(&exportTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	cmd.Flags().BoolVar(&exportDebug, "debug", false, "Enable debug logging")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.Log.Level, exportDebug); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Prometheus registry backs the metrics textfile
	registry := prometheus.NewRegistry()
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL, promExporter)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	provider, err := awsprovider.New(ctx, awsprovider.Config{
		Region:      cfg.AWS.Region,
		Profile:     cfg.AWS.Profile,
		MaxAttempts: cfg.AWS.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("create aws provider: %w", err)
	}

	promEmitter, err := emitter.NewPrometheusEmitter(tp.Meter(), registry, cfg.Metrics.Textfile)
	if err != nil {
		return fmt.Errorf("create emitter: %w", err)
	}
	emit := emitter.NewMultiEmitter(emitter.NewLogEmitter(log.Logger), promEmitter)
	defer func() {
		if err := emit.Close(); err != nil {
			log.Warn().Err(err).Msg("emitter close failed")
		}
	}()

	log.Info().
		Str("region", provider.Region()).
		Str("root", cfg.Export.Root).
		Msg("awsexport starting")

	exp := exporter.New(cfg.Export.Root, provider.Tasks(),
		exporter.WithOutput(cmd.OutOrStdout()),
		exporter.WithEmitter(emit),
		exporter.WithTracer(tp.Tracer()),
	)

	_, err = exp.Run(ctx)
	return err
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if exportConfigPath != "" {
		loaded, err := config.Load(exportConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("region") {
		cfg.AWS.Region = exportRegion
	}
	if flags.Changed("profile") {
		cfg.AWS.Profile = exportProfile
	}
	if flags.Changed("out") {
		cfg.Export.Root = exportRoot
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = exportTextfile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupLogging(level string, debug bool) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	if debug {
		lvl = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Hook(telemetry.TraceHook{})
	return nil
}
