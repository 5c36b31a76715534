package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contact-insights-go/internal/config"
	"contact-insights-go/internal/credentials"
	"contact-insights-go/internal/logger"
	"contact-insights-go/internal/normalizer"
	"contact-insights-go/internal/pipeline"
	"contact-insights-go/internal/telemetry"
)

const metricsNamespace = "contact_insights"

func newRunCmd() *cobra.Command {
	var configPath string
	var sourceDir string
	var resultDir string
	var skipNormalize bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build every report from the configured datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if sourceDir != "" {
				cfg.SourceDir = sourceDir
			}
			if resultDir != "" {
				cfg.ResultDir = resultDir
			}
			if skipNormalize {
				cfg.Normalizer.Enabled = false
			}

			log := logger.NewWithOutput(cmd.ErrOrStderr())
			metrics := telemetry.NewMetrics(metricsNamespace)

			var norm pipeline.Normalizer
			if cfg.Normalizer.Enabled {
				creds, err := credentials.FromConfig(cfg.Normalizer.Credentials)
				if err != nil {
					return err
				}
				n := cfg.Normalizer
				norm = normalizer.New(normalizer.Options{
					Endpoint:    n.Endpoint,
					ChunkSize:   n.ChunkSize,
					Concurrency: n.Concurrency,
					Timeout:     n.Timeout,
					MaxElapsed:  n.MaxElapsed,
				}, creds, log, metrics)
			}

			runner, err := pipeline.New(cfg, norm, log, metrics)
			if err != nil {
				return err
			}
			manifest, err := runner.Run(cmd.Context())
			if err != nil {
				log.WithError(err).Error("run failed")
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d reports written to %s\n",
				manifest.RunID, len(manifest.Reports), cfg.ResultDir)
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "Directory holding the source datasets")
	cmd.Flags().StringVar(&resultDir, "result-dir", "", "Directory the reports are written to")
	cmd.Flags().BoolVar(&skipNormalize, "skip-normalize", false, "Do not call the name-cleaning API")

	return cmd
}
