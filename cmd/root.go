// Package cmd defines and implements the CLI commands for the ecfr-snapshot
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/config"
	"github.com/JakeFAU/ecfr-snapshot/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command. Configuration and the
// logger are built once in PersistentPreRunE so every subcommand shares them.
func newRootCmd() *cobra.Command {
	var (
		cfg    config.Config
		logger *zap.Logger
	)

	cmd := &cobra.Command{
		Use:   "ecfr-snapshot",
		Short: "Ingests federal regulation titles and serves per-agency metrics.",
		Long: `ecfr-snapshot pulls the full XML of every published regulation title,
computes per-agency word counts and content checksums, and persists the
result as a single snapshot served over a read-only HTTP API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err = logging.New(logging.Config{
				Development: cfg.Logging.Development,
				File:        cfg.Logging.File,
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
			})
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync() //nolint:errcheck // stderr sync is best effort
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus ECFR_* env)")

	cmd.AddCommand(newIngestCmd(&cfg, &logger))
	cmd.AddCommand(newServeCmd(&cfg, &logger))

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
