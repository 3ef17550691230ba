package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tether/pkg/cli"
	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Tether - behavioral policy engine",
	Long: `Tether runs behavioral policies against a host runtime.

Each policy is enabled and configured by a record in the policy store. On
every tick the engine evaluates the policy's conditions, decides whether it
is enforced and logged, and runs its lifecycle callbacks. Policies change
host behavior through interceptors and source patches, and record what they
observe in the audit trail.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code matching the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tether.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig loads the configuration named by --config, applies the
// --log-level override and installs the default logger. A missing default
// config file means running with defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit := cmd.Flags().Changed("config")
	if _, err := os.Stat(cfgFile); !explicit && errors.Is(err, fs.ErrNotExist) {
		config.SetConfig(config.NewDefaultConfig())
	} else if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()

	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if _, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging)); err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}
