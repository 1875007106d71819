// utforge generates, builds, and runs C unit tests from an AI model's
// output. The generate command drives the full pipeline; history shows
// past runs.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"utforge/internal/config"
	"utforge/internal/logging"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfgPath string
	debug   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "utforge",
	Short: "utforge - AI-generated C unit tests, compiled and measured",
	Long: `utforge sends C sources to a language model, parses whatever comes back
into typed test artifacts, stages a Unity build workspace, runs the tests
under gcc/make, and reports pass/fail results with gcov line coverage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if debug {
			cfg.Logging.Debug = true
		}
		if err := logging.Init(cfg.Logging.Debug, cfg.Logging.Categories); err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logging.Boot("utforge %s (%s) starting", version, commit)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("utforge %s (%s)\n", version, commit)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "utforge.yaml", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(generateCmd, historyCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// durationFlag parses a flag duration with a config fallback.
func durationFlag(flagValue string, fallback time.Duration) (time.Duration, error) {
	if flagValue == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(flagValue)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", flagValue, err)
	}
	return d, nil
}
