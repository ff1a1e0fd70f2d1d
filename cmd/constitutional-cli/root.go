package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/config"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"

	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "constitutional",
	Short: "Screen model output against the constitutional policy",
	Long: `constitutional runs the constitutional screening engine from the command line.

Every response is checked for:
  - Ubuntu principles (dignity, community, respect)
  - Biased or stereotyping language
  - Personally identifiable information
  - Harmful or dangerous content

Configuration is read from the YAML file given by --config (or CAI_CONFIG_FILE),
then ./.env, then the process environment.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default $CAI_CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func loadConfig() (*config.Config, error) {
	file := cfgFile
	if file == "" {
		file = os.Getenv("CAI_CONFIG_FILE")
	}
	cfg, err := config.Source{File: file, DotEnv: ".env"}.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger writes debug logs to stderr with --verbose and discards them otherwise.
func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
