// Package main provides the entry point for the artwork voting service.
package main

import (
	"fmt"
	"os"

	"artvote/internal/config"
	"artvote/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const programName = "artvote"

var globalFlags = struct {
	debug      bool
	configFile string
}{}

// loadConfig reads .env (when present), the optional config file and the
// environment, then applies command line overrides.
func loadConfig() (config.Config, *logger.Logger, error) {
	// Try to load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}
	if globalFlags.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", globalFlags.configFile); err != nil {
			return config.Config{}, nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if globalFlags.debug {
		cfg.Debug = true
	}
	return cfg, logger.New(cfg.Debug), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Signature-authenticated artwork voting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.configFile, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(keygenCommand())
	rootCmd.AddCommand(signCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
