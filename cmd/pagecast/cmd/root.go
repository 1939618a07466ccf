// Package cmd implements the CLI commands for pagecast.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/pagecast/internal/config"
	"github.com/jmylchreest/pagecast/internal/observability"
	"github.com/jmylchreest/pagecast/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "pagecast",
	Short:   "Deterministic web page to video renderer",
	Version: version.Short(),
	Long: `pagecast renders web pages into videos by driving headless Chromium
frame by frame on a virtual clock, so animations, media playback and timers
are captured deterministically regardless of machine speed.

Scenes are encoded into MPEG-TS chunks, spliced with optional transitions
and mixed with their audio tracks into a single MP4 or WebM output.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Flags are not bound to viper: Changed() overrides preserve the
	// priority CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/pagecast)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig reads the configuration and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	overrideString(rootCmd.PersistentFlags(), "log-level", &cfg.Logging.Level)
	overrideString(rootCmd.PersistentFlags(), "log-format", &cfg.Logging.Format)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

// overrideString copies a flag value over a config field only when the flag
// was set, preserving the priority flag > env > config file > default.
func overrideString(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		*dst, _ = flags.GetString(name)
	}
}

func overrideInt(flags *pflag.FlagSet, name string, dst *int) {
	if flags.Changed(name) {
		*dst, _ = flags.GetInt(name)
	}
}

// newLogger builds the process logger on stderr so stdout stays clean for
// command output.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	return logger
}
