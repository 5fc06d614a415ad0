package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/cliphist/internal/engine"
	"go.klb.dev/cliphist/internal/logging"
)

// minInterval keeps a typo in the config from turning polling into a busy loop.
const minInterval = 50 * time.Millisecond

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPHIST_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPHIST_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("cliphist")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/cliphist/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cliphist"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPHIST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	logging.Setup(
		logging.ParseFormat(v.GetString("log-format")),
		logging.ParseLevel(v.GetString("log-level"), interactive),
	)
}

// settingsFrom reads the runtime-adjustable daemon settings.
func settingsFrom(v *viper.Viper) (engine.Settings, error) {
	s := engine.Settings{
		Limit:         v.GetInt("limit"),
		Interval:      v.GetDuration("interval"),
		SkipSensitive: v.GetBool("skip-sensitive"),
		Excluded:      v.GetStringSlice("exclude"),
		Flash:         v.GetDuration("flash"),
	}
	if s.Limit <= 0 {
		return s, fmt.Errorf("limit must be positive, got %d", s.Limit)
	}
	if s.Interval < minInterval {
		return s, fmt.Errorf("interval must be at least %s, got %s", minInterval, s.Interval)
	}
	return s, nil
}

// defaultDataDir is $XDG_DATA_HOME/cliphist, or ~/.local/share/cliphist.
func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "cliphist")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "cliphist")
	}
	return filepath.Join(os.TempDir(), "cliphist")
}
