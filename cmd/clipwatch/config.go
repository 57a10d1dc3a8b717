package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipwatch/internal/config"
	"go.klb.dev/clipwatch/internal/logging"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPWATCH_* env var prefix. Nested keys map
// to env vars with "." and "-" replaced by "_", so notify.max-chars is
// CLIPWATCH_NOTIFY_MAX_CHARS.
//
// Precedence (lowest → highest): defaults → config file → CLIPWATCH_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)

	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipwatch")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipwatch/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/clipwatch", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return config.BindFlags(v, cmd.Flags())
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
func setupLogging(v *viper.Viper, extra ...slog.Handler) *slog.Logger {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	return resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"), extra...)
}
