package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipwatch/internal/agent"
	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/config"
	"go.klb.dev/clipwatch/internal/ipc"
	"go.klb.dev/clipwatch/internal/logging"
	"go.klb.dev/clipwatch/internal/platform"
)

var errAlreadyRunning = errors.New("clipwatch is already running")

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the clipboard monitor",
		Long: `Starts the clipboard monitor. It shows a toast with the new clipboard
text on every change, keeps its clipboard-viewer chain membership healthy,
and serves "status" and "reconnect" over a local socket.

Config file search order:
  /etc/clipwatch/clipwatch.toml
  $HOME/.config/clipwatch/clipwatch.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPWATCH_* env vars → flags

Changes to the config file are applied while running.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runAgent(v) },
	}

	config.AddFlags(cmd.Flags())
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runAgent(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		setupLogging(v)
		return err
	}

	errLog := logging.NewErrorLog(cfg.ErrorLog)
	log := setupLogging(v, logging.NewErrorLogHandler(errLog, slog.LevelWarn))

	if ipc.IsRunning() {
		return errAlreadyRunning
	}

	log.Info("clipwatch starting",
		"version", Version,
		"config", v.ConfigFileUsed(),
		"error_log", errLog.Path(),
	)

	backend := clip.New()
	defer backend.Close()

	plat, err := platform.New(backend, platform.Options{Log: log})
	if err != nil {
		errLog.LogError(fmt.Sprintf("Failed to start platform: %v", err))
		return fmt.Errorf("platform: %w", err)
	}

	opts := []agent.Option{agent.WithLogger(log), agent.WithVersion(Version)}
	if ln, err := ipc.Listen(); err != nil {
		log.Warn("IPC socket unavailable", "err", err)
	} else {
		log.Info("IPC socket listening", "path", ipc.SocketPath())
		opts = append(opts, agent.WithListener(ln))
	}

	a := agent.New(plat, backend, cfg, opts...)
	config.Watch(v, a.Reconfigure)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
