// clipwatch: clipboard change toasts with a self-healing clipboard-viewer chain.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipwatch/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipwatch",
		Short: "Show a toast whenever the clipboard text changes",
		Long: `clipwatch sits in the notification area and shows a short toast with the
new clipboard text every time it changes. On Windows it joins the
clipboard-viewer chain and repairs its membership after sleep, unlock, or a
misbehaving neighbour drops it.

Run "clipwatch run" to start the monitor. Use "clipwatch status" and
"clipwatch reconnect" against a running monitor.

Config file search order (first found wins):
  /etc/clipwatch/clipwatch.toml
  $HOME/.config/clipwatch/clipwatch.toml
  path supplied via --config

All flags can be set via CLIPWATCH_<FLAG> env vars or config-file keys.
See "clipwatch run --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newReconnectCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipwatch %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string, extra ...slog.Handler) *slog.Logger {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	return logging.Setup(format, level, extra...)
}
