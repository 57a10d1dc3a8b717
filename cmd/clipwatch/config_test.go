package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipwatch/internal/config"
	"go.klb.dev/clipwatch/internal/message"
)

func newTestRunCmd(t *testing.T, args ...string) (*cobra.Command, *viper.Viper) {
	t.Helper()
	v := viper.New()
	cmd := &cobra.Command{Use: "run"}
	config.AddFlags(cmd.Flags())
	addLoggingFlags(cmd)
	addConfigFlag(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, v
}

func TestBindViperPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipwatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[notify]
duration = "3s"
max-chars = 40

[chain]
reconnect-interval = "6m"
`), 0o600))
	t.Setenv("CLIPWATCH_NOTIFY_MAX_CHARS", "7")

	cmd, v := newTestRunCmd(t, "--config", path, "--reconnect-interval", "8m")
	require.NoError(t, bindViper(cmd, v))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Notify.Duration, "config file")
	assert.Equal(t, 7, cfg.Notify.MaxChars, "env overrides file")
	assert.Equal(t, 8*time.Minute, cfg.Chain.ReconnectInterval, "flag overrides file")
	assert.Equal(t, config.DefaultSettleDelay, cfg.Chain.SettleDelay, "default")
}

func TestBindViperRejectsBrokenConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipwatch.toml")
	require.NoError(t, os.WriteFile(path, []byte("[notify\n"), 0o600))

	cmd, v := newTestRunCmd(t, "--config", path)
	err := bindViper(cmd, v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}

func TestPrintStatus(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printStatus(&buf, &message.Status{
		Version:    "1.2.3",
		Backend:    "windows (Windows Clipboard)",
		ChainState: "registered",
		Link:       "0x1a2b",
		Receiving:  true,
		Reconnects: 2,
		ToastState: "idle",
	}, "ipc (test)")

	out := buf.String()
	assert.Contains(t, out, "registered")
	assert.Contains(t, out, "0x1a2b")
	assert.Contains(t, out, "2 (last -)")
	assert.Contains(t, out, "ipc (test)")
}

func TestFmtTime(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "-", fmtTime(time.Time{}))
	assert.Equal(t, "5s ago", fmtTime(time.Now().Add(-5*time.Second)))
	assert.Equal(t, "3m ago", fmtTime(time.Now().Add(-3*time.Minute-10*time.Second)))
}
