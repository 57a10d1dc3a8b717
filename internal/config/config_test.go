package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyErrorLog, filepath.Join(t.TempDir(), "error.log"))
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Notify.Duration)
	assert.Equal(t, 5*time.Second, cfg.Notify.AboutDuration)
	assert.Equal(t, 100, cfg.Notify.MaxChars)
	assert.Equal(t, "Created By Andrew Hutchinson", cfg.Notify.AboutText)
	assert.Equal(t, 10*time.Minute, cfg.Chain.ReconnectInterval)
	assert.Equal(t, time.Second, cfg.Chain.SettleDelay)
	assert.Zero(t, cfg.Chain.StaleAfter)

	opts := cfg.NotifyOptions()
	assert.Equal(t, cfg.Notify.Duration, opts.ClipDuration)
	assert.Equal(t, cfg.Notify.MaxChars, opts.MaxRunes)
}

func TestLoadFromTOML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clipwatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[notify]
duration = "3s"
title = "Copied"

[chain]
reconnect-interval = "5m"
stale-after = "1h"
`), 0o600))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Notify.Duration)
	assert.Equal(t, "Copied", cfg.Notify.Title)
	assert.Equal(t, 5*time.Minute, cfg.Chain.ReconnectInterval)
	assert.Equal(t, time.Hour, cfg.Chain.StaleAfter)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		key   string
		value any
	}{
		"interval too short": {KeyReconnectInterval, time.Minute},
		"interval too long":  {KeyReconnectInterval, time.Hour},
		"zero duration":      {KeyNotifyDuration, time.Duration(0)},
		"negative settle":    {KeySettleDelay, -time.Second},
		"zero max chars":     {KeyNotifyMaxChars, 0},
		"empty error log":    {KeyErrorLog, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			v := newViper(t)
			v.Set(tc.key, tc.value)

			_, err := Load(v)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.key)
		})
	}
}

func TestBindFlagsOverridesKeys(t *testing.T) {
	t.Parallel()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--toast-duration=4s", "--reconnect-interval=7m", "--error-log=/tmp/x.log"}))

	v := newViper(t)
	require.NoError(t, BindFlags(v, fs))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, cfg.Notify.Duration)
	assert.Equal(t, 7*time.Minute, cfg.Chain.ReconnectInterval)
	assert.Equal(t, "/tmp/x.log", cfg.ErrorLog)
}

func TestHandleChangeKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	t.Parallel()
	v := newViper(t)
	v.Set(KeyReconnectInterval, time.Second)

	called := false
	handleChange(v, fsnotify.Event{Name: "clipwatch.toml", Op: fsnotify.Write}, func(Config) { called = true })
	assert.False(t, called)
}

func TestHandleChangeDeliversValidReload(t *testing.T) {
	t.Parallel()
	v := newViper(t)
	v.Set(KeyNotifyDuration, 750*time.Millisecond)

	var got Config
	handleChange(v, fsnotify.Event{Name: "clipwatch.toml", Op: fsnotify.Write}, func(c Config) { got = c })
	assert.Equal(t, 750*time.Millisecond, got.Notify.Duration)

	got = Config{}
	handleChange(v, fsnotify.Event{Name: "clipwatch.toml", Op: fsnotify.Chmod}, func(c Config) { got = c })
	assert.Zero(t, got.Notify.Duration)
}

func TestWatchWithoutConfigFileIsNoop(t *testing.T) {
	t.Parallel()
	assert.False(t, Watch(newViper(t), func(Config) {}))
}
