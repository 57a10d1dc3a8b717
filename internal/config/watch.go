package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-loads the config file whenever it changes on disk and calls
// onChange with the new Config. onChange runs on viper's watcher goroutine;
// callers marshal it onto the UI loop themselves.
//
// If a reload fails validation the error is logged and the previous config
// remains active. Watch does nothing when no config file is in use.
func Watch(v *viper.Viper, onChange func(Config)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		handleChange(v, e, onChange)
	})
	v.WatchConfig()
	slog.Info("config: watching for changes", "path", v.ConfigFileUsed())
	return true
}

func handleChange(v *viper.Viper, e fsnotify.Event, onChange func(Config)) {
	// Editors often save via rename, which surfaces as Create.
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := Load(v)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config", "path", e.Name, "err", err)
		return
	}
	slog.Info("config: reloaded", "path", e.Name)
	onChange(cfg)
}
