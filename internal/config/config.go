// Package config loads the clipwatch configuration from viper.
//
// Keys map 1:1 to clipwatch.toml:
//
//	error-log = "/path/to/error.log"
//
//	[notify]
//	duration = "2s"
//	about-duration = "5s"
//	title = ""
//	about-text = "Created By Andrew Hutchinson"
//	max-chars = 100
//
//	[chain]
//	reconnect-interval = "10m"
//	settle-delay = "1s"
//	stale-after = "0s"
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/logging"
	"go.klb.dev/clipwatch/internal/notify"
)

const (
	KeyNotifyDuration      = "notify.duration"
	KeyNotifyAboutDuration = "notify.about-duration"
	KeyNotifyTitle         = "notify.title"
	KeyNotifyAboutText     = "notify.about-text"
	KeyNotifyMaxChars      = "notify.max-chars"
	KeyReconnectInterval   = "chain.reconnect-interval"
	KeySettleDelay         = "chain.settle-delay"
	KeyStaleAfter          = "chain.stale-after"
	KeyErrorLog            = "error-log"

	DefaultSettleDelay = time.Second
)

// Config is the validated runtime configuration.
type Config struct {
	Notify   NotifyConfig
	Chain    ChainConfig
	ErrorLog string
}

// NotifyConfig tunes the toast debouncer.
type NotifyConfig struct {
	Duration      time.Duration
	AboutDuration time.Duration
	Title         string
	AboutText     string
	MaxChars      int
}

// ChainConfig tunes clipboard-chain maintenance.
type ChainConfig struct {
	ReconnectInterval time.Duration
	SettleDelay       time.Duration
	StaleAfter        time.Duration
}

// NotifyOptions converts the notify section for notify.New.
func (c Config) NotifyOptions() notify.Options {
	return notify.Options{
		Title:         c.Notify.Title,
		AboutText:     c.Notify.AboutText,
		ClipDuration:  c.Notify.Duration,
		AboutDuration: c.Notify.AboutDuration,
		MaxRunes:      c.Notify.MaxChars,
	}
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNotifyDuration, notify.DefaultClipDuration)
	v.SetDefault(KeyNotifyAboutDuration, notify.DefaultAboutDuration)
	v.SetDefault(KeyNotifyTitle, "")
	v.SetDefault(KeyNotifyAboutText, notify.DefaultAboutText)
	v.SetDefault(KeyNotifyMaxChars, notify.DefaultMaxRunes)
	v.SetDefault(KeyReconnectInterval, chain.DefaultReconnectInterval)
	v.SetDefault(KeySettleDelay, DefaultSettleDelay)
	v.SetDefault(KeyStaleAfter, time.Duration(0))
	v.SetDefault(KeyErrorLog, logging.DefaultErrorLogPath())
}

// AddFlags adds the run-time tuning flags to fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.Duration("toast-duration", notify.DefaultClipDuration, "how long clipboard toasts stay visible")
	fs.Duration("reconnect-interval", chain.DefaultReconnectInterval, "clipboard chain health-check period (5m-10m)")
	fs.Duration("stale-after", 0, "treat the chain as broken after this long without a change notification (0 = off)")
	fs.String("error-log", "", "path of the append-only error log (default: next to the executable)")
}

// BindFlags maps the flags added by AddFlags onto their config keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	binds := map[string]string{
		KeyNotifyDuration:    "toast-duration",
		KeyReconnectInterval: "reconnect-interval",
		KeyStaleAfter:        "stale-after",
	}
	for key, name := range binds {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding %s: %w", name, err)
			}
		}
	}
	// An empty --error-log must not override the default path.
	if f := fs.Lookup("error-log"); f != nil && f.Changed {
		v.Set(KeyErrorLog, f.Value.String())
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Notify: NotifyConfig{
			Duration:      v.GetDuration(KeyNotifyDuration),
			AboutDuration: v.GetDuration(KeyNotifyAboutDuration),
			Title:         v.GetString(KeyNotifyTitle),
			AboutText:     v.GetString(KeyNotifyAboutText),
			MaxChars:      v.GetInt(KeyNotifyMaxChars),
		},
		Chain: ChainConfig{
			ReconnectInterval: v.GetDuration(KeyReconnectInterval),
			SettleDelay:       v.GetDuration(KeySettleDelay),
			StaleAfter:        v.GetDuration(KeyStaleAfter),
		},
		ErrorLog: v.GetString(KeyErrorLog),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Notify.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyNotifyDuration, c.Notify.Duration))
	}
	if c.Notify.AboutDuration <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyNotifyAboutDuration, c.Notify.AboutDuration))
	}
	if c.Notify.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyNotifyMaxChars, c.Notify.MaxChars))
	}
	if c.Chain.ReconnectInterval < chain.MinReconnectInterval || c.Chain.ReconnectInterval > chain.MaxReconnectInterval {
		errs = append(errs, fmt.Errorf("%s must be between %s and %s, got %s",
			KeyReconnectInterval, chain.MinReconnectInterval, chain.MaxReconnectInterval, c.Chain.ReconnectInterval))
	}
	if c.Chain.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %s", KeySettleDelay, c.Chain.SettleDelay))
	}
	if c.Chain.StaleAfter < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %s", KeyStaleAfter, c.Chain.StaleAfter))
	}
	if c.ErrorLog == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyErrorLog))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
