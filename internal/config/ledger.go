package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LedgerConfig holds the subscription ledger rules that may change without a
// restart.
type LedgerConfig struct {
	DaysPerMonth        int `mapstructure:"days_per_month"`
	DefaultDurationDays int `mapstructure:"default_duration_days"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		DaysPerMonth:        30,
		DefaultDurationDays: 30,
	}
}

// DurationDays converts a plan duration into snapshot days. Plans without a
// duration fall back to the default window.
func (c LedgerConfig) DurationDays(months *int) int {
	if months == nil || *months <= 0 {
		return c.DefaultDurationDays
	}
	return *months * c.DaysPerMonth
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

// NewStaticLedgerConfigHolder returns a holder that never reloads.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewLedgerConfigHolder(cfg Config, log *zap.Logger) (*LedgerConfigHolder, error) {
	log = log.Named("config.ledger")
	v := viper.New()

	if cfg.LedgerConfigPath != "" {
		v.SetConfigFile(cfg.LedgerConfigPath)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/studioledger")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STUDIOLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.days_per_month", defaults.DaysPerMonth)
	v.SetDefault("ledger.default_duration_days", defaults.DefaultDurationDays)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var ledgerCfg LedgerConfig
	if err := v.UnmarshalKey("ledger", &ledgerCfg); err != nil {
		return nil, err
	}
	if err := validateLedgerConfig(ledgerCfg); err != nil {
		return nil, err
	}

	holder := NewStaticLedgerConfigHolder(ledgerCfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LedgerConfig
		if err := v.UnmarshalKey("ledger", &updated); err != nil {
			log.Warn("ledger config reload failed", zap.Error(err))
			return
		}
		if err := validateLedgerConfig(updated); err != nil {
			log.Warn("invalid ledger config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("ledger config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	return h.current.Load().(LedgerConfig)
}

func validateLedgerConfig(cfg LedgerConfig) error {
	if cfg.DaysPerMonth <= 0 {
		return errors.New("ledger.days_per_month must be positive")
	}
	if cfg.DefaultDurationDays <= 0 {
		return errors.New("ledger.default_duration_days must be positive")
	}
	return nil
}
