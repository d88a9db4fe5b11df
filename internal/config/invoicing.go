package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InvoicingConfig holds invoice policy that operators may change without a restart.
type InvoicingConfig struct {
	Currency                 string
	RoundingMode             string
	CurrencyPlaces           int32
	DueDays                  int
	BlockOnDebtLookupFailure bool
}

func DefaultInvoicingConfig() InvoicingConfig {
	return InvoicingConfig{
		Currency:                 "VND",
		RoundingMode:             "half_up",
		CurrencyPlaces:           0,
		DueDays:                  5,
		BlockOnDebtLookupFailure: true,
	}
}

type InvoicingConfigHolder struct {
	current atomic.Value // holds InvoicingConfig
}

// NewStaticInvoicingConfigHolder returns a holder that never reloads.
func NewStaticInvoicingConfigHolder(cfg InvoicingConfig) *InvoicingConfigHolder {
	holder := &InvoicingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewInvoicingConfigHolder(appCfg Config, log *zap.Logger) (*InvoicingConfigHolder, error) {
	log = log.Named("config.invoicing")
	v := viper.New()

	v.SetConfigName("invoicing")
	v.SetConfigType("yml")
	if appCfg.InvoicingConfigPath != "" {
		v.AddConfigPath(appCfg.InvoicingConfigPath)
	}
	v.AddConfigPath("/etc/rentflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RENTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultInvoicingConfig()
	v.SetDefault("invoicing.currency", defaults.Currency)
	v.SetDefault("invoicing.roundingMode", defaults.RoundingMode)
	v.SetDefault("invoicing.currencyPlaces", defaults.CurrencyPlaces)
	v.SetDefault("invoicing.dueDays", defaults.DueDays)
	v.SetDefault("invoicing.blockOnDebtLookupFailure", defaults.BlockOnDebtLookupFailure)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := readInvoicingConfig(v)
	if err := validateInvoicingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticInvoicingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := readInvoicingConfig(v)
		if err := validateInvoicingConfig(updated); err != nil {
			log.Warn("invalid invoicing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("invoicing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// readInvoicingConfig reads key by key so a partial file still inherits defaults.
func readInvoicingConfig(v *viper.Viper) InvoicingConfig {
	return InvoicingConfig{
		Currency:                 strings.ToUpper(strings.TrimSpace(v.GetString("invoicing.currency"))),
		RoundingMode:             strings.ToLower(strings.TrimSpace(v.GetString("invoicing.roundingMode"))),
		CurrencyPlaces:           v.GetInt32("invoicing.currencyPlaces"),
		DueDays:                  v.GetInt("invoicing.dueDays"),
		BlockOnDebtLookupFailure: v.GetBool("invoicing.blockOnDebtLookupFailure"),
	}
}

func (h *InvoicingConfigHolder) Get() InvoicingConfig {
	if h == nil {
		return DefaultInvoicingConfig()
	}
	return h.current.Load().(InvoicingConfig)
}

func validateInvoicingConfig(cfg InvoicingConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.RoundingMode)) {
	case "half_up", "half_even":
	default:
		return errors.New("invoicing.roundingMode must be half_up or half_even")
	}
	if cfg.CurrencyPlaces < 0 || cfg.CurrencyPlaces > 4 {
		return errors.New("invoicing.currencyPlaces must be between 0 and 4")
	}
	if cfg.DueDays < 0 {
		return errors.New("invoicing.dueDays cannot be negative")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("invoicing.currency cannot be empty")
	}
	return nil
}
