package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InvoiceRules holds tunables for the invoice API that can change without a restart.
type InvoiceRules struct {
	DefaultCurrency string          `mapstructure:"default_currency"`
	Pagination      PaginationRules `mapstructure:"pagination"`
}

type PaginationRules struct {
	DefaultPerPage int `mapstructure:"default_per_page"`
	MaxPerPage     int `mapstructure:"max_per_page"`
}

func DefaultInvoiceRules() InvoiceRules {
	return InvoiceRules{
		DefaultCurrency: "UAH",
		Pagination: PaginationRules{
			DefaultPerPage: 20,
			MaxPerPage:     100,
		},
	}
}

type RulesHolder struct {
	current atomic.Value // holds InvoiceRules
}

// NewStaticRulesHolder returns a holder that never reloads.
func NewStaticRulesHolder(rules InvoiceRules) *RulesHolder {
	holder := &RulesHolder{}
	holder.current.Store(rules)
	return holder
}

// NewRulesHolder reads invoices.yml and keeps it reloaded on change.
func NewRulesHolder(cfg Config, log *zap.Logger) (*RulesHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.rules")

	v := viper.New()
	if cfg.RulesPath != "" {
		v.SetConfigFile(cfg.RulesPath)
	} else {
		v.SetConfigName("invoices")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/payables")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYABLES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultInvoiceRules()
	v.SetDefault("invoices.default_currency", defaults.DefaultCurrency)
	v.SetDefault("invoices.pagination.default_per_page", defaults.Pagination.DefaultPerPage)
	v.SetDefault("invoices.pagination.max_per_page", defaults.Pagination.MaxPerPage)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		found = false
	}

	rules, err := decodeInvoiceRules(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticRulesHolder(rules)
	if !found {
		log.Info("invoice rules file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeInvoiceRules(v)
		if err != nil {
			log.Warn("invalid rules ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *RulesHolder) Get() InvoiceRules {
	return h.current.Load().(InvoiceRules)
}

// decodeInvoiceRules goes through Unmarshal so defaults are merged per leaf key.
func decodeInvoiceRules(v *viper.Viper) (InvoiceRules, error) {
	var doc struct {
		Invoices InvoiceRules `mapstructure:"invoices"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return InvoiceRules{}, err
	}
	doc.Invoices.DefaultCurrency = strings.ToUpper(strings.TrimSpace(doc.Invoices.DefaultCurrency))
	if err := validateInvoiceRules(doc.Invoices); err != nil {
		return InvoiceRules{}, err
	}
	return doc.Invoices, nil
}

func validateInvoiceRules(rules InvoiceRules) error {
	if len(strings.TrimSpace(rules.DefaultCurrency)) != 3 {
		return fmt.Errorf("invoices.default_currency must be 3 characters, got %q", rules.DefaultCurrency)
	}
	if rules.Pagination.DefaultPerPage < 1 {
		return errors.New("invoices.pagination.default_per_page must be positive")
	}
	if rules.Pagination.MaxPerPage < rules.Pagination.DefaultPerPage {
		return errors.New("invoices.pagination.max_per_page cannot be lower than default_per_page")
	}
	return nil
}
