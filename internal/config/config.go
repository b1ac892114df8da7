// Package config loads and validates engine configuration. Configuration is
// read once at startup and can be reloaded without a restart; callers always
// read through Snapshot so a reload never tears a running operation.
package config

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/arnold17091984/accounting-automation/internal/common"
)

// Entity is one business unit with its own budgets and account scope.
type Entity struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
}

// Account is a chart-of-accounts line.
type Account struct {
	Code     string `mapstructure:"code"`
	Name     string `mapstructure:"name"`
	Category string `mapstructure:"category"`
}

// Thresholds groups the confidence and amount gates of the pipeline.
type Thresholds struct {
	AutoAccept         float64         `mapstructure:"auto_accept"`          // AI confidence auto-accept
	Learn              float64         `mapstructure:"learn"`                // rule learning threshold
	AutoApproveCeiling decimal.Decimal `mapstructure:"auto_approve_ceiling"` // amount ceiling
	AlertPercents      []int           `mapstructure:"alert_percents"`       // ordered, e.g. 70,90,100
}

// DuplicateConfig tunes the duplicate detector.
type DuplicateConfig struct {
	AmountTolerance float64       `mapstructure:"amount_tolerance"` // fraction, e.g. 0.01
	Window          time.Duration `mapstructure:"window"`
}

// AnomalyConfig tunes the anomaly detector.
type AnomalyConfig struct {
	DeviationWarning   float64         `mapstructure:"deviation_warning"`
	DeviationCritical  float64         `mapstructure:"deviation_critical"`
	MinSampleMonths    int             `mapstructure:"min_sample_months"`
	NewMerchantReview  decimal.Decimal `mapstructure:"new_merchant_review"`
	NewMerchantBlock   decimal.Decimal `mapstructure:"new_merchant_block"`
	RoundAmountUnit    decimal.Decimal `mapstructure:"round_amount_unit"`
	StatsLookbackMonth int             `mapstructure:"stats_lookback_months"`
}

// AIConfig configures the inference boundary.
type AIConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ExemplarLimit int           `mapstructure:"exemplar_limit"`
}

// AlertOverride is a per-entity or per-account threshold override.
type AlertOverride struct {
	Entity      string `mapstructure:"entity"`
	AccountCode string `mapstructure:"account_code"`
	Percents    []int  `mapstructure:"percents"`
}

// Config is the full engine configuration.
type Config struct {
	DatabasePath       string          `mapstructure:"database_path"`
	Currency           string          `mapstructure:"currency"`
	Entities           []Entity        `mapstructure:"entities"`
	ChartOfAccounts    []Account       `mapstructure:"chart_of_accounts"`
	Thresholds         Thresholds      `mapstructure:"thresholds"`
	Duplicate          DuplicateConfig `mapstructure:"duplicate"`
	Anomaly            AnomalyConfig   `mapstructure:"anomaly"`
	AI                 AIConfig        `mapstructure:"ai"`
	AlertOverrides     []AlertOverride `mapstructure:"alert_overrides"`
	EnforceBudgetBlock bool            `mapstructure:"enforce_budget_block"`
}

// SetDefaults registers defaults on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "tally.db")
	v.SetDefault("currency", "PHP")
	v.SetDefault("thresholds.auto_accept", 0.80)
	v.SetDefault("thresholds.learn", 0.90)
	v.SetDefault("thresholds.auto_approve_ceiling", "10000")
	v.SetDefault("thresholds.alert_percents", []int{70, 90, 100})
	v.SetDefault("duplicate.amount_tolerance", 0.01)
	v.SetDefault("duplicate.window", 24*time.Hour)
	v.SetDefault("anomaly.deviation_warning", 0.30)
	v.SetDefault("anomaly.deviation_critical", 0.50)
	v.SetDefault("anomaly.min_sample_months", 3)
	v.SetDefault("anomaly.new_merchant_review", "10000")
	v.SetDefault("anomaly.new_merchant_block", "50000")
	v.SetDefault("anomaly.round_amount_unit", "10000")
	v.SetDefault("anomaly.stats_lookback_months", 6)
	v.SetDefault("ai.model", "claude-sonnet-4-5")
	v.SetDefault("ai.max_batch_size", 30)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.exemplar_limit", 10)
	v.SetDefault("enforce_budget_block", true)
}

// decimalHook decodes string and numeric config values into decimal.Decimal.
func decimalHook() viper.DecoderConfigOption {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return viper.DecodeHook(func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			s = fmt.Sprintf("%v", data)
		}
		return decimal.NewFromString(s)
	})
}

// Load reads configuration from the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decimalHook()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants the engine depends on.
func (c *Config) Validate() error {
	if len(c.Entities) == 0 {
		return fmt.Errorf("%w: at least one entity is required", common.ErrInvalidConfig)
	}
	if len(c.ChartOfAccounts) == 0 {
		return fmt.Errorf("%w: chart of accounts is empty", common.ErrInvalidConfig)
	}
	if c.Thresholds.AutoAccept < 0 || c.Thresholds.AutoAccept > 1 {
		return fmt.Errorf("%w: auto_accept must be in [0,1]", common.ErrInvalidConfig)
	}
	if c.Thresholds.Learn < 0 || c.Thresholds.Learn > 1 {
		return fmt.Errorf("%w: learn threshold must be in [0,1]", common.ErrInvalidConfig)
	}
	if len(c.Thresholds.AlertPercents) == 0 {
		return fmt.Errorf("%w: alert_percents is empty", common.ErrInvalidConfig)
	}
	prev := 0
	for _, pct := range c.Thresholds.AlertPercents {
		if pct <= prev {
			return fmt.Errorf("%w: alert_percents must be strictly ascending", common.ErrInvalidConfig)
		}
		prev = pct
	}
	for _, o := range c.AlertOverrides {
		if len(o.Percents) == 0 {
			return fmt.Errorf("%w: alert override for %s/%s has no percents",
				common.ErrInvalidConfig, o.Entity, o.AccountCode)
		}
		prev = 0
		for _, pct := range o.Percents {
			if pct <= prev {
				return fmt.Errorf("%w: alert override percents for %s/%s must be strictly ascending",
					common.ErrInvalidConfig, o.Entity, o.AccountCode)
			}
			prev = pct
		}
	}
	if c.Duplicate.AmountTolerance < 0 {
		return fmt.Errorf("%w: duplicate amount_tolerance must be >= 0", common.ErrInvalidConfig)
	}
	return nil
}

// HasEntity reports whether the entity code is configured.
func (c *Config) HasEntity(code string) bool {
	for _, e := range c.Entities {
		if e.Code == code {
			return true
		}
	}
	return false
}

// AlertPercentsFor resolves the threshold set for a scope, falling back to
// the global default. Account-specific overrides win over entity-wide ones.
func (c *Config) AlertPercentsFor(entity, accountCode string) []int {
	var entityWide []int
	for _, o := range c.AlertOverrides {
		if o.Entity != "" && o.Entity != entity {
			continue
		}
		if o.AccountCode == accountCode && o.AccountCode != "" {
			return o.Percents
		}
		if o.AccountCode == "" && o.Entity == entity {
			entityWide = o.Percents
		}
	}
	if entityWide != nil {
		return entityWide
	}
	return c.Thresholds.AlertPercents
}

// Store holds the live configuration and supports reload without restart.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
	v   *viper.Viper
}

// NewStore wraps a loaded config for concurrent readers.
func NewStore(cfg *Config, v *viper.Viper) *Store {
	return &Store{cfg: cfg, v: v}
}

// Snapshot returns the current configuration. The returned value must be
// treated as read-only.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload re-reads the config source and swaps the snapshot atomically.
// On any error the previous configuration stays in effect.
func (s *Store) Reload() error {
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to re-read config: %w", err)
	}
	cfg, err := Load(s.v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
