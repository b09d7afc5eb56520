package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/barsim/perf"
	"github.com/rustyeddy/barsim/risk"
)

var validate = validator.New()

// Signal rules.
const (
	RuleLadder    = "ladder"
	RuleThreshold = "threshold"
	RuleEMACross  = "ema-cross"
)

// Config represents the complete simulation configuration
type Config struct {
	Symbol    string            `json:"symbol" yaml:"symbol" default:"BTCUSD" validate:"required"`
	Data      DataConfig        `json:"data" yaml:"data"`
	Signal    SignalConfig      `json:"signal" yaml:"signal"`
	Risk      risk.Config       `json:"risk" yaml:"risk"`
	Policy    risk.RegimePolicy `json:"regime_policy" yaml:"regime_policy"`
	Backtest  BacktestConfig    `json:"backtest" yaml:"backtest"`
	Aggregate []perf.Options    `json:"aggregate" yaml:"aggregate" validate:"dive"`
	Journal   JournalConfig     `json:"journal" yaml:"journal"`
	Batch     BatchConfig       `json:"batch" yaml:"batch"`
	Log       LogConfig         `json:"log" yaml:"log"`
}

// DataConfig locates the bar tables. Files are found by expanding
// FilePattern with {symbol} and {tf}.
type DataConfig struct {
	Dir         string `json:"dir" yaml:"dir" default:"data" validate:"required"`
	HighTF      string `json:"high_tf" yaml:"high_tf" default:"4h"`
	LowTF       string `json:"low_tf" yaml:"low_tf" default:"30min" validate:"required"`
	FilePattern string `json:"file_pattern" yaml:"file_pattern" default:"{symbol}_{tf}.csv" validate:"required"`

	// DeriveATRPeriod > 0 computes the volatility field (Wilder ATR) when the
	// low timeframe table lacks it.
	DeriveATRPeriod int `json:"derive_atr_period" yaml:"derive_atr_period" validate:"gte=0"`
}

// Path returns the table path for symbol and timeframe.
func (d DataConfig) Path(symbol, tf string) string {
	name := strings.NewReplacer("{symbol}", symbol, "{tf}", tf).Replace(d.FilePattern)
	return filepath.Join(d.Dir, name)
}

// SignalConfig selects and parameterizes the entry rule.
type SignalConfig struct {
	Rule string `json:"rule" yaml:"rule" default:"ladder" validate:"oneof=ladder threshold ema-cross"`

	// Field is the rule input. For the ladder rule it is the high timeframe
	// field and is read under AlignPrefix.
	Field     string  `json:"field" yaml:"field" default:"ladder_state"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	LadderUp  float64 `json:"ladder_up" yaml:"ladder_up" default:"1"`

	FastPeriod int `json:"fast_period" yaml:"fast_period" default:"20" validate:"gte=1"`
	SlowPeriod int `json:"slow_period" yaml:"slow_period" default:"50" validate:"gte=1"`

	EnvField     string  `json:"env_field,omitempty" yaml:"env_field,omitempty"`
	EnvThreshold float64 `json:"env_threshold,omitempty" yaml:"env_threshold,omitempty"`

	AlignPrefix string   `json:"align_prefix" yaml:"align_prefix" default:"htf_"`
	AlignFields []string `json:"align_fields" yaml:"align_fields" default:"[\"ladder_state\"]"`
}

type BacktestConfig struct {
	CloseAtEnd  bool     `json:"close_at_end" yaml:"close_at_end"`
	Snapshot    []string `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	PaperReplay bool     `json:"paper_replay" yaml:"paper_replay"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type" default:"csv" validate:"oneof=csv sqlite none"`
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty" default:"out"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" default:"barsim.db"`
	Org    bool   `json:"org" yaml:"org"`
}

// Pair is one (symbol, high timeframe, low timeframe) batch job.
type Pair struct {
	Symbol string `json:"symbol" yaml:"symbol" validate:"required"`
	HighTF string `json:"high_tf" yaml:"high_tf"`
	LowTF  string `json:"low_tf" yaml:"low_tf" validate:"required"`
}

func (p Pair) String() string {
	if p.HighTF == "" {
		return p.Symbol + "_" + p.LowTF
	}
	return p.Symbol + "_" + p.HighTF + "_" + p.LowTF
}

type BatchConfig struct {
	Pairs   []Pair `json:"pairs,omitempty" yaml:"pairs,omitempty" validate:"dive"`
	Workers int    `json:"workers" yaml:"workers" default:"4" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `json:"format" yaml:"format" default:"console" validate:"oneof=console json"`
}

// LoadFromFile loads configuration from a file (YAML, or JSON as a
// fallback). Unset keys keep their defaults; explicit zeros are kept.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// policyActions picks regime_policy.actions out of a document on its own.
type policyActions struct {
	Policy struct {
		Actions map[risk.Regime]risk.RegimeAction `yaml:"actions" json:"actions"`
	} `yaml:"regime_policy" json:"regime_policy"`
}

// Parse decodes and validates data over Default(). A regime_policy.actions
// map in data replaces the default actions instead of merging into them,
// so a policy missing a regime fails validation.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data, yaml.Unmarshal)
	if err != nil {
		var jerr error
		if cfg, jerr = decode(data, json.Unmarshal); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, unmarshal func([]byte, any) error) (*Config, error) {
	cfg := Default()
	if err := unmarshal(data, cfg); err != nil {
		return nil, err
	}

	var pa policyActions
	if err := unmarshal(data, &pa); err != nil {
		return nil, err
	}
	if pa.Policy.Actions != nil {
		cfg.Policy.Actions = pa.Policy.Actions
	}

	// Aggregate items from the document skip the struct defaults.
	for i := range cfg.Aggregate {
		if err := defaults.Set(&cfg.Aggregate[i]); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks field ranges, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}

	switch c.Signal.Rule {
	case RuleLadder:
		if c.Data.HighTF == "" {
			return fmt.Errorf("signal.rule ladder needs data.high_tf")
		}
		if c.Signal.Field == "" {
			return fmt.Errorf("signal.field is required")
		}
	case RuleThreshold:
		if c.Signal.Field == "" {
			return fmt.Errorf("signal.field is required")
		}
	case RuleEMACross:
		if c.Signal.FastPeriod >= c.Signal.SlowPeriod {
			return fmt.Errorf("signal.fast_period must be less than signal.slow_period")
		}
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	}
	return nil
}

// Pairs returns the batch pairs, or the single configured pair.
func (c *Config) Pairs() []Pair {
	if len(c.Batch.Pairs) > 0 {
		return c.Batch.Pairs
	}
	return []Pair{{Symbol: c.Symbol, HighTF: c.Data.HighTF, LowTF: c.Data.LowTF}}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	cfg.Policy = risk.DefaultPolicy()
	cfg.Aggregate = perf.DefaultBreakdowns()
	return cfg
}
