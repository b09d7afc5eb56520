package risk

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Costs is the per-side execution cost model, in percent of notional.
type Costs struct {
	TransactionCostPct float64 `yaml:"transaction_cost_pct" json:"transaction_cost_pct" validate:"gte=0,lt=100"`
	SlippagePct        float64 `yaml:"slippage_pct" json:"slippage_pct" validate:"gte=0,lt=100"`
}

// RoundTrip returns the total cost of opening and closing notional.
func (c Costs) RoundTrip(notional float64) float64 {
	return notional * (c.TransactionCostPct + c.SlippagePct) / 100 * 2
}

// Config holds the risk limits. All *Pct fields are percentages (5 means 5%).
type Config struct {
	BaseNotional          float64 `yaml:"base_notional" json:"base_notional" default:"1000" validate:"gt=0"`
	MaxPositionsPerSymbol int     `yaml:"max_positions_per_symbol" json:"max_positions_per_symbol" default:"1" validate:"min=1,max=1"`

	// ATRStopMultiple of 0 disables stop placement.
	ATRStopMultiple float64 `yaml:"atr_stop_multiple" json:"atr_stop_multiple" default:"3" validate:"gte=0"`

	// MaxHoldingBars of 0 disables the timeout.
	MaxHoldingBars int `yaml:"max_holding_bars" json:"max_holding_bars" default:"200" validate:"gte=0"`

	// DailyLossLimitPct of 0 disables the halt.
	DailyLossLimitPct       float64 `yaml:"daily_loss_limit_pct" json:"daily_loss_limit_pct" default:"5" validate:"gte=0,lte=100"`
	MaxPortfolioExposurePct float64 `yaml:"max_portfolio_exposure_pct" json:"max_portfolio_exposure_pct" default:"30" validate:"gt=0"`

	Costs `yaml:",inline" json:",inline"`

	InitialEquity float64 `yaml:"initial_equity" json:"initial_equity" default:"10000" validate:"gt=0"`

	// VolatilityField names the per-bar volatility unit (typically ATR).
	VolatilityField string `yaml:"volatility_field" json:"volatility_field" default:"ATR" validate:"required"`

	// RegimeField names the categorical low/medium/high risk label.
	RegimeField string `yaml:"regime_field" json:"regime_field" default:"risk_regime"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("risk config: %w", err)
	}
	return nil
}
