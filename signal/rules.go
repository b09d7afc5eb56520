package signal

import (
	"fmt"

	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
)

// ThresholdRule is true while Field > Above. A null field is false.
type ThresholdRule struct {
	Field string
	Above float64
}

func (r *ThresholdRule) Name() string     { return fmt.Sprintf("%s>%g", r.Field, r.Above) }
func (r *ThresholdRule) Fields() []string { return []string{r.Field} }
func (r *ThresholdRule) Reset()           {}

func (r *ThresholdRule) Update(b market.Bar) bool {
	v, ok := b.Value(r.Field)
	return ok && v > r.Above
}

// LadderTrendRule is true while the (usually aligned, higher-timeframe)
// ladder state Field equals Up. A null field is false.
type LadderTrendRule struct {
	Field string
	Up    float64
}

func (r *LadderTrendRule) Name() string     { return fmt.Sprintf("%s==%g", r.Field, r.Up) }
func (r *LadderTrendRule) Fields() []string { return []string{r.Field} }
func (r *LadderTrendRule) Reset()           {}

func (r *LadderTrendRule) Update(b market.Bar) bool {
	v, ok := b.Value(r.Field)
	return ok && v == r.Up
}

// EMACrossRule is true while EMA(fast) of close is above EMA(slow). Both
// averages are folded forward one bar at a time, so the value at a bar
// only reflects closes up to that bar.
type EMACrossRule struct {
	FastPeriod int
	SlowPeriod int

	fast *indicators.ExponentialMA
	slow *indicators.ExponentialMA
}

func NewEMACrossRule(fast, slow int) (*EMACrossRule, error) {
	if fast <= 0 || slow <= 0 || fast >= slow {
		return nil, fmt.Errorf("ema-cross: require 0 < fast < slow (got %d/%d)", fast, slow)
	}
	return &EMACrossRule{
		FastPeriod: fast,
		SlowPeriod: slow,
		fast:       indicators.NewEMA(fast),
		slow:       indicators.NewEMA(slow),
	}, nil
}

func (r *EMACrossRule) Name() string {
	return fmt.Sprintf("ema-cross(%d/%d)", r.FastPeriod, r.SlowPeriod)
}

func (r *EMACrossRule) Fields() []string { return []string{market.FieldClose} }

func (r *EMACrossRule) Reset() {
	r.fast.Reset()
	r.slow.Reset()
}

func (r *EMACrossRule) Update(b market.Bar) bool {
	r.fast.UpdateBar(b)
	r.slow.UpdateBar(b)
	if !r.fast.Ready() || !r.slow.Ready() {
		return false
	}
	return r.fast.Value() > r.slow.Value()
}
