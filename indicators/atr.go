package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/barsim/market"
)

// ATR is a streaming Average True Range using Wilder's smoothing.
type ATR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prev        market.Bar
	hasPrevious bool
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *ATR {
	return &ATR{
		period: period,
	}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int {
	// Need period+1 bars because TR requires the previous close
	return a.period + 1
}

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrevious = false
}

func (a *ATR) Update(b market.Bar) {
	if !a.hasPrevious {
		a.prev = b
		a.hasPrevious = true
		return
	}

	tr := trueRange(b, a.prev)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prev = b
}

func (a *ATR) Ready() bool {
	return a.period > 0 && a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// trueRange calculates the True Range for a bar given the previous bar
func trueRange(cur, prev market.Bar) float64 {
	highLow := cur.High - cur.Low
	highClose := math.Abs(cur.High - prev.Close)
	lowClose := math.Abs(cur.Low - prev.Close)

	return math.Max(highLow, math.Max(highClose, lowClose))
}

// AddATR returns a copy of s with a Wilder ATR written into field name on
// every bar once the indicator is warm. Earlier bars are left null. Only bars
// at or before t feed the value at t. Bars that already carry name keep it.
func AddATR(s market.Series, period int, name string) (market.Series, error) {
	if period <= 0 {
		return s, fmt.Errorf("period must be positive, got %d", period)
	}
	if name == "" {
		return s, fmt.Errorf("atr field name is required")
	}

	out := market.Series{Symbol: s.Symbol, Timeframe: s.Timeframe, Bars: make([]market.Bar, len(s.Bars))}
	atr := NewATR(period)
	for i, b := range s.Bars {
		atr.Update(b)
		nb := b.Clone()
		if _, ok := nb.Fields[name]; !ok && atr.Ready() {
			nb.Fields[name] = atr.Value()
		}
		out.Bars[i] = nb
	}
	return out, nil
}
