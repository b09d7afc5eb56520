package backtest

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/signal"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(atr float64, closes ...float64) market.Series {
	s := market.Series{Symbol: "TEST", Timeframe: "1h"}
	for i, c := range closes {
		s.Bars = append(s.Bars, market.Bar{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Fields: map[string]float64{"ATR": atr},
			Labels: map[string]string{"risk_regime": "low", "high_pressure": "False"},
		})
	}
	return s
}

func riskConfig() risk.Config {
	c := risk.DefaultConfig()
	c.MaxHoldingBars = 0
	return c
}

// simulate runs signal, risk and executor the way the pipeline does.
func simulate(t *testing.T, s market.Series, rule signal.Rule, rc risk.Config, ec Config) Result {
	t.Helper()

	g, err := signal.NewGenerator(rule, nil)
	require.NoError(t, err)
	sigs, err := g.Generate(s)
	require.NoError(t, err)

	m, err := risk.NewManager(rc, risk.PassThrough(), zerolog.Nop())
	require.NoError(t, err)
	ds, err := m.Apply(s, sigs)
	require.NoError(t, err)

	if ec.InitialEquity == 0 {
		ec.InitialEquity = rc.InitialEquity
		ec.Costs = rc.Costs
	}
	ex, err := NewExecutor(ec)
	require.NoError(t, err)
	res, err := ex.Run(s, ds)
	require.NoError(t, err)
	return res
}

func TestRun_SingleTrade(t *testing.T) {
	t.Parallel()

	closes := make([]float64, 90)
	for i := range closes {
		closes[i] = 100
		if i >= 30 && i < 70 {
			closes[i] = 101
		}
	}
	res := simulate(t, series(1, closes...), &signal.ThresholdRule{Field: "close", Above: 100.5}, riskConfig(), Config{})

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, 30, tr.EntryIndex)
	assert.Equal(t, 70, tr.ExitIndex)
	assert.Equal(t, "SIGNAL", tr.Reason)
	assert.Equal(t, "TEST", tr.Symbol)
	assert.Equal(t, "low", tr.Snapshot["risk_regime"])
	assert.NotEmpty(t, tr.ID)

	require.Len(t, res.Equity, 90)
	assert.True(t, res.Equity[30].InPosition)
	assert.False(t, res.Equity[70].InPosition)
	for i := 1; i < 70; i++ {
		assert.Equal(t, res.Equity[0].Equity, res.Equity[i].Equity, "equity only moves on the closing bar")
	}
	assert.InDelta(t, 10000+tr.NetPnL, res.Summary.FinalEquity, 1e-9)
	assert.False(t, res.OpenAtEnd)
}

func TestRun_LossSettlement(t *testing.T) {
	t.Parallel()

	s := series(5, 99, 100, 90, 90)
	res := simulate(t, s, &signal.ThresholdRule{Field: "close", Above: 99.5}, riskConfig(), Config{})

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 90.0, tr.ExitPrice)
	assert.InDelta(t, -100, tr.GrossPnL, 1e-9)
	assert.InDelta(t, -100, tr.NetPnL, 1e-9)
	assert.InDelta(t, -10, tr.ReturnPct, 1e-9)
	require.True(t, tr.RMultiple.Valid)
	assert.InDelta(t, -2.0, tr.RMultiple.Float64, 1e-9)
}

func TestRun_EquityMismatch(t *testing.T) {
	t.Parallel()

	s := series(1, 99, 100, 99)
	g, err := signal.NewGenerator(&signal.ThresholdRule{Field: "close", Above: 99.5}, nil)
	require.NoError(t, err)
	sigs, err := g.Generate(s)
	require.NoError(t, err)

	m, err := risk.NewManager(riskConfig(), risk.PassThrough(), zerolog.Nop())
	require.NoError(t, err)
	ds, err := m.Apply(s, sigs)
	require.NoError(t, err)

	ex, err := NewExecutor(Config{InitialEquity: 10000, Costs: risk.Costs{TransactionCostPct: 0.1}})
	require.NoError(t, err)
	_, err = ex.Run(s, ds)
	assert.ErrorIs(t, err, ErrEquityMismatch)

	_, err = ex.Run(s, ds[:2])
	assert.ErrorIs(t, err, ErrDecisionCount)
}

func TestRun_PreEpochEntryFails(t *testing.T) {
	t.Parallel()

	s := series(1, 99, 100, 99)
	for i := range s.Bars {
		s.Bars[i].Time = time.Date(1969, 12, 31, 20+i, 0, 0, 0, time.UTC)
	}
	g, err := signal.NewGenerator(&signal.ThresholdRule{Field: "close", Above: 99.5}, nil)
	require.NoError(t, err)
	sigs, err := g.Generate(s)
	require.NoError(t, err)

	m, err := risk.NewManager(riskConfig(), risk.PassThrough(), zerolog.Nop())
	require.NoError(t, err)
	ds, err := m.Apply(s, sigs)
	require.NoError(t, err)

	ex, err := NewExecutor(Config{InitialEquity: 10000})
	require.NoError(t, err)
	require.NotPanics(t, func() { _, err = ex.Run(s, ds) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade id")
}

func TestRun_TradeCountMatchesCycles(t *testing.T) {
	t.Parallel()

	closes := []float64{100, 102, 103, 99, 101, 104, 90, 100, 105, 100}
	rc := riskConfig()
	rc.TransactionCostPct = 0.05
	res := simulate(t, series(1, closes...), &signal.ThresholdRule{Field: "close", Above: 100.5}, rc, Config{})

	entries := 0
	for i := 1; i < len(closes); i++ {
		if closes[i] > 100.5 && closes[i-1] <= 100.5 {
			entries++
		}
	}
	assert.False(t, res.OpenAtEnd)
	assert.Len(t, res.Trades, entries)

	for _, tr := range res.Trades {
		require.True(t, tr.RMultiple.Valid)
		if tr.NetPnL < 0 {
			assert.Negative(t, tr.RMultiple.Float64)
		} else if tr.NetPnL > 0 {
			assert.Positive(t, tr.RMultiple.Float64)
		}
		assert.InDelta(t, 1, tr.Cost, 1e-9)
	}
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	closes := []float64{100, 102, 103, 99, 101, 104, 90, 100, 105, 100}
	rule := func() signal.Rule { return &signal.ThresholdRule{Field: "close", Above: 100.5} }

	a := simulate(t, series(1, closes...), rule(), riskConfig(), Config{})
	b := simulate(t, series(1, closes...), rule(), riskConfig(), Config{})
	assert.Equal(t, a, b)

	var ba, bb bytes.Buffer
	PrintResult(&ba, "run", a)
	PrintResult(&bb, "run", b)
	assert.Equal(t, ba.String(), bb.String())
}

func TestRun_OpenAtEndAndSnapshot(t *testing.T) {
	t.Parallel()

	s := series(1, 100, 101, 102)
	s.Bars[1].Fields["three_factor_box"] = 7

	res := simulate(t, s, &signal.ThresholdRule{Field: "close", Above: 100.5}, riskConfig(),
		Config{InitialEquity: 10000, Snapshot: []string{"high_pressure", "three_factor_box"}})
	assert.Empty(t, res.Trades)
	assert.True(t, res.OpenAtEnd)
	assert.True(t, res.Equity[2].InPosition)

	ex, err := NewExecutor(Config{InitialEquity: 1, Snapshot: []string{"high_pressure", "three_factor_box"}})
	require.NoError(t, err)
	snap := ex.snapshot(s.Bars[1], risk.RegimeMedium)
	assert.Equal(t, map[string]string{
		"high_pressure":    "False",
		"three_factor_box": "7",
		"risk_regime":      "medium",
	}, snap)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	r := func(v float64) Trade {
		tr := Trade{NetPnL: v * 10}
		tr.RMultiple.Valid = true
		tr.RMultiple.Float64 = v
		return tr
	}
	trades := []Trade{r(1), r(-1), r(2)}
	equity := []EquityPoint{{Equity: 1000}, {Equity: 1010}, {Equity: 1000}, {Equity: 1020}}

	s := Summarize(1000, trades, equity)
	assert.Equal(t, 3, s.NTrades)
	assert.InDelta(t, 2.0, s.TotalReturnPct, 1e-9)
	assert.InDelta(t, 200.0/3, s.WinRatePct.Float64, 1e-9)
	assert.InDelta(t, 2.0/3, s.MeanR.Float64, 1e-9)
	assert.InDelta(t, 1.0, s.MedianR.Float64, 1e-9)
	assert.True(t, s.SharpeR.Valid)
	assert.InDelta(t, 100*10.0/1010, s.MaxDrawdownPct.Float64, 1e-9)
	assert.InDelta(t, 20, s.TotalPnL, 1e-9)

	empty := Summarize(1000, nil, nil)
	assert.False(t, empty.MeanR.Valid)
	assert.False(t, empty.SharpeR.Valid)
	assert.False(t, empty.WinRatePct.Valid)
	assert.Equal(t, 1000.0, empty.FinalEquity)
}
