package backtest

import (
	"github.com/rustyeddy/barsim/stats"
)

// Summarize computes the run summary from the ledger and equity curve.
func Summarize(initial float64, trades []Trade, equity []EquityPoint) Summary {
	s := Summary{
		NTrades:       len(trades),
		InitialEquity: initial,
		FinalEquity:   initial,
	}
	if len(equity) > 0 {
		s.FinalEquity = equity[len(equity)-1].Equity
		s.Start = equity[0].Time
		s.End = equity[len(equity)-1].Time
	}
	if initial != 0 {
		s.TotalReturnPct = (s.FinalEquity/initial - 1) * 100
	}

	pnl := PnLValues(trades)
	r := RValues(trades)

	s.TotalPnL = stats.Sum(pnl)
	s.MeanPnL = stats.Mean(pnl)
	s.WinRatePct = stats.WinRatePct(pnl)
	s.MeanR = stats.Mean(r)
	s.MedianR = stats.Median(r)
	s.SharpeR = stats.Sharpe(r)

	curve := make([]float64, len(equity))
	for i, e := range equity {
		curve[i] = e.Equity
	}
	s.MaxDrawdownPct = stats.MaxDrawdownPct(curve)
	return s
}
