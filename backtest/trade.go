package backtest

import (
	"database/sql"
	"time"
)

// Trade is the immutable record of one completed entry/exit cycle.
type Trade struct {
	ID     string
	Symbol string

	EntryIndex int
	ExitIndex  int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64

	Notional       float64
	VolatilityUnit float64
	BarsHeld       int

	GrossPnL  float64
	Cost      float64
	NetPnL    float64
	ReturnPct float64
	RMultiple sql.NullFloat64

	Reason string

	// Snapshot holds the categorical context captured at entry (regime
	// labels and the like), used for grouping.
	Snapshot map[string]string
}

// EquityPoint is the account equity after a bar was processed.
type EquityPoint struct {
	Time       time.Time
	Equity     float64
	InPosition bool
}

// Summary is computed once over the trade ledger and equity curve.
type Summary struct {
	NTrades        int
	InitialEquity  float64
	FinalEquity    float64
	TotalReturnPct float64
	WinRatePct     sql.NullFloat64
	MeanR          sql.NullFloat64
	MedianR        sql.NullFloat64
	SharpeR        sql.NullFloat64
	MaxDrawdownPct sql.NullFloat64
	MeanPnL        sql.NullFloat64
	TotalPnL       float64

	Start time.Time
	End   time.Time
}

// Result is everything one executor pass produces.
type Result struct {
	Symbol  string
	Trades  []Trade
	Equity  []EquityPoint
	Summary Summary

	// Blocked counts rejected entry intents by violation code.
	Blocked map[string]int

	// OpenAtEnd is set when a position was still open after the last bar
	// and was not closed at end.
	OpenAtEnd bool
}

// RValues returns the defined R multiples of trades.
func RValues(trades []Trade) []float64 {
	out := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.RMultiple.Valid {
			out = append(out, t.RMultiple.Float64)
		}
	}
	return out
}

// PnLValues returns the net PnL of every trade.
func PnLValues(trades []Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.NetPnL
	}
	return out
}
