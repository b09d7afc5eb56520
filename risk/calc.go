package risk

import "database/sql"

// PositionSize caps the regime-scaled base notional at the remaining
// exposure capacity. A non-positive result means no entry.
func PositionSize(base, multiplier, capacity float64) float64 {
	n := base * multiplier
	if capacity < n {
		n = capacity
	}
	if n < 0 {
		return 0
	}
	return n
}

// ExposureCapacity is how much notional can still be opened.
func ExposureCapacity(equity, maxExposurePct, exposure float64) float64 {
	return equity*maxExposurePct/100 - exposure
}

// ATRStop places a long stop multiple volatility units below entry. It
// reports false when no stop applies (vol <= 0 or multiple <= 0).
func ATRStop(entry, vol, multiple float64) (float64, bool) {
	if vol <= 0 || multiple <= 0 {
		return 0, false
	}
	return entry - multiple*vol, true
}

// Settlement is the realized result of a round trip.
type Settlement struct {
	Gross     float64
	Cost      float64
	Net       float64
	ReturnPct float64
	R         sql.NullFloat64
}

// Settle computes PnL for a long position of notional opened at entry and
// closed at exit. Sizing divides by the raw entry price.
func Settle(entry, exit, notional, vol float64, costs Costs) Settlement {
	units := notional / entry
	s := Settlement{
		Gross:     units * (exit - entry),
		Cost:      costs.RoundTrip(notional),
		ReturnPct: (exit/entry - 1) * 100,
	}
	s.Net = s.Gross - s.Cost
	s.R = RMultiple(s.Net, vol, units)
	return s
}

// RMultiple is net PnL in units of the entry volatility; null when vol <= 0.
func RMultiple(net, vol, units float64) sql.NullFloat64 {
	risk := vol * units
	if vol <= 0 || risk == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: net / risk, Valid: true}
}
