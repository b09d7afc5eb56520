// Package stats holds the descriptive statistics shared by the executor
// summary and the regime breakdowns. Undefined results are null, never 0.
package stats

import (
	"database/sql"
	"math"
	"sort"
)

func null() sql.NullFloat64 { return sql.NullFloat64{} }

func valid(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null()
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Values keeps the valid entries of xs.
func Values(xs []sql.NullFloat64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x.Valid {
			out = append(out, x.Float64)
		}
	}
	return out
}

func Sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func Mean(xs []float64) sql.NullFloat64 {
	if len(xs) == 0 {
		return null()
	}
	return valid(Sum(xs) / float64(len(xs)))
}

func Median(xs []float64) sql.NullFloat64 {
	return Quantile(xs, 0.5)
}

// Stdev is the sample standard deviation; null below two samples.
func Stdev(xs []float64) sql.NullFloat64 {
	if len(xs) < 2 {
		return null()
	}
	m := Sum(xs) / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return valid(math.Sqrt(ss / float64(len(xs)-1)))
}

// Quantile uses linear interpolation between closest ranks at q*(n-1).
func Quantile(xs []float64, q float64) sql.NullFloat64 {
	if len(xs) == 0 || q < 0 || q > 1 {
		return null()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)

	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return valid(s[lo])
	}
	frac := pos - float64(lo)
	return valid(s[lo] + (s[hi]-s[lo])*frac)
}

// Sharpe is mean/stdev of xs (not annualized). Null with fewer than two
// samples or zero dispersion.
func Sharpe(xs []float64) sql.NullFloat64 {
	sd := Stdev(xs)
	if !sd.Valid || sd.Float64 == 0 {
		return null()
	}
	m := Mean(xs)
	return valid(m.Float64 / sd.Float64)
}

// WinRatePct is the share of strictly positive xs, in percent.
func WinRatePct(xs []float64) sql.NullFloat64 {
	if len(xs) == 0 {
		return null()
	}
	wins := 0
	for _, x := range xs {
		if x > 0 {
			wins++
		}
	}
	return valid(100 * float64(wins) / float64(len(xs)))
}

// MaxDrawdownPct is the largest peak-to-trough fall of an equity curve, in
// percent of the running peak. Reported as a non-negative number.
func MaxDrawdownPct(equity []float64) sql.NullFloat64 {
	if len(equity) == 0 {
		return null()
	}
	peak := equity[0]
	var worst float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - e) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return valid(worst)
}
