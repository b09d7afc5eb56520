// Package align joins a driver series onto a target series with backward
// as-of semantics: each target row sees the most recent driver row whose
// timestamp is not after its own.
package align

import (
	"fmt"
	"time"

	"github.com/rustyeddy/barsim/market"
)

// AsOf returns, for every target timestamp, the index of the most recent
// driver timestamp <= it, or -1 when the target precedes the whole driver.
// Both inputs must be strictly increasing. Runs in O(len(driver)+len(target)).
func AsOf(driver, target []time.Time) ([]int, error) {
	if err := market.ValidateTimes("driver", driver); err != nil {
		return nil, err
	}
	if err := market.ValidateTimes("target", target); err != nil {
		return nil, err
	}

	out := make([]int, len(target))
	j := -1
	for i, t := range target {
		for j+1 < len(driver) && !driver[j+1].After(t) {
			j++
		}
		out[i] = j
	}
	return out, nil
}

// Column is a nullable aligned column.
type Column struct {
	Values []float64
	Valid  []bool
}

// Values aligns numeric driver fields onto target timestamps. Rows without a
// driver row (or where the driver row lacks the field) are null.
func Values(driver market.Series, target []time.Time, field string) (Column, error) {
	idx, err := AsOf(driver.Times(), target)
	if err != nil {
		return Column{}, fmt.Errorf("align %s: %w", driver.Name(), err)
	}

	col := Column{Values: make([]float64, len(target)), Valid: make([]bool, len(target))}
	for i, j := range idx {
		if j < 0 {
			continue
		}
		if v, ok := driver.Bars[j].Value(field); ok {
			col.Values[i] = v
			col.Valid[i] = true
		}
	}
	return col, nil
}

// Join copies the named driver fields onto each target bar under prefix
// (e.g. "htf_"). Numeric fields land in Fields, labels in Labels. The target
// series is not modified; a new series with cloned bars is returned.
func Join(driver, target market.Series, prefix string, fields ...string) (market.Series, error) {
	if len(fields) == 0 {
		return target, fmt.Errorf("align: at least one field is required")
	}
	if err := driver.Require(fields...); err != nil {
		return target, err
	}
	if err := target.Validate(); err != nil {
		return target, err
	}
	if err := driver.Validate(); err != nil {
		return target, err
	}

	idx, err := AsOf(driver.Times(), target.Times())
	if err != nil {
		return target, err
	}

	out := market.Series{
		Symbol:    target.Symbol,
		Timeframe: target.Timeframe,
		Bars:      make([]market.Bar, len(target.Bars)),
	}
	for i, b := range target.Bars {
		nb := b.Clone()
		if j := idx[i]; j >= 0 {
			src := driver.Bars[j]
			for _, f := range fields {
				if v, ok := src.Value(f); ok {
					nb.Fields[prefix+f] = v
				} else if l, ok := src.Label(f); ok {
					nb.Labels[prefix+f] = l
				}
			}
		}
		out.Bars[i] = nb
	}
	return out, nil
}
