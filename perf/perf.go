// Package perf slices a trade ledger by entry-time categorical fields and
// reports R and PnL statistics per group.
package perf

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/stats"
)

// Unknown is the group key for trades whose snapshot lacks a field.
const Unknown = "unknown"

// AllLabel labels the unfiltered aggregate row.
const AllLabel = "ALL"

// Options selects the grouping fields and the minimum group size.
type Options struct {
	By         []string `yaml:"by" json:"by" validate:"required,min=1,dive,required"`
	MinSamples int      `yaml:"min_samples" json:"min_samples" default:"1" validate:"gte=1"`
}

// Name is a stable identifier for the breakdown, e.g. "risk_regime" or
// "high_pressure+risk_regime".
func (o Options) Name() string {
	return strings.Join(o.By, "+")
}

// Stats are the statistics of one group. Undefined values are null.
type Stats struct {
	Count      int
	WinRatePct sql.NullFloat64
	MeanR      sql.NullFloat64
	MedianR    sql.NullFloat64
	StdR       sql.NullFloat64
	P1R        sql.NullFloat64
	P5R        sql.NullFloat64
	P95R       sql.NullFloat64
	P99R       sql.NullFloat64
	TotalPnL   float64
	MeanPnL    sql.NullFloat64
}

// Row is one group of a breakdown.
type Row struct {
	Key   []string
	Label string
	Stats Stats
}

// Breakdown is the grouped table plus the unfiltered aggregate.
type Breakdown struct {
	Fields     []string
	MinSamples int
	All        Stats
	Groups     []Row
	Excluded   int
}

// Describe computes Stats over trades.
func Describe(trades []backtest.Trade) Stats {
	r := backtest.RValues(trades)
	pnl := backtest.PnLValues(trades)
	return Stats{
		Count:      len(trades),
		WinRatePct: stats.WinRatePct(pnl),
		MeanR:      stats.Mean(r),
		MedianR:    stats.Median(r),
		StdR:       stats.Stdev(r),
		P1R:        stats.Quantile(r, 0.01),
		P5R:        stats.Quantile(r, 0.05),
		P95R:       stats.Quantile(r, 0.95),
		P99R:       stats.Quantile(r, 0.99),
		TotalPnL:   stats.Sum(pnl),
		MeanPnL:    stats.Mean(pnl),
	}
}

// Aggregate groups trades by the snapshot values of opt.By. Groups smaller
// than opt.MinSamples are left out of Groups but always counted in All.
// Groups are ordered by label.
func Aggregate(trades []backtest.Trade, opt Options) (Breakdown, error) {
	if len(opt.By) == 0 {
		return Breakdown{}, fmt.Errorf("perf: at least one grouping field is required")
	}
	if opt.MinSamples < 1 {
		opt.MinSamples = 1
	}

	b := Breakdown{
		Fields:     append([]string(nil), opt.By...),
		MinSamples: opt.MinSamples,
		All:        Describe(trades),
	}

	groups := map[string][]backtest.Trade{}
	keys := map[string][]string{}
	for _, t := range trades {
		key := make([]string, len(opt.By))
		for i, f := range opt.By {
			v, ok := t.Snapshot[f]
			if !ok || v == "" {
				v = Unknown
			}
			key[i] = v
		}
		label := strings.Join(key, "|")
		groups[label] = append(groups[label], t)
		keys[label] = key
	}

	labels := make([]string, 0, len(groups))
	for l := range groups {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, l := range labels {
		g := groups[l]
		if len(g) < opt.MinSamples {
			b.Excluded++
			continue
		}
		b.Groups = append(b.Groups, Row{Key: keys[l], Label: l, Stats: Describe(g)})
	}
	return b, nil
}

// DefaultBreakdowns are the regime slices reported when none are configured.
func DefaultBreakdowns() []Options {
	return []Options{
		{By: []string{"risk_regime"}, MinSamples: 1},
		{By: []string{"high_pressure"}, MinSamples: 1},
		{By: []string{"three_factor_box"}, MinSamples: 5},
	}
}

// AggregateAll runs every breakdown over trades.
func AggregateAll(trades []backtest.Trade, opts []Options) ([]Breakdown, error) {
	out := make([]Breakdown, 0, len(opts))
	for _, o := range opts {
		b, err := Aggregate(trades, o)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
