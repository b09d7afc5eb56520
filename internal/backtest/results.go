package backtest

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	bt "github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/perf"
)

// PrintOutcome writes the run header, the result report and every
// breakdown table.
func PrintOutcome(w io.Writer, o *Outcome) {
	r := o.Run

	fmt.Fprintf(w, "Created:       %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Timeframe:     %s\n", r.Timeframe)
	fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)
	if r.PolicyID != "" {
		fmt.Fprintf(w, "Policy:        %s\n", r.PolicyID)
	}
	if len(o.Fills) > 0 {
		fmt.Fprintf(w, "Paper Fills:   %d\n", len(o.Fills))
	}
	if r.OrgPath != "" {
		fmt.Fprintf(w, "Org Report:    %s\n", r.OrgPath)
	}

	bt.PrintResult(w, r.RunID, o.Result)

	for _, b := range o.Breakdowns {
		PrintBreakdown(w, b)
	}
}

// PrintBreakdown writes one breakdown as an aligned table. The ALL row is
// always first; excluded groups are only counted.
func PrintBreakdown(w io.Writer, b perf.Breakdown) {
	name := perf.Options{By: b.Fields}.Name()
	fmt.Fprintf(w, "Breakdown: %s (min samples %d)\n", name, b.MinSamples)
	fmt.Fprintln(w, strings.Repeat("-", 78))
	fmt.Fprintf(w, "%-24s %6s %8s %8s %8s %8s %12s\n", "group", "n", "win%", "meanR", "medR", "stdR", "totalPnL")

	row := func(label string, s perf.Stats) {
		fmt.Fprintf(w, "%-24s %6d %8s %8s %8s %8s %12.2f\n",
			label, s.Count,
			nullf(s.WinRatePct, "%.1f"),
			nullf(s.MeanR, "%.3f"),
			nullf(s.MedianR, "%.3f"),
			nullf(s.StdR, "%.3f"),
			s.TotalPnL,
		)
	}
	row(perf.AllLabel, b.All)
	for _, g := range b.Groups {
		row(g.Label, g.Stats)
	}
	if b.Excluded > 0 {
		fmt.Fprintf(w, "(%d groups below min samples)\n", b.Excluded)
	}
	fmt.Fprintln(w)
}

// PrintSummaryTable writes one line per outcome, in the given order.
func PrintSummaryTable(w io.Writer, outs []*Outcome) {
	fmt.Fprintf(w, "%-28s %6s %8s %12s %9s %8s %8s %9s\n",
		"pair", "bars", "trades", "final", "return%", "win%", "meanR", "maxDD%")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, o := range outs {
		s := o.Result.Summary
		fmt.Fprintf(w, "%-28s %6d %8d %12.2f %9.2f %8s %8s %9s\n",
			o.Pair.String(), o.Bars, s.NTrades, s.FinalEquity, s.TotalReturnPct,
			nullf(s.WinRatePct, "%.1f"),
			nullf(s.MeanR, "%.3f"),
			nullf(s.MaxDrawdownPct, "%.2f"),
		)
	}
}

func nullf(v sql.NullFloat64, format string) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf(format, v.Float64)
}
