package backtest

import (
	"database/sql"
	"fmt"
	"io"
	"sort"
	"time"
)

func nullf(v sql.NullFloat64, format string) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf(format, v.Float64)
}

// PrintResult writes a plain-text run report.
func PrintResult(w io.Writer, runID string, r Result) {
	s := r.Summary

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	if runID != "" {
		fmt.Fprintf(w, "Run ID:        %s\n", runID)
	}
	fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", s.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", s.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Bars:          %d\n", len(r.Equity))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", s.NTrades)
	fmt.Fprintf(w, "Win Rate:      %s\n", nullf(s.WinRatePct, "%.2f%%"))
	fmt.Fprintf(w, "Mean R:        %s\n", nullf(s.MeanR, "%.3f"))
	fmt.Fprintf(w, "Median R:      %s\n", nullf(s.MedianR, "%.3f"))
	fmt.Fprintf(w, "Sharpe (R):    %s\n", nullf(s.SharpeR, "%.3f"))
	fmt.Fprintf(w, "Mean P/L:      %s\n", nullf(s.MeanPnL, "%.2f"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Equity:  %.2f\n", s.InitialEquity)
	fmt.Fprintf(w, "End Equity:    %.2f\n", s.FinalEquity)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", s.TotalPnL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", s.TotalReturnPct)
	fmt.Fprintf(w, "Max Drawdown:  %s\n", nullf(s.MaxDrawdownPct, "%.2f%%"))

	if len(r.Blocked) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Blocked Entries")
		fmt.Fprintln(w, "--------------------------------------------------")
		codes := make([]string, 0, len(r.Blocked))
		for c := range r.Blocked {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		for _, c := range codes {
			fmt.Fprintf(w, "- %-22s %d\n", c, r.Blocked[c])
		}
	}

	if r.OpenAtEnd {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Note: a position was still open after the last bar.")
	}

	fmt.Fprintln(w)
}
