package journal

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/perf"
)

var (
	runHeader = []string{
		"run_id", "created", "symbol", "timeframe", "dataset", "strategy", "policy_id",
		"start_time", "end_time", "n_trades", "initial_equity", "final_equity", "total_return_pct",
		"win_rate_pct", "mean_r", "median_r", "sharpe_r", "max_drawdown_pct", "mean_pnl", "total_pnl",
		"blocked", "open_at_end",
	}
	tradeHeader = []string{
		"trade_id", "symbol", "entry_index", "exit_index", "entry_time", "exit_time",
		"entry_price", "exit_price", "notional", "volatility_unit", "bars_held",
		"gross_pnl", "cost", "net_pnl", "return_pct", "r_multiple", "reason", "snapshot",
	}
	equityHeader    = []string{"time", "equity", "in_position"}
	breakdownHeader = []string{
		"breakdown", "label", "min_samples", "n", "win_rate_pct", "mean_r", "median_r", "std_r",
		"p1_r", "p5_r", "p95_r", "p99_r", "total_pnl", "mean_pnl",
	}
)

// CSVJournal writes runs.csv, trades.csv, equity.csv and breakdowns.csv into
// one directory. Only runs.csv carries the run id and creation time, so the
// other files are byte-identical across reruns of the same input.
type CSVJournal struct {
	runs, trades, equity, breakdowns *csv.Writer
	files                            []*os.File
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSVJournal{}
	open := func(name string, header []string) (*csv.Writer, error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.runs, err = open("runs.csv", runHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.trades, err = open("trades.csv", tradeHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.equity, err = open("equity.csv", equityHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.breakdowns, err = open("breakdowns.csv", breakdownHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordRun(r Run) error {
	blocked, err := json.Marshal(r.Blocked)
	if err != nil {
		return err
	}
	s := r.Summary
	return write(j.runs, []string{
		r.RunID,
		ts(r.Created),
		r.Symbol,
		r.Timeframe,
		r.Dataset,
		r.Strategy,
		r.PolicyID,
		ts(s.Start),
		ts(s.End),
		strconv.Itoa(s.NTrades),
		f(s.InitialEquity),
		f(s.FinalEquity),
		f(s.TotalReturnPct),
		nf(s.WinRatePct),
		nf(s.MeanR),
		nf(s.MedianR),
		nf(s.SharpeR),
		nf(s.MaxDrawdownPct),
		nf(s.MeanPnL),
		f(s.TotalPnL),
		string(blocked),
		strconv.FormatBool(r.OpenAtEnd),
	})
}

func (j *CSVJournal) RecordTrade(_ string, t backtest.Trade) error {
	return write(j.trades, []string{
		t.ID,
		t.Symbol,
		strconv.Itoa(t.EntryIndex),
		strconv.Itoa(t.ExitIndex),
		ts(t.EntryTime),
		ts(t.ExitTime),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.Notional),
		f(t.VolatilityUnit),
		strconv.Itoa(t.BarsHeld),
		f(t.GrossPnL),
		f(t.Cost),
		f(t.NetPnL),
		f(t.ReturnPct),
		nf(t.RMultiple),
		t.Reason,
		snapshot(t.Snapshot),
	})
}

func (j *CSVJournal) RecordEquity(_ string, e backtest.EquityPoint) error {
	return write(j.equity, []string{
		ts(e.Time),
		f(e.Equity),
		strconv.FormatBool(e.InPosition),
	})
}

func (j *CSVJournal) RecordBreakdown(_ string, b perf.Breakdown) error {
	name := perf.Options{By: b.Fields}.Name()
	rows := append([]perf.Row{{Label: perf.AllLabel, Stats: b.All}}, b.Groups...)
	for _, r := range rows {
		st := r.Stats
		if err := j.breakdowns.Write([]string{
			name,
			r.Label,
			strconv.Itoa(b.MinSamples),
			strconv.Itoa(st.Count),
			nf(st.WinRatePct),
			nf(st.MeanR),
			nf(st.MedianR),
			nf(st.StdR),
			nf(st.P1R),
			nf(st.P5R),
			nf(st.P95R),
			nf(st.P99R),
			f(st.TotalPnL),
			nf(st.MeanPnL),
		}); err != nil {
			return err
		}
	}
	j.breakdowns.Flush()
	return j.breakdowns.Error()
}

func (j *CSVJournal) Close() error {
	for _, w := range []*csv.Writer{j.runs, j.trades, j.equity, j.breakdowns} {
		w.Flush()
		if err := w.Error(); err != nil {
			j.closeFiles()
			return err
		}
	}
	return j.closeFiles()
}

func (j *CSVJournal) closeFiles() error {
	var first error
	for _, fh := range j.files {
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.files = nil
	return first
}

func write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

// nf writes null as an empty cell.
func nf(x sql.NullFloat64) string {
	if !x.Valid {
		return ""
	}
	return f(x.Float64)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// snapshot renders k=v pairs joined by ';' in key order.
func snapshot(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ";")
}
