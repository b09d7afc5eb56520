package journal

import (
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/perf"
)

type SQLite struct {
	db *sql.DB
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// NewSQLite opens (or creates) the journal database at path. Batch workers
// share one handle, so writes are serialized on a single connection.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(r Run) error { return recordRun(j.db, r) }

func (j *SQLite) RecordTrade(runID string, t backtest.Trade) error {
	return recordTrade(j.db, runID, t)
}

func (j *SQLite) RecordEquity(runID string, e backtest.EquityPoint) error {
	return recordEquity(j.db, runID, e)
}

func (j *SQLite) RecordBreakdown(runID string, b perf.Breakdown) error {
	return recordBreakdown(j.db, runID, b)
}

// SaveRun writes a run and everything it produced in one transaction, so a
// failed insert leaves no trace of the run.
func (j *SQLite) SaveRun(run Run, res backtest.Result, bds []perf.Breakdown) (err error) {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = Save(txJournal{tx}, run, res, bds); err != nil {
		return err
	}
	return tx.Commit()
}

// txJournal records into an open transaction.
type txJournal struct{ x execer }

func (t txJournal) RecordRun(r Run) error { return recordRun(t.x, r) }
func (t txJournal) RecordTrade(runID string, tr backtest.Trade) error {
	return recordTrade(t.x, runID, tr)
}
func (t txJournal) RecordEquity(runID string, e backtest.EquityPoint) error {
	return recordEquity(t.x, runID, e)
}
func (t txJournal) RecordBreakdown(runID string, b perf.Breakdown) error {
	return recordBreakdown(t.x, runID, b)
}
func (t txJournal) Close() error { return nil }

func recordRun(x execer, r Run) error {
	blocked, err := json.Marshal(r.Blocked)
	if err != nil {
		return err
	}
	if r.Blocked == nil {
		blocked = []byte("{}")
	}
	s := r.Summary
	_, err = x.Exec(`
		INSERT INTO runs
		(run_id, created, symbol, timeframe, dataset, strategy, policy_id, config,
		 start_time, end_time, n_trades, initial_equity, final_equity, total_return_pct,
		 win_rate_pct, mean_r, median_r, sharpe_r, max_drawdown_pct, mean_pnl, total_pnl,
		 blocked, open_at_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Symbol, r.Timeframe, r.Dataset, r.Strategy, r.PolicyID, string(r.Config),
		s.Start.UTC(), s.End.UTC(), s.NTrades, s.InitialEquity, s.FinalEquity, s.TotalReturnPct,
		s.WinRatePct, s.MeanR, s.MedianR, s.SharpeR, s.MaxDrawdownPct, s.MeanPnL, s.TotalPnL,
		string(blocked), r.OpenAtEnd,
	)
	return err
}

func recordTrade(x execer, runID string, t backtest.Trade) error {
	snap, err := json.Marshal(t.Snapshot)
	if err != nil {
		return err
	}
	if t.Snapshot == nil {
		snap = []byte("{}")
	}
	_, err = x.Exec(`
		INSERT INTO trades
		(trade_id, run_id, symbol, entry_index, exit_index, entry_time, exit_time,
		 entry_price, exit_price, notional, volatility_unit, bars_held,
		 gross_pnl, cost, net_pnl, return_pct, r_multiple, reason, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, runID, t.Symbol, t.EntryIndex, t.ExitIndex, t.EntryTime.UTC(), t.ExitTime.UTC(),
		t.EntryPrice, t.ExitPrice, t.Notional, t.VolatilityUnit, t.BarsHeld,
		t.GrossPnL, t.Cost, t.NetPnL, t.ReturnPct, t.RMultiple, t.Reason, string(snap),
	)
	return err
}

func recordEquity(x execer, runID string, e backtest.EquityPoint) error {
	_, err := x.Exec(`
		INSERT INTO equity (run_id, time, equity, in_position)
		VALUES (?, ?, ?, ?)`,
		runID, e.Time.UTC(), e.Equity, e.InPosition,
	)
	return err
}

func recordBreakdown(x execer, runID string, b perf.Breakdown) error {
	name := perf.Options{By: b.Fields}.Name()
	rows := append([]perf.Row{{Label: perf.AllLabel, Stats: b.All}}, b.Groups...)
	for _, r := range rows {
		st := r.Stats
		if _, err := x.Exec(`
			INSERT INTO breakdowns
			(run_id, breakdown, label, min_samples, n, win_rate_pct, mean_r, median_r, std_r,
			 p1_r, p5_r, p95_r, p99_r, total_pnl, mean_pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, name, r.Label, b.MinSamples, st.Count, st.WinRatePct, st.MeanR, st.MedianR, st.StdR,
			st.P1R, st.P5R, st.P95R, st.P99R, st.TotalPnL, st.MeanPnL,
		); err != nil {
			return err
		}
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
