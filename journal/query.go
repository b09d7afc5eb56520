package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rustyeddy/barsim/backtest"
)

var ErrNotFound = errors.New("not found")

// GetRun returns the run row for runID.
func (j *SQLite) GetRun(runID string) (Run, error) {
	var (
		r       Run
		config  string
		blocked string
	)
	s := &r.Summary
	err := j.db.QueryRow(`
		SELECT run_id, created, symbol, timeframe, dataset, strategy, policy_id, config,
		       start_time, end_time, n_trades, initial_equity, final_equity, total_return_pct,
		       win_rate_pct, mean_r, median_r, sharpe_r, max_drawdown_pct, mean_pnl, total_pnl,
		       blocked, open_at_end
		FROM runs
		WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Symbol, &r.Timeframe, &r.Dataset, &r.Strategy, &r.PolicyID, &config,
		&s.Start, &s.End, &s.NTrades, &s.InitialEquity, &s.FinalEquity, &s.TotalReturnPct,
		&s.WinRatePct, &s.MeanR, &s.MedianR, &s.SharpeR, &s.MaxDrawdownPct, &s.MeanPnL, &s.TotalPnL,
		&blocked, &r.OpenAtEnd,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
		}
		return Run{}, err
	}
	r.Config = []byte(config)
	if err := json.Unmarshal([]byte(blocked), &r.Blocked); err != nil {
		return Run{}, fmt.Errorf("run %q: blocked: %w", runID, err)
	}
	return r, nil
}

// ListRunIDs returns every run id, oldest first.
func (j *SQLite) ListRunIDs() ([]string, error) {
	rows, err := j.db.Query(`SELECT run_id FROM runs ORDER BY created ASC, run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListTradesByRun returns a run's trades in entry order.
func (j *SQLite) ListTradesByRun(runID string) ([]backtest.Trade, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, entry_index, exit_index, entry_time, exit_time,
		       entry_price, exit_price, notional, volatility_unit, bars_held,
		       gross_pnl, cost, net_pnl, return_pct, r_multiple, reason, snapshot
		FROM trades
		WHERE run_id = ?
		ORDER BY entry_time ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backtest.Trade
	for rows.Next() {
		var (
			t    backtest.Trade
			snap string
		)
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.EntryIndex, &t.ExitIndex, &t.EntryTime, &t.ExitTime,
			&t.EntryPrice, &t.ExitPrice, &t.Notional, &t.VolatilityUnit, &t.BarsHeld,
			&t.GrossPnL, &t.Cost, &t.NetPnL, &t.ReturnPct, &t.RMultiple, &t.Reason, &snap,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(snap), &t.Snapshot); err != nil {
			return nil, fmt.Errorf("trade %s: snapshot: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListEquityByRun returns a run's equity curve in time order.
func (j *SQLite) ListEquityByRun(runID string) ([]backtest.EquityPoint, error) {
	rows, err := j.db.Query(`
		SELECT time, equity, in_position
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backtest.EquityPoint
	for rows.Next() {
		var e backtest.EquityPoint
		if err := rows.Scan(&e.Time, &e.Equity, &e.InPosition); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
