package journal

import (
	"fmt"
	"time"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/perf"
)

// Run describes one simulation and its summary.
type Run struct {
	RunID     string
	Created   time.Time
	Symbol    string
	Timeframe string
	Dataset   string
	Strategy  string
	PolicyID  string
	Config    []byte

	Summary   backtest.Summary
	Blocked   map[string]int
	OpenAtEnd bool

	OrgPath string
}

type Journal interface {
	RecordRun(Run) error
	RecordTrade(runID string, t backtest.Trade) error
	RecordEquity(runID string, e backtest.EquityPoint) error
	RecordBreakdown(runID string, b perf.Breakdown) error
	Close() error
}

// RunSaver is a Journal that can write a whole run atomically.
type RunSaver interface {
	SaveRun(run Run, res backtest.Result, bds []perf.Breakdown) error
}

// Save writes a run with its ledger, equity curve and breakdowns. Journals
// implementing RunSaver write it all or nothing.
func Save(j Journal, run Run, res backtest.Result, bds []perf.Breakdown) error {
	if rs, ok := j.(RunSaver); ok {
		return rs.SaveRun(run, res, bds)
	}
	if err := j.RecordRun(run); err != nil {
		return fmt.Errorf("journal: run %s: %w", run.RunID, err)
	}
	for _, t := range res.Trades {
		if err := j.RecordTrade(run.RunID, t); err != nil {
			return fmt.Errorf("journal: trade %s: %w", t.ID, err)
		}
	}
	for _, e := range res.Equity {
		if err := j.RecordEquity(run.RunID, e); err != nil {
			return fmt.Errorf("journal: equity %s: %w", e.Time.Format(time.RFC3339), err)
		}
	}
	for _, b := range bds {
		if err := j.RecordBreakdown(run.RunID, b); err != nil {
			return fmt.Errorf("journal: breakdown %v: %w", b.Fields, err)
		}
	}
	return nil
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRun(Run) error                             { return nil }
func (Nop) RecordTrade(string, backtest.Trade) error        { return nil }
func (Nop) RecordEquity(string, backtest.EquityPoint) error { return nil }
func (Nop) RecordBreakdown(string, perf.Breakdown) error    { return nil }
func (Nop) Close() error                                    { return nil }
