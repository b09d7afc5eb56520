package backtest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/pkg/id"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/signal"
)

var (
	ErrDecisionCount  = errors.New("decision count does not match bar count")
	ErrEquityMismatch = errors.New("ledger equity diverged from risk equity")
)

// Config controls a single executor pass.
type Config struct {
	Symbol        string
	InitialEquity float64
	Costs         risk.Costs

	// Snapshot lists the entry-bar fields copied onto each Trade. Empty
	// means every label on the entry bar.
	Snapshot []string
}

// Executor turns risk-managed decisions into a trade ledger and an equity
// curve in one forward pass.
type Executor struct {
	cfg Config
}

func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.InitialEquity <= 0 {
		return nil, fmt.Errorf("backtest: InitialEquity must be positive")
	}
	return &Executor{cfg: cfg}, nil
}

// Run settles every closed position with the executor's cost model and
// records equity for every bar. The ledger equity must agree with the risk
// manager's equity bar for bar.
func (e *Executor) Run(s market.Series, ds []risk.Decision) (Result, error) {
	if len(ds) != len(s.Bars) {
		return Result{}, fmt.Errorf("backtest: %d decisions for %d bars: %w", len(ds), len(s.Bars), ErrDecisionCount)
	}

	symbol := e.cfg.Symbol
	if symbol == "" {
		symbol = s.Symbol
	}

	res := Result{
		Symbol:  symbol,
		Equity:  make([]EquityPoint, 0, len(ds)),
		Blocked: map[string]int{},
	}
	equity := e.cfg.InitialEquity

	for i, d := range ds {
		for _, c := range []*risk.Closed{d.Closed, d.Final} {
			if c == nil {
				continue
			}
			t, err := e.trade(s, c, len(res.Trades)+1)
			if err != nil {
				return Result{}, fmt.Errorf("backtest: bar %d: %w", i, err)
			}
			t.Symbol = symbol
			equity += t.NetPnL
			res.Trades = append(res.Trades, t)
		}
		for _, v := range d.Blocked {
			res.Blocked[v.Code]++
		}

		if math.Abs(equity-d.Equity) > 1e-6*math.Max(1, math.Abs(equity)) {
			return Result{}, fmt.Errorf("backtest: bar %d: ledger %.6f risk %.6f: %w", i, equity, d.Equity, ErrEquityMismatch)
		}
		res.Equity = append(res.Equity, EquityPoint{
			Time:       s.Bars[i].Time,
			Equity:     equity,
			InPosition: d.Side == signal.Long,
		})
	}

	if n := len(ds); n > 0 && ds[n-1].Side == signal.Long {
		res.OpenAtEnd = true
	}
	res.Summary = Summarize(e.cfg.InitialEquity, res.Trades, res.Equity)
	return res, nil
}

func (e *Executor) trade(s market.Series, c *risk.Closed, seq int) (Trade, error) {
	tid, err := id.Trade(c.EntryTime, seq)
	if err != nil {
		return Trade{}, err
	}
	st := risk.Settle(c.EntryPrice, c.ExitPrice, c.Notional, c.VolatilityUnit, e.cfg.Costs)
	return Trade{
		ID:             tid,
		EntryIndex:     c.EntryIndex,
		ExitIndex:      c.ExitIndex,
		EntryTime:      c.EntryTime,
		ExitTime:       c.ExitTime,
		EntryPrice:     c.EntryPrice,
		ExitPrice:      c.ExitPrice,
		Notional:       c.Notional,
		VolatilityUnit: c.VolatilityUnit,
		BarsHeld:       c.BarsHeld,
		GrossPnL:       st.Gross,
		Cost:           st.Cost,
		NetPnL:         st.Net,
		ReturnPct:      st.ReturnPct,
		RMultiple:      st.R,
		Reason:         string(c.Reason),
		Snapshot:       e.snapshot(s.Bars[c.EntryIndex], c.Regime),
	}, nil
}

func (e *Executor) snapshot(b market.Bar, regime risk.Regime) map[string]string {
	out := map[string]string{}
	if len(e.cfg.Snapshot) == 0 {
		for k, v := range b.Labels {
			out[k] = v
		}
	}
	for _, name := range e.cfg.Snapshot {
		if v, ok := b.Label(name); ok {
			out[name] = v
			continue
		}
		if v, ok := b.Value(name); ok {
			out[name] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	if regime != "" {
		if _, ok := out[SnapshotRegime]; !ok {
			out[SnapshotRegime] = string(regime)
		}
	}
	return out
}

// SnapshotRegime is the snapshot key for the normalized risk regime.
const SnapshotRegime = "risk_regime"

// SnapshotKeys returns the union of snapshot keys over trades, sorted.
func SnapshotKeys(trades []Trade) []string {
	seen := map[string]bool{}
	for _, t := range trades {
		for k := range t.Snapshot {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
