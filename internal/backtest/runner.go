// Package backtest wires the simulation pipeline for one (symbol, high
// timeframe, low timeframe) pair: load, align, signal, risk, execute,
// aggregate, journal.
package backtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/barsim/align"
	bt "github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/perf"
	"github.com/rustyeddy/barsim/pkg/id"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/signal"
)

// Options override the configured run behavior.
type Options struct {
	CloseEnd    bool
	PaperReplay bool

	// RunID is generated when empty.
	RunID string
}

// Runner executes one pair end to end. A Runner holds no per-run state and
// can be shared by concurrent batch workers.
type Runner struct {
	Config   *config.Config
	Journals *Journals
	Options  Options
	Log      zerolog.Logger

	// Now stamps the run; time.Now when nil.
	Now func() time.Time
}

// Outcome is everything a run produced.
type Outcome struct {
	Pair       config.Pair
	Run        journal.Run
	Result     bt.Result
	Breakdowns []perf.Breakdown
	Fills      []broker.Fill
	Bars       int
}

// NewRunner applies the configured backtest options.
func NewRunner(cfg *config.Config, js *Journals, log zerolog.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backtest: Config is required")
	}
	return &Runner{
		Config:   cfg,
		Journals: js,
		Options: Options{
			CloseEnd:    cfg.Backtest.CloseAtEnd,
			PaperReplay: cfg.Backtest.PaperReplay,
		},
		Log: log,
	}, nil
}

func (r *Runner) Run(ctx context.Context, p config.Pair) (*Outcome, error) {
	if r.Config == nil {
		return nil, fmt.Errorf("backtest: Config is required")
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("backtest: symbol is required")
	}
	if p.LowTF == "" {
		return nil, fmt.Errorf("backtest: low timeframe is required")
	}
	cfg := r.Config
	log := r.Log.With().Str("pair", p.String()).Logger()

	s, err := r.Load(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen, err := NewGenerator(cfg.Signal)
	if err != nil {
		return nil, err
	}
	sigs, err := gen.Generate(s)
	if err != nil {
		return nil, err
	}
	entries, exits := signal.Count(sigs)
	log.Debug().Str("strategy", gen.Name()).Int("bars", s.Len()).
		Int("entries", entries).Int("exits", exits).Msg("signals generated")

	mgr, err := risk.NewManager(cfg.Risk, cfg.Policy, log)
	if err != nil {
		return nil, err
	}
	ds, err := mgr.Apply(s, sigs)
	if err != nil {
		return nil, err
	}
	if r.Options.CloseEnd {
		if c := mgr.CloseAtEnd(s, ds); c != nil {
			log.Debug().Float64("net", c.Net).Msg("closed at end")
		}
	}

	exec, err := bt.NewExecutor(bt.Config{
		Symbol:        p.Symbol,
		InitialEquity: cfg.Risk.InitialEquity,
		Costs:         cfg.Risk.Costs,
		Snapshot:      cfg.Backtest.Snapshot,
	})
	if err != nil {
		return nil, err
	}
	res, err := exec.Run(s, ds)
	if err != nil {
		return nil, err
	}

	bds, err := perf.AggregateAll(res.Trades, cfg.Aggregate)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Pair: p, Result: res, Breakdowns: bds, Bars: s.Len()}

	if r.Options.PaperReplay {
		paper := broker.NewPaper(broker.PaperConfig{
			AccountID:   "paper-" + p.String(),
			InitialCash: cfg.Risk.InitialEquity,
			Costs:       cfg.Risk.Costs,
		}, log)
		if out.Fills, err = broker.Replay(ctx, paper, p.Symbol, ds); err != nil {
			return nil, fmt.Errorf("paper replay: %w", err)
		}
	}

	out.Run, err = r.describe(p, gen, res)
	if err != nil {
		return nil, err
	}
	if err := r.record(p, out); err != nil {
		return nil, err
	}

	log.Info().
		Str("run_id", out.Run.RunID).
		Int("trades", res.Summary.NTrades).
		Float64("final_equity", res.Summary.FinalEquity).
		Msg("run complete")
	return out, nil
}

// Load reads the pair's low timeframe table, derives the volatility field
// when configured, and aligns high timeframe fields onto it when the
// signal needs them.
func (r *Runner) Load(p config.Pair) (market.Series, error) {
	cfg := r.Config

	s, err := market.LoadCSV(cfg.Data.Path(p.Symbol, p.LowTF), p.Symbol, p.LowTF)
	if err != nil {
		return market.Series{}, err
	}

	vol := cfg.Risk.VolatilityField
	if cfg.Data.DeriveATRPeriod > 0 && !s.HasField(vol) {
		if s, err = indicators.AddATR(s, cfg.Data.DeriveATRPeriod, vol); err != nil {
			return market.Series{}, err
		}
	}

	if !needsHighTF(cfg.Signal) {
		return s, nil
	}
	if p.HighTF == "" {
		return market.Series{}, fmt.Errorf("backtest: %s: high timeframe is required for rule %s", p, cfg.Signal.Rule)
	}
	h, err := market.LoadCSV(cfg.Data.Path(p.Symbol, p.HighTF), p.Symbol, p.HighTF)
	if err != nil {
		return market.Series{}, err
	}
	return align.Join(h, s, cfg.Signal.AlignPrefix, cfg.Signal.AlignFields...)
}

func needsHighTF(sc config.SignalConfig) bool {
	if sc.Rule == config.RuleLadder {
		return true
	}
	return sc.EnvField != "" && sc.AlignPrefix != "" && strings.HasPrefix(sc.EnvField, sc.AlignPrefix)
}

// NewGenerator builds the configured rule plus the optional environment
// filter (EnvField > EnvThreshold).
func NewGenerator(sc config.SignalConfig) (*signal.Generator, error) {
	var rule signal.Rule
	switch sc.Rule {
	case config.RuleLadder:
		rule = &signal.LadderTrendRule{Field: sc.AlignPrefix + sc.Field, Up: sc.LadderUp}
	case config.RuleThreshold:
		rule = &signal.ThresholdRule{Field: sc.Field, Above: sc.Threshold}
	case config.RuleEMACross:
		ema, err := signal.NewEMACrossRule(sc.FastPeriod, sc.SlowPeriod)
		if err != nil {
			return nil, err
		}
		rule = ema
	default:
		return nil, fmt.Errorf("backtest: unknown signal rule %q", sc.Rule)
	}

	var env signal.Rule
	if sc.EnvField != "" {
		env = &signal.ThresholdRule{Field: sc.EnvField, Above: sc.EnvThreshold}
	}
	return signal.NewGenerator(rule, env)
}

func (r *Runner) describe(p config.Pair, gen *signal.Generator, res bt.Result) (journal.Run, error) {
	cfg := r.Config

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return journal.Run{}, fmt.Errorf("marshal config: %w", err)
	}

	runID := r.Options.RunID
	if runID == "" {
		runID = id.New()
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	tf := p.LowTF
	dataset := cfg.Data.Path(p.Symbol, p.LowTF)
	if needsHighTF(cfg.Signal) {
		tf = p.HighTF + "/" + p.LowTF
		dataset = cfg.Data.Path(p.Symbol, p.HighTF) + "," + dataset
	}

	return journal.Run{
		RunID:     runID,
		Created:   now().UTC(),
		Symbol:    p.Symbol,
		Timeframe: tf,
		Dataset:   dataset,
		Strategy:  gen.Name(),
		PolicyID:  cfg.Policy.ID,
		Config:    raw,
		Summary:   res.Summary,
		Blocked:   res.Blocked,
		OpenAtEnd: res.OpenAtEnd,
	}, nil
}

// record journals the run. The Org report is written only after the
// journal accepted the run.
func (r *Runner) record(p config.Pair, out *Outcome) (err error) {
	if r.Journals == nil {
		return nil
	}
	sink, err := r.Journals.For(p)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := sink.Release(); err == nil && rerr != nil {
			err = fmt.Errorf("close journal: %w", rerr)
		}
	}()

	if r.Config.Journal.Org {
		out.Run.OrgPath = filepath.Join(sink.Dir, out.Run.RunID+".org")
	}
	if err := journal.Save(sink.Journal, out.Run, out.Result, out.Breakdowns); err != nil {
		return err
	}

	if out.Run.OrgPath != "" {
		if err := os.MkdirAll(sink.Dir, 0o755); err != nil {
			return err
		}
		if err := journal.WriteOrg(out.Run, out.Breakdowns); err != nil {
			return fmt.Errorf("write org: %w", err)
		}
	}
	return nil
}
