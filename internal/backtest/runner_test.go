package backtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/signal"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// writeFixture writes BTCUSD_4h.csv (ladder 0,1,0) and BTCUSD_1h.csv
// (twelve hourly bars, ATR 1, low regime) into dir. Aligned onto the hourly
// bars the ladder is up for bars 4..7, so the run enters at 100 on bar 4
// and exits at 110 on bar 8.
func writeFixture(t *testing.T, dir string, withATR bool) {
	t.Helper()

	var h strings.Builder
	h.WriteString("timestamp,open,high,low,close,volume,ladder_state\n")
	for i, st := range []int{0, 1, 0} {
		ts := t0.Add(time.Duration(4*i) * time.Hour).Format(time.RFC3339)
		fmt.Fprintf(&h, "%s,100,100,100,100,1,%d\n", ts, st)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTCUSD_4h.csv"), []byte(h.String()), 0o644))

	closes := []float64{100, 100, 100, 100, 100, 101, 102, 103, 110, 110, 110, 110}
	var l strings.Builder
	if withATR {
		l.WriteString("timestamp,open,high,low,close,volume,ATR,risk_regime\n")
	} else {
		l.WriteString("timestamp,open,high,low,close,volume,risk_regime\n")
	}
	for i, c := range closes {
		ts := t0.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		if withATR {
			fmt.Fprintf(&l, "%s,%g,%g,%g,%g,1,1,low\n", ts, c, c+0.5, c-0.5, c)
		} else {
			fmt.Fprintf(&l, "%s,%g,%g,%g,%g,1,low\n", ts, c, c+0.5, c-0.5, c)
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTCUSD_1h.csv"), []byte(l.String()), 0o644))
}

func testConfig(t *testing.T, dataDir, outDir string) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Data.Dir = dataDir
	cfg.Data.HighTF = "4h"
	cfg.Data.LowTF = "1h"
	cfg.Risk.TransactionCostPct = 0.1
	cfg.Risk.SlippagePct = 0
	cfg.Journal.Type = "csv"
	cfg.Journal.Dir = outDir
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, perPair bool) *Runner {
	t.Helper()

	js, err := OpenJournals(cfg.Journal, perPair)
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Close() })

	r, err := NewRunner(cfg, js, zerolog.Nop())
	require.NoError(t, err)
	r.Now = func() time.Time { return t0 }
	return r
}

func TestRunner_LadderRoundTrip(t *testing.T) {
	data := t.TempDir()
	writeFixture(t, data, true)
	cfg := testConfig(t, data, filepath.Join(t.TempDir(), "out"))

	r := newTestRunner(t, cfg, false)
	out, err := r.Run(context.Background(), cfg.Pairs()[0])
	require.NoError(t, err)

	assert.Equal(t, 12, out.Bars)
	require.Len(t, out.Result.Trades, 1)

	tr := out.Result.Trades[0]
	assert.Equal(t, 4, tr.EntryIndex)
	assert.Equal(t, 8, tr.ExitIndex)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 110.0, tr.ExitPrice)
	assert.Equal(t, 1000.0, tr.Notional)
	assert.InDelta(t, 100.0, tr.GrossPnL, 1e-9)
	assert.InDelta(t, 2.0, tr.Cost, 1e-9)
	assert.InDelta(t, 98.0, tr.NetPnL, 1e-9)
	require.True(t, tr.RMultiple.Valid)
	assert.InDelta(t, 9.8, tr.RMultiple.Float64, 1e-9)
	assert.Equal(t, "SIGNAL", tr.Reason)
	assert.Equal(t, "low", tr.Snapshot["risk_regime"])

	require.Len(t, out.Result.Equity, 12)
	assert.InDelta(t, 10000.0, out.Result.Equity[7].Equity, 1e-9)
	assert.InDelta(t, 10098.0, out.Result.Equity[8].Equity, 1e-9)
	assert.True(t, out.Result.Equity[7].InPosition)
	assert.False(t, out.Result.Equity[8].InPosition)

	assert.Equal(t, "BTCUSD", out.Run.Symbol)
	assert.Equal(t, "4h/1h", out.Run.Timeframe)
	assert.Equal(t, "block_high", out.Run.PolicyID)
	assert.Equal(t, "htf_ladder_state==1", out.Run.Strategy)
	assert.NotEmpty(t, out.Run.RunID)
	assert.Equal(t, t0, out.Run.Created)

	require.Len(t, out.Breakdowns, len(cfg.Aggregate))
	assert.Equal(t, 1, out.Breakdowns[0].All.Count)

	for _, name := range []string{"runs.csv", "trades.csv", "equity.csv", "breakdowns.csv"} {
		assert.FileExists(t, filepath.Join(cfg.Journal.Dir, name))
	}
}

func TestRunner_DeterministicCSV(t *testing.T) {
	data := t.TempDir()
	writeFixture(t, data, true)

	read := func(dir string) map[string][]byte {
		files := map[string][]byte{}
		for _, name := range []string{"runs.csv", "trades.csv", "equity.csv", "breakdowns.csv"} {
			b, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			files[name] = b
		}
		return files
	}

	var outs []map[string][]byte
	for i := 0; i < 2; i++ {
		cfg := testConfig(t, data, filepath.Join(t.TempDir(), "out"))
		r := newTestRunner(t, cfg, false)
		r.Now = time.Now
		_, err := r.Run(context.Background(), cfg.Pairs()[0])
		require.NoError(t, err)
		outs = append(outs, read(cfg.Journal.Dir))
	}

	for _, name := range []string{"trades.csv", "equity.csv", "breakdowns.csv"} {
		assert.True(t, bytes.Equal(outs[0][name], outs[1][name]), "%s differs between reruns", name)
	}
	assert.False(t, bytes.Equal(outs[0]["runs.csv"], outs[1]["runs.csv"]), "runs.csv carries the run id")
}

func TestRunner_MissingInput(t *testing.T) {
	data := t.TempDir()
	cfg := testConfig(t, data, filepath.Join(t.TempDir(), "out"))

	r := newTestRunner(t, cfg, false)
	_, err := r.Run(context.Background(), config.Pair{Symbol: "ETHUSD", HighTF: "4h", LowTF: "1h"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunner_DerivesATR(t *testing.T) {
	data := t.TempDir()
	writeFixture(t, data, false)

	cfg := testConfig(t, data, filepath.Join(t.TempDir(), "out"))
	r := newTestRunner(t, cfg, false)

	_, err := r.Run(context.Background(), cfg.Pairs()[0])
	var mf *market.MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "ATR", mf.Field)

	cfg.Data.DeriveATRPeriod = 3
	out, err := r.Run(context.Background(), cfg.Pairs()[0])
	require.NoError(t, err)
	require.Len(t, out.Result.Trades, 1)
	assert.True(t, out.Result.Trades[0].VolatilityUnit > 0)
}

func TestRunner_PaperReplayAndOrg(t *testing.T) {
	data := t.TempDir()
	writeFixture(t, data, true)

	cfg := testConfig(t, data, filepath.Join(t.TempDir(), "out"))
	cfg.Journal.Org = true
	r := newTestRunner(t, cfg, false)
	r.Options.PaperReplay = true
	r.Options.RunID = "01TESTRUN"

	out, err := r.Run(context.Background(), cfg.Pairs()[0])
	require.NoError(t, err)

	require.Len(t, out.Fills, 2)
	assert.InDelta(t, 98.0, out.Fills[1].RealizedPL, 1e-9)

	assert.Equal(t, filepath.Join(cfg.Journal.Dir, "01TESTRUN.org"), out.Run.OrgPath)
	org, err := os.ReadFile(out.Run.OrgPath)
	require.NoError(t, err)
	assert.Contains(t, string(org), "01TESTRUN")

	var buf bytes.Buffer
	PrintOutcome(&buf, out)
	assert.Contains(t, buf.String(), "Run ID:        01TESTRUN")
	assert.Contains(t, buf.String(), "Breakdown: risk_regime")
	assert.Contains(t, buf.String(), "Paper Fills:   2")
}

func TestRunner_CloseEnd(t *testing.T) {
	data := t.TempDir()
	writeFixture(t, data, true)

	cfg := testConfig(t, data, filepath.Join(t.TempDir(), "out"))
	cfg.Signal.Rule = config.RuleThreshold
	cfg.Signal.Field = "close"
	cfg.Signal.Threshold = 100.5
	cfg.Journal.Type = "none"

	r := newTestRunner(t, cfg, false)
	out, err := r.Run(context.Background(), config.Pair{Symbol: "BTCUSD", LowTF: "1h"})
	require.NoError(t, err)
	assert.Empty(t, out.Result.Trades)
	assert.True(t, out.Result.OpenAtEnd)

	r.Options.CloseEnd = true
	out, err = r.Run(context.Background(), config.Pair{Symbol: "BTCUSD", LowTF: "1h"})
	require.NoError(t, err)
	require.Len(t, out.Result.Trades, 1)
	assert.Equal(t, "END", out.Result.Trades[0].Reason)
	assert.Equal(t, 5, out.Result.Trades[0].EntryIndex)
	assert.Equal(t, 11, out.Result.Trades[0].ExitIndex)
	assert.False(t, out.Result.OpenAtEnd)
}

func TestRunner_SQLiteJournal(t *testing.T) {
	data := t.TempDir()
	writeFixture(t, data, true)

	cfg := testConfig(t, data, t.TempDir())
	cfg.Journal.Type = "sqlite"
	cfg.Journal.DBPath = filepath.Join(t.TempDir(), "runs.db")
	r := newTestRunner(t, cfg, true)

	out, err := r.Run(context.Background(), cfg.Pairs()[0])
	require.NoError(t, err)

	db := r.Journals.SQLite()
	require.NotNil(t, db)
	trades, err := db.ListTradesByRun(out.Run.RunID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, out.Result.Trades[0].ID, trades[0].ID)
}

func TestNewGenerator(t *testing.T) {
	sc := config.Default().Signal

	g, err := NewGenerator(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"htf_ladder_state"}, g.Fields())

	sc.Rule = config.RuleEMACross
	sc.FastPeriod, sc.SlowPeriod = 2, 4
	_, err = NewGenerator(sc)
	require.NoError(t, err)
	assert.False(t, needsHighTF(sc))

	sc.EnvField = "htf_fwd_ret"
	_, err = NewGenerator(sc)
	assert.ErrorIs(t, err, signal.ErrNonCausalField)
	assert.True(t, needsHighTF(sc))

	sc.Rule = "grid"
	sc.EnvField = ""
	_, err = NewGenerator(sc)
	assert.Error(t, err)
}
