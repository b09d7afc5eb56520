package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes BTCUSD_1h.csv plus a threshold-rule config into a
// temp dir and returns the config path.
func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume,ATR,risk_regime\n")
	for i, c := range []float64{99, 99, 101, 102, 99, 99, 103, 104, 98, 98} {
		ts := t0.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g,1,1,low\n", ts, c, c, c, c)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTCUSD_1h.csv"), []byte(b.String()), 0o644))

	cfg := config.Default()
	cfg.Data.Dir = dir
	cfg.Data.LowTF = "1h"
	cfg.Signal.Rule = config.RuleThreshold
	cfg.Signal.Field = "close"
	cfg.Signal.Threshold = 100
	cfg.Journal.Type = "none"
	cfg.Journal.Dir = filepath.Join(dir, "out")
	if mutate != nil {
		mutate(cfg)
	}

	path := filepath.Join(dir, "sim.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "barsim dev\n", out)
}

func TestConfigInitValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")
	assert.FileExists(t, path)

	out, err = execute(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "block_high")

	require.NoError(t, os.WriteFile(path, []byte("risk:\n  max_positions_per_symbol: 2\n"), 0o644))
	_, err = execute(t, "config", "validate", "--config", path)
	assert.ErrorContains(t, err, "validation failed")
}

func TestRunAndJournal(t *testing.T) {
	path := writeConfig(t, nil)
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "run", "--config", path, "--journal", "sqlite", "--db", db, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Trades:        2")
	assert.Contains(t, out, "Breakdown: risk_regime")

	out, err = execute(t, "journal", "--db", db, "runs")
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 1)

	out, err = execute(t, "journal", "--db", db, "trades", ids[0])
	require.NoError(t, err)
	assert.Contains(t, out, "SIGNAL")
	assert.Contains(t, out, "STOP")

	out, err = execute(t, "journal", "--db", db, "show", ids[0])
	require.NoError(t, err)
	assert.Contains(t, out, ":RUN_ID:      "+ids[0])

	_, err = execute(t, "journal", "--db", db, "show", "missing")
	assert.Error(t, err)
}

func TestRun_MissingInputFails(t *testing.T) {
	path := writeConfig(t, nil)

	_, err := execute(t, "run", "--config", path, "--symbol", "XRPUSD", "--log-level", "error")
	assert.Error(t, err)
}

func TestBatch_SkipsMissingPairs(t *testing.T) {
	path := writeConfig(t, func(c *config.Config) {
		c.Batch.Pairs = []config.Pair{
			{Symbol: "BTCUSD", LowTF: "1h"},
			{Symbol: "XRPUSD", LowTF: "1h"},
		}
		c.Journal.Type = "csv"
	})

	out, err := execute(t, "batch", "--config", path, "--workers", "2", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "BTCUSD_1h")
	assert.Contains(t, out, "skipped: XRPUSD_1h (input missing)")
}
