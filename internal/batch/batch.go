// Package batch runs many (symbol, high timeframe, low timeframe) pairs in
// parallel. Every pair has independent state; a pair whose input table is
// missing is skipped, any other failure fails the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/internal/backtest"
	"github.com/rustyeddy/barsim/internal/metrics"
)

// Pipeline runs one pair. *backtest.Runner satisfies it.
type Pipeline interface {
	Run(ctx context.Context, p config.Pair) (*backtest.Outcome, error)
}

type Batch struct {
	Pipeline Pipeline
	Workers  int
	Metrics  *metrics.Recorder
	Log      zerolog.Logger
}

// Report lists outcomes in input pair order.
type Report struct {
	Outcomes []*backtest.Outcome
	Skipped  []config.Pair
}

func (b *Batch) Run(ctx context.Context, pairs []config.Pair) (*Report, error) {
	if b.Pipeline == nil {
		return nil, fmt.Errorf("batch: Pipeline is required")
	}
	workers := b.Workers
	if workers <= 0 {
		workers = 1
	}

	outs := make([]*backtest.Outcome, len(pairs))
	skipped := make([]bool, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			out, err := b.Pipeline.Run(gctx, p)
			elapsed := time.Since(start).Seconds()

			switch {
			case errors.Is(err, os.ErrNotExist):
				b.Log.Warn().Str("pair", p.String()).Err(err).Msg("input missing, skipping")
				skipped[i] = true
				if b.Metrics != nil {
					b.Metrics.RecordSkipped(p.String())
					b.Metrics.RecordRun(metrics.StatusSkipped, elapsed)
				}
				return nil
			case err != nil:
				if b.Metrics != nil {
					b.Metrics.RecordRun(metrics.StatusFailed, elapsed)
				}
				return fmt.Errorf("%s: %w", p, err)
			}

			outs[i] = out
			if b.Metrics != nil {
				b.observe(p, out, elapsed)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{}
	for i, p := range pairs {
		switch {
		case skipped[i]:
			rep.Skipped = append(rep.Skipped, p)
		case outs[i] != nil:
			rep.Outcomes = append(rep.Outcomes, outs[i])
		}
	}
	b.Log.Info().Int("pairs", len(pairs)).Int("completed", len(rep.Outcomes)).
		Int("skipped", len(rep.Skipped)).Msg("batch complete")
	return rep, nil
}

func (b *Batch) observe(p config.Pair, out *backtest.Outcome, seconds float64) {
	name := p.String()
	for _, t := range out.Result.Trades {
		b.Metrics.RecordTrade(name, t.Reason)
	}
	for code, n := range out.Result.Blocked {
		b.Metrics.RecordBlocked(name, code, n)
	}
	b.Metrics.RecordEquity(name, out.Result.Summary.FinalEquity)
	b.Metrics.RecordRun(metrics.StatusOK, seconds)
}
