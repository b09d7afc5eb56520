package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/internal/backtest"
	"github.com/rustyeddy/barsim/internal/batch"
	cliconfig "github.com/rustyeddy/barsim/internal/cli/config"
	"github.com/rustyeddy/barsim/internal/metrics"
)

func newBatchCmd(rc *cliconfig.RootConfig) *cobra.Command {
	var (
		ov          overrides
		workers     int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Simulate every configured pair in parallel",
		Long: `Run batch.pairs from the config file (or the single configured pair)
with a bounded worker pool. Pairs whose input tables are missing are skipped;
any other failure fails the batch.

Example:
  barsim batch --config pairs.yaml --workers 8 --metrics-addr :9102`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rc.Load()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Batch.Workers = workers
			}
			if err := ov.apply(cmd, cfg); err != nil {
				return err
			}

			log, err := rc.Logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			rec := metrics.New()
			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: rec.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Str("addr", metricsAddr).Msg("metrics server")
					}
				}()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(ctx)
				}()
				log.Info().Str("addr", metricsAddr).Msg("serving metrics")
			}

			js, err := backtest.OpenJournals(cfg.Journal, true)
			if err != nil {
				return err
			}
			defer js.Close()

			runner, err := backtest.NewRunner(cfg, js, log)
			if err != nil {
				return err
			}

			b := &batch.Batch{
				Pipeline: runner,
				Workers:  cfg.Batch.Workers,
				Metrics:  rec,
				Log:      log,
			}
			rep, err := b.Run(cmd.Context(), cfg.Pairs())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			backtest.PrintSummaryTable(w, rep.Outcomes)
			for _, p := range rep.Skipped {
				fmt.Fprintf(w, "skipped: %s (input missing)\n", p)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (overrides batch.workers)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the batch runs")
	ov.bind(cmd)

	return cmd
}
