package cli

import (
	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/internal/backtest"
	cliconfig "github.com/rustyeddy/barsim/internal/cli/config"
)

// overrides are the run/batch flags that patch the loaded config.
type overrides struct {
	dataDir  string
	journal  string
	out      string
	closeEnd bool
	paper    bool
	org      bool
}

func (o *overrides) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.dataDir, "data-dir", "", "Directory holding the bar tables")
	cmd.Flags().StringVar(&o.journal, "journal", "", "Journal type: csv|sqlite|none")
	cmd.Flags().StringVar(&o.out, "out", "", "Output directory for CSV journals and Org reports")
	cmd.Flags().BoolVar(&o.closeEnd, "close-end", false, "Close an open position on the last bar")
	cmd.Flags().BoolVar(&o.paper, "paper", false, "Mirror decisions to the paper broker")
	cmd.Flags().BoolVar(&o.org, "org", false, "Write an Org-mode report per run")
}

func (o *overrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	if o.dataDir != "" {
		cfg.Data.Dir = o.dataDir
	}
	if o.journal != "" {
		cfg.Journal.Type = o.journal
	}
	if o.out != "" {
		cfg.Journal.Dir = o.out
	}
	if cmd.Flags().Changed("close-end") {
		cfg.Backtest.CloseAtEnd = o.closeEnd
	}
	if cmd.Flags().Changed("paper") {
		cfg.Backtest.PaperReplay = o.paper
	}
	if cmd.Flags().Changed("org") {
		cfg.Journal.Org = o.org
	}
	return cfg.Validate()
}

func newRunCmd(rc *cliconfig.RootConfig) *cobra.Command {
	var (
		ov   overrides
		pair config.Pair
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate one symbol and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rc.Load()
			if err != nil {
				return err
			}
			if pair.Symbol != "" {
				cfg.Symbol = pair.Symbol
			}
			if pair.HighTF != "" {
				cfg.Data.HighTF = pair.HighTF
			}
			if pair.LowTF != "" {
				cfg.Data.LowTF = pair.LowTF
			}
			if err := ov.apply(cmd, cfg); err != nil {
				return err
			}

			log, err := rc.Logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			js, err := backtest.OpenJournals(cfg.Journal, false)
			if err != nil {
				return err
			}
			defer js.Close()

			runner, err := backtest.NewRunner(cfg, js, log)
			if err != nil {
				return err
			}

			out, err := runner.Run(cmd.Context(), config.Pair{
				Symbol: cfg.Symbol,
				HighTF: cfg.Data.HighTF,
				LowTF:  cfg.Data.LowTF,
			})
			if err != nil {
				return err
			}

			backtest.PrintOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&pair.Symbol, "symbol", "", "Symbol (overrides symbol)")
	cmd.Flags().StringVar(&pair.HighTF, "high-tf", "", "High timeframe (overrides data.high_tf)")
	cmd.Flags().StringVar(&pair.LowTF, "low-tf", "", "Low timeframe (overrides data.low_tf)")
	ov.bind(cmd)

	return cmd
}
