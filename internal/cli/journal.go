package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	cliconfig "github.com/rustyeddy/barsim/internal/cli/config"
	"github.com/rustyeddy/barsim/journal"
)

func newJournalCmd(rc *cliconfig.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite run journal",
		Long: `Query runs recorded with journal.type sqlite.

Subcommands:
  runs            - List run ids
  show <run-id>   - Print a run as an Org-mode entry
  trades <run-id> - List a run's trades

Examples:
  barsim journal --db barsim.db runs
  barsim journal --db barsim.db trades 01HZX...`,
	}

	open := func() (*journal.SQLite, error) {
		cfg, err := rc.Load()
		if err != nil {
			return nil, err
		}
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List run ids, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			ids, err := j.ListRunIDs()
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run as an Org-mode entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			r, err := j.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			s, err := journal.FormatRunOrg(r, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}

	tradesCmd := &cobra.Command{
		Use:   "trades <run-id>",
		Short: "List a run's trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			trades, err := j.ListTradesByRun(args[0])
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tENTRY\tEXIT\tENTRY PX\tEXIT PX\tNET\tR\tREASON")
			for _, t := range trades {
				r := "n/a"
				if t.RMultiple.Valid {
					r = fmt.Sprintf("%.3f", t.RMultiple.Float64)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\t%.2f\t%s\t%s\n",
					t.ID,
					t.EntryTime.Format(time.RFC3339),
					t.ExitTime.Format(time.RFC3339),
					t.EntryPrice, t.ExitPrice, t.NetPnL, r, t.Reason)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(runsCmd, showCmd, tradesCmd)
	return cmd
}
