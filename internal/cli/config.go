package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/config"
	cliconfig "github.com/rustyeddy/barsim/internal/cli/config"
)

func newConfigCmd(rc *cliconfig.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage simulation configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  barsim config init -o sim.yaml
  barsim config validate -f sim.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Created default configuration: %s\n", output)
			fmt.Fprintln(w, "\nEdit the file and run with:")
			fmt.Fprintf(w, "  barsim run --config %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "barsim.yaml", "output config file path (.yaml, .yml or .json)")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = rc.ConfigPath
			}
			if path == "" {
				return fmt.Errorf("-f or --config is required")
			}
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration valid: %s\n", path)
			fmt.Fprintf(w, "  Symbol:   %s (%s / %s)\n", cfg.Symbol, cfg.Data.HighTF, cfg.Data.LowTF)
			fmt.Fprintf(w, "  Signal:   %s\n", cfg.Signal.Rule)
			fmt.Fprintf(w, "  Policy:   %s (enabled=%t)\n", cfg.Policy.ID, cfg.Policy.Enabled)
			fmt.Fprintf(w, "  Equity:   %.2f, base notional %.2f\n", cfg.Risk.InitialEquity, cfg.Risk.BaseNotional)
			fmt.Fprintf(w, "  Journal:  %s\n", cfg.Journal.Type)
			fmt.Fprintf(w, "  Pairs:    %d\n", len(cfg.Pairs()))
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
