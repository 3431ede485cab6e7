package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constituency-streets/internal/config"
	"github.com/constituency-streets/internal/logging"
)

var (
	cfg    *config.Config
	logger *logging.Logger

	showProgress bool
)

func getRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "streets",
		Short: "streets builds street-by-street address lists for UK constituencies",
		Long: `streets drives the full constituency address pipeline:

  - ingest:  load ONS and OS Open Names reference CSVs into Postgres
  - fetch:   pull every address of a constituency from getAddress.io,
             within the rolling-window and daily request budgets
  - resolve: assign a thoroughfare and house identifier to each address
             using the road gazetteer
  - export:  write street and address CSVs per constituency, local
             authority and MSOA

Configuration is read from the environment (and a .env file when
present): POSTGRES_*, REDIS_*, GETADDRESS_* and the budget and ingest
settings. See internal/config for the complete list.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger = logging.New(
				logging.ParseLevel(cfg.Logging.Level),
				logging.ParseFormat(cfg.Logging.Format),
			)
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&showProgress, "progress", true, "show progress bars")

	rootCmd.AddCommand(
		getMigrateCmd(),
		getIngestCmd(),
		getFetchCmd(),
		getResolveCmd(),
		getExportCmd(),
		getStatusCmd(),
		getUsageCmd(),
	)
	return rootCmd
}
