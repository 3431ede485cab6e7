package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constituency-streets/internal/ingest"
)

// getIngestCmd returns the ingest command.
func getIngestCmd() *cobra.Command {
	var dataset string

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load ONS and OS reference data into PostgreSQL",
		Long: `Ingest loads the reference datasets from their configured CSV files.

Datasets load in dependency order: constituencies, local authorities,
MSOAs, census age counts, the postcode directory and OS Open Names
roads. Files whose modification time is unchanged since the last load
are skipped.

Examples:
  streets ingest
  streets ingest --dataset postcodes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(dataset)
		},
	}

	ingestCmd.Flags().StringVarP(
		&dataset, "dataset", "d", "",
		"load a single dataset: constituencies, local-authorities, msoas, census, postcodes, roads",
	)

	return ingestCmd
}

func runIngest(dataset string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc := ingest.NewService(cfg.Ingest, a.reference, a.postcodes, a.roads, showProgress, logger)

	switch dataset {
	case "":
		return svc.All(ctx)
	case "constituencies":
		return svc.Constituencies(ctx)
	case "local-authorities":
		return svc.LocalAuthorities(ctx)
	case "msoas":
		return svc.MSOAs(ctx)
	case "census":
		return svc.CensusAge(ctx)
	case "postcodes":
		return svc.Postcodes(ctx)
	case "roads":
		return svc.Roads(ctx)
	default:
		return fmt.Errorf("unknown dataset %q", dataset)
	}
}
