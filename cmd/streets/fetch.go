package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// getFetchCmd returns the fetch command.
func getFetchCmd() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch <constituency>",
		Short: "Fetch addresses for every postcode in a constituency",
		Long: `Fetch walks a constituency's postcodes and stores the addresses the
lookup provider returns for each one. Postcodes fetched on a previous
run are skipped. Requests pass through the rolling-window gate, and
full (uncapped) lookups spend the daily budget.

Examples:
  streets fetch "York Central"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(args[0])
		},
	}

	return fetchCmd
}

func runFetch(name string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withRedis(); err != nil {
		return err
	}

	governor, err := a.windowGovernor()
	if err != nil {
		return err
	}
	defer func() {
		if err := governor.Flush(context.Background()); err != nil {
			logger.ErrorWithErr("failed to flush window usage", err)
		}
	}()

	constituency, err := a.reference.ConstituencyByName(ctx, name)
	if err != nil {
		return err
	}
	if constituency == nil {
		matches, matchErr := a.progressService(governor).SimilarConstituencies(ctx, name)
		if matchErr == nil && len(matches) > 0 {
			return fmt.Errorf("unknown constituency %q, did you mean: %s", name, strings.Join(matches, ", "))
		}
		return fmt.Errorf("unknown constituency %q", name)
	}

	orch := a.orchestrator(a.fetchService(governor), a.resolveService())
	report, err := orch.FetchConstituency(ctx, constituency.ID)
	fmt.Printf("fetched %d of %d postcodes (%d skipped, %d capped, %d failed)\n",
		report.Fetched, report.Postcodes, report.Skipped, report.Capped, report.Failed)
	return err
}
