package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/constituency-streets/internal/worker"
)

// getResolveCmd returns the resolve command.
func getResolveCmd() *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve [constituency]",
		Short: "Resolve stored addresses against the road gazetteer",
		Long: `Resolve splits every stored address into a thoroughfare and house
identifier using the road names of its postcode district. Without an
argument every district with addresses is resolved; with a constituency
name only that constituency's districts are.

Examples:
  streets resolve
  streets resolve "York Central"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runResolve(name)
		},
	}

	return resolveCmd
}

func runResolve(name string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch := worker.NewOrchestrator(a.postcodes, nil, a.resolveService(), cfg.Worker.Parallelism, showProgress, logger)

	var report worker.ResolveReport
	if name == "" {
		report, err = orch.ResolveAll(ctx)
	} else {
		constituency, lookupErr := a.reference.ConstituencyByName(ctx, name)
		if lookupErr != nil {
			return lookupErr
		}
		if constituency == nil {
			governor, govErr := a.windowGovernor()
			if govErr == nil {
				matches, matchErr := a.progressService(governor).SimilarConstituencies(ctx, name)
				if matchErr == nil && len(matches) > 0 {
					return fmt.Errorf("unknown constituency %q, did you mean: %s", name, strings.Join(matches, ", "))
				}
			}
			return fmt.Errorf("unknown constituency %q", name)
		}
		report, err = orch.ResolveConstituency(ctx, constituency.ID)
	}

	s := report.Summary
	fmt.Printf("resolved %d districts (%d failed): %d addresses, %d fuzzy, %d unresolved\n",
		report.Districts, report.Failed, s.Total, s.FuzzyMatched, s.Unresolved)
	return err
}
