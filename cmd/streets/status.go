package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// getStatusCmd returns the status command.
func getStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print per-constituency fetch progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	governor, err := a.windowGovernor()
	if err != nil {
		return err
	}

	progress, err := a.progressService(governor).FetchProgress(ctx)
	if err != nil {
		return err
	}

	for _, p := range progress {
		fmt.Printf("%-50s %6d/%-6d %5.1f%%\n", p.Name, p.Fetched, p.Postcodes, p.Percent)
	}
	return nil
}
