package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// getUsageCmd returns the usage command.
func getUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print the current lookup quota state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsage()
		},
	}
}

func runUsage() error {
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

	report, err := a.progressService(governor).Usage(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("rolling 5 minute window: %d requests\n", report.WindowCount)
	fmt.Printf("today:                   %d of %d lookups\n", report.Counts.UsageToday, report.Counts.DailyLimit)
	fmt.Printf("monthly buffer:          %d of %d used\n", report.Counts.MonthlyBufferUsed, report.Counts.MonthlyBuffer)
	fmt.Printf("remaining:               %d\n", report.Remaining)
	return nil
}
