package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constituency-streets/internal/export"
	"github.com/constituency-streets/internal/types"
)

// getExportCmd returns the export command with its subcommands.
func getExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write CSV extracts of the stored addresses",
		Long: `Export writes CSV files to the configured output directory.

Examples:
  streets export streets --constituency "York Central"
  streets export addresses --local-authority "York"
  streets export msoa
  streets export age --bracket 0-15 --limit 50`,
	}

	exportCmd.AddCommand(
		getExportStreetsCmd(),
		getExportAddressesCmd(),
		getExportMSOACmd(),
		getExportAgeCmd(),
	)
	return exportCmd
}

func getExportStreetsCmd() *cobra.Command {
	var constituency, localAuthority string

	streetsCmd := &cobra.Command{
		Use:   "streets",
		Short: "Export the distinct resolved street names of an area",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExportService(func(ctx context.Context, svc *export.Service) (string, error) {
				if localAuthority != "" {
					return svc.StreetsByLocalAuthority(ctx, localAuthority)
				}
				return svc.StreetsByConstituency(ctx, constituency)
			})
		},
	}

	addAreaFlags(streetsCmd, &constituency, &localAuthority)
	return streetsCmd
}

func getExportAddressesCmd() *cobra.Command {
	var constituency, localAuthority string

	addressesCmd := &cobra.Command{
		Use:   "addresses",
		Short: "Export the full address rows of an area",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExportService(func(ctx context.Context, svc *export.Service) (string, error) {
				if localAuthority != "" {
					return svc.AddressesByLocalAuthority(ctx, localAuthority)
				}
				return svc.AddressesByConstituency(ctx, constituency)
			})
		},
	}

	addAreaFlags(addressesCmd, &constituency, &localAuthority)
	return addressesCmd
}

func getExportMSOACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "msoa",
		Short: "Export a residential address list per MSOA",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc := export.NewService(a.addresses, a.reference, a.postcodes, cfg.Output.Dir, logger)
			paths, err := svc.MSOAAddresses(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d files to %s\n", len(paths), cfg.Output.Dir)
			return nil
		},
	}
}

func getExportAgeCmd() *cobra.Command {
	var (
		bracket string
		limit   int
	)

	ageCmd := &cobra.Command{
		Use:   "age",
		Short: "Export postcodes ranked by a census age bracket's share",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAgeBracket(bracket)
			if err != nil {
				return err
			}
			return withExportService(func(ctx context.Context, svc *export.Service) (string, error) {
				return svc.PostcodesByAge(ctx, parsed, limit)
			})
		},
	}

	ageCmd.Flags().StringVarP(&bracket, "bracket", "b", string(types.AgeBracketYoung),
		"age bracket: 0-15, 16-35 or 36-100+")
	ageCmd.Flags().IntVarP(&limit, "limit", "n", 100, "number of postcodes")
	return ageCmd
}

func addAreaFlags(cmd *cobra.Command, constituency, localAuthority *string) {
	cmd.Flags().StringVarP(constituency, "constituency", "c", "", "constituency name")
	cmd.Flags().StringVarP(localAuthority, "local-authority", "l", "", "local authority name")
	cmd.MarkFlagsOneRequired("constituency", "local-authority")
	cmd.MarkFlagsMutuallyExclusive("constituency", "local-authority")
}

func parseAgeBracket(s string) (types.AgeBracket, error) {
	for _, b := range types.AgeBrackets {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown age bracket %q", s)
}

// withExportService runs one export against a freshly wired service and
// prints the resulting file path.
func withExportService(fn func(ctx context.Context, svc *export.Service) (string, error)) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc := export.NewService(a.addresses, a.reference, a.postcodes, cfg.Output.Dir, logger)
	path, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
