package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"symptosafe/internal/facility"
)

func newFacilitiesCmd(a *app) *cobra.Command {
	var (
		lat, lng, radius float64
		asJSON           bool
	)

	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "List hospitals, clinics and pharmacies near a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := facility.NewClient(a.cfg.OverpassURLs, a.cfg.FacilityTimeout, a.cfg.FacilityBackoff, a.logger)
			found, err := client.Nearby(cmd.Context(), facility.Query{Latitude: lat, Longitude: lng, RadiusMeters: radius})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), found)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tNAME\tLAT\tLNG")
			for _, f := range found {
				fmt.Fprintf(tw, "%s\t%s\t%.5f\t%.5f\n", f.Type, f.Name, f.Lat, f.Lng)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (required)")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude (required)")
	cmd.Flags().Float64Var(&radius, "radius", facility.DefaultRadiusMeters, "Search radius in meters")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}
