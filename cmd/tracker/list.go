package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"bus-tracker/internal/transit"
)

func writeBuses(w io.Writer, buses []transit.LiveBus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "BUS\tROUTE\tSPEED\tPOSITION")
	for _, b := range buses {
		pos := "-"
		if b.CurrentLocation != nil {
			pos = fmt.Sprintf("%.5f,%.5f", b.CurrentLocation.Lat, b.CurrentLocation.Lng)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.0f km/h\t%s\n", b.BusNumber, b.RouteNumber, b.SpeedKmh, pos)
	}
}

func writeRoutes(w io.Writer, routes []transit.Route) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "ROUTE\tNAME\tSTOPS")
	for _, r := range routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Number, r.Name, strings.Join(r.Stops, " > "))
	}
}
