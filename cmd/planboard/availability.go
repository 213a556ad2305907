package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"planboard/internal/daterange"
	"planboard/internal/timerange"
)

type DayAvailability struct {
	Date    string   `json:"date"`
	Minutes int      `json:"minutes"`
	Ranges  []string `json:"ranges"`
}

type AvailabilityOutput struct {
	ResourceID int64             `json:"resource_id"`
	Resource   string            `json:"resource"`
	Zone       string            `json:"zone"`
	Window     string            `json:"window,omitempty"`
	Total      int               `json:"total_minutes"`
	MaxMinutes int               `json:"max_minutes"`
	Available  bool              `json:"available"`
	Days       []DayAvailability `json:"days"`
}

func availabilityCmd() *cobra.Command {
	var resourceID int64
	var from, to, window string

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show available minutes of a resource per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if resourceID <= 0 {
				return fmt.Errorf("--resource is required")
			}
			dr, err := parseDateRange(from, to)
			if err != nil {
				return err
			}
			var tr *timerange.TimeRange
			if window != "" {
				parsed, err := timerange.Parse(window)
				if err != nil {
					return err
				}
				tr = &parsed
			}

			ctx := context.Background()
			a, err := newApp(ctx, dr)
			if err != nil {
				return err
			}
			defer a.close()

			m, err := a.service.LoadResource(ctx, resourceID)
			if err != nil {
				return err
			}

			output := AvailabilityOutput{
				ResourceID: resourceID,
				Resource:   m.Resource().Name,
				Zone:       m.Resource().Zone.String(),
				Window:     window,
				Total:      m.MinutesAvailableInDateRange(dr, tr),
				MaxMinutes: m.MaxMinutesInUnit(dr, true),
				Available:  m.IsAvailableIn(dr, tr),
			}
			for _, date := range dr.Dates() {
				day := daterange.Single(date)
				var ranges []string
				for _, r := range m.AvailableTimeRangesInDateRange(day, tr) {
					ranges = append(ranges, r.String())
				}
				output.Days = append(output.Days, DayAvailability{
					Date:    date.Format(daterange.Layout),
					Minutes: m.MinutesAvailableForDate(date, tr),
					Ranges:  ranges,
				})
			}

			if outputJSON {
				return writeJSON(output)
			}
			return renderAvailability(output)
		},
	}

	cmd.Flags().Int64Var(&resourceID, "resource", 0, "Resource ID")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD), defaults to --from")
	cmd.Flags().StringVar(&window, "time", "", "Only count HH:MM-HH:MM of each day")
	return cmd
}

func parseDateRange(from, to string) (daterange.DateRange, error) {
	if from == "" {
		return daterange.DateRange{}, fmt.Errorf("--from is required")
	}
	if to == "" {
		to = from
	}
	start, err := daterange.ParseDate(from)
	if err != nil {
		return daterange.DateRange{}, fmt.Errorf("invalid --from: %w", err)
	}
	end, err := daterange.ParseDate(to)
	if err != nil {
		return daterange.DateRange{}, fmt.Errorf("invalid --to: %w", err)
	}
	return daterange.New(start, end)
}

func renderAvailability(out AvailabilityOutput) error {
	fmt.Printf("%s (%d), %s\n", out.Resource, out.ResourceID, out.Zone)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tMINUTES\tRANGES")
	for _, d := range out.Days {
		fmt.Fprintf(w, "%s\t%d\t%s\n", d.Date, d.Minutes, strings.Join(d.Ranges, " "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("total %d min, max %d min, available %t\n", out.Total, out.MaxMinutes, out.Available)
	return nil
}
