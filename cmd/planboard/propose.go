package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/model"
	"planboard/internal/report"
	"planboard/internal/timerange"
	"planboard/internal/zone"
)

type downtimeFlags struct {
	resources string
	from, to  string
	start     string
	end       string
	tz        string
	details   string
}

func (f *downtimeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.resources, "resources", "", "Comma separated resource IDs")
	cmd.Flags().StringVar(&f.from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last date (YYYY-MM-DD), defaults to --from")
	cmd.Flags().StringVar(&f.start, "start", "00:00", "Start time on the first date (HH:MM)")
	cmd.Flags().StringVar(&f.end, "end", "24:00", "End time on the last date (HH:MM)")
	cmd.Flags().StringVar(&f.tz, "tz", "", "IANA time zone of the times, empty for resource-local")
	cmd.Flags().StringVar(&f.details, "details", "", "Free text")
}

func (f *downtimeFlags) downtime() (*downtime.Downtime, error) {
	ids, err := parseIDs(f.resources)
	if err != nil {
		return nil, fmt.Errorf("--resources: %w", err)
	}
	dr, err := parseDateRange(f.from, f.to)
	if err != nil {
		return nil, err
	}
	start, err := timerange.ParseClock(f.start)
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := timerange.ParseClock(f.end)
	if err != nil {
		return nil, fmt.Errorf("invalid --end: %w", err)
	}
	z, err := zone.Load(f.tz, dr.Start.Add(time.Duration(start)*time.Minute))
	if err != nil {
		return nil, err
	}
	return &downtime.Downtime{
		ResourceIDs: ids,
		From:        dr.Start,
		To:          dr.End,
		StartTime:   start,
		EndTime:     end,
		Zone:        z,
		Details:     f.details,
	}, nil
}

type ProposeOutput struct {
	Command    string        `json:"command"`
	State      string        `json:"state"`
	DowntimeID int64         `json:"downtime_id,omitempty"`
	Clashes    []model.Clash `json:"clashes"`
}

func proposeCmd() *cobra.Command {
	var flags downtimeFlags
	var decision, export string

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Create a downtime, resolving clashing bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.downtime()
			if err != nil {
				return err
			}
			chosen, err := clash.ParseDecision(decision)
			if err != nil {
				return err
			}

			ctx := context.Background()
			a, err := newApp(ctx, daterange.DateRange{})
			if err != nil {
				return err
			}
			defer a.close()

			run, err := a.service.ProposeDowntime(ctx, d, func(clashes []model.Clash) clash.Decision {
				if export != "" {
					if err := writeReport(export, d, clashes); err != nil {
						logger.Error().Err(err).Str("path", export).Msg("clash export failed")
					}
				}
				return chosen
			})
			if run == nil {
				return err
			}

			output := ProposeOutput{Command: run.ID, State: string(run.State()), Clashes: run.Clashes()}
			if created := run.Created(); created != nil {
				output.DowntimeID = created.ID
			}
			if outputJSON {
				if jerr := writeJSON(output); jerr != nil {
					return jerr
				}
				return err
			}
			if rerr := renderClashes(output.Clashes); rerr != nil {
				return rerr
			}
			fmt.Printf("command %s: %s", output.Command, output.State)
			if output.DowntimeID != 0 {
				fmt.Printf(", downtime %d", output.DowntimeID)
			}
			fmt.Println()
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&decision, "decision", string(clash.DecisionCancel), "What to do with clashes: waiting_list, delete or cancel")
	cmd.Flags().StringVar(&export, "export", "", "Write the clash list to this .xlsx file")
	return cmd
}

func exportClashesCmd() *cobra.Command {
	var flags downtimeFlags
	var out string

	cmd := &cobra.Command{
		Use:   "export-clashes",
		Short: "Write the bookings a downtime would clash with to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			d, err := flags.downtime()
			if err != nil {
				return err
			}

			ctx := context.Background()
			a, err := newApp(ctx, daterange.DateRange{})
			if err != nil {
				return err
			}
			defer a.close()

			clashes, err := a.service.CheckClashes(ctx, d)
			if err != nil {
				return err
			}
			if err := writeReport(out, d, clashes); err != nil {
				return err
			}
			logger.Info().Int("clashes", len(clashes)).Str("path", out).Msg("clashes exported")
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Output .xlsx path")
	return cmd
}

func deleteDateCmd() *cobra.Command {
	var resourceID, downtimeID int64
	var date string

	cmd := &cobra.Command{
		Use:   "delete-date",
		Short: "Remove one date from a downtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			if resourceID <= 0 || downtimeID <= 0 {
				return fmt.Errorf("--resource and --downtime are required")
			}
			day, err := daterange.ParseDate(date)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}

			ctx := context.Background()
			a, err := newApp(ctx, daterange.Single(day))
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.service.LoadResource(ctx, resourceID); err != nil {
				return err
			}
			return a.service.DeleteDowntimeDate(ctx, downtimeID, day)
		},
	}

	cmd.Flags().Int64Var(&resourceID, "resource", 0, "A resource of the downtime")
	cmd.Flags().Int64Var(&downtimeID, "downtime", 0, "Downtime ID")
	cmd.Flags().StringVar(&date, "date", "", "Date to remove (YYYY-MM-DD)")
	return cmd
}

func writeReport(path string, d *downtime.Downtime, clashes []model.Clash) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteClashes(f, d, clashes); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func renderClashes(clashes []model.Clash) error {
	if len(clashes) == 0 {
		fmt.Println("no clashes")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BOOKING\tRESOURCE\tDATE\tMINUTES\tTITLE")
	for _, c := range clashes {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\n", c.BookingID, c.ResourceID, c.Date.Format(daterange.Layout), c.Minutes, c.Title)
	}
	return w.Flush()
}
