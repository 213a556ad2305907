package report

import (
	"io"

	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/model"
	"planboard/internal/timerange"
)

const (
	SheetClashes  = "Clashes"
	SheetDowntime = "Downtime"
)

var clashColumns = []string{"Booking", "Resource", "Title", "Date", "Minutes", "Time"}

// WriteClashes writes the clash list of a proposed downtime as an .xlsx
// workbook: one row per clashing booking day, plus a summary sheet.
func WriteClashes(w io.Writer, proposed *downtime.Downtime, clashes []model.Clash) error {
	sw := newSheetWriter()
	defer sw.Close()

	if err := sw.AddSheet(SheetClashes); err != nil {
		return err
	}
	if err := sw.WriteHeader(clashColumns); err != nil {
		return err
	}
	for _, c := range clashes {
		row := []any{c.BookingID, c.ResourceID, c.Title, c.Date.Format(daterange.Layout), c.Minutes}
		if c.Range != nil {
			row = append(row, c.Range.String())
		}
		if err := sw.WriteRow(row); err != nil {
			return err
		}
	}

	if proposed != nil {
		if err := sw.AddSheet(SheetDowntime); err != nil {
			return err
		}
		summary := [][]any{
			{"From", proposed.From.Format(daterange.Layout)},
			{"To", proposed.To.Format(daterange.Layout)},
			{"Start", timerange.FormatClock(proposed.StartTime)},
			{"End", timerange.FormatClock(proposed.EndTime)},
			{"Zone", proposed.Zone.String()},
			{"Resources", len(proposed.ResourceIDs)},
			{"Clashes", len(clashes)},
		}
		for _, row := range summary {
			if err := sw.WriteRow(row); err != nil {
				return err
			}
		}
	}

	return sw.Save(w)
}
