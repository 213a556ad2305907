// Package dataset defines the loaded form of one resource's schedule data.
package dataset

import (
	"context"

	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/model"
)

// Snapshot is everything known about a resource for a date window.
type Snapshot struct {
	Resource  model.Resource
	Periods   []model.AvailablePeriod
	Custom    []model.CustomAvailablePeriod
	Overtimes []model.Overtime
	Downtimes []*downtime.Downtime
	Bookings  model.Bookings
}

// Loader reads a resource's snapshot. Custom periods, overtimes, downtimes and
// bookings are limited to those touching window; weekly periods are complete.
type Loader interface {
	LoadSnapshot(ctx context.Context, resourceID int64, window daterange.DateRange) (Snapshot, error)
}
