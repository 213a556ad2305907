// Package clash decides which confirmed bookings stop fitting once a proposed
// downtime is applied, and drives the decision on what to do with them.
package clash

import (
	"context"
	"errors"
	"fmt"

	"planboard/internal/availability"
	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/model"
)

// ErrClashesUnknown marks a lookup that could not decide. It never means "no clashes".
var ErrClashesUnknown = errors.New("clash: clashes could not be determined")

// Finder lists the bookings a proposed downtime would clash with.
type Finder interface {
	Find(ctx context.Context, proposed *downtime.Downtime) ([]model.Clash, error)
}

// ResourceData is everything loaded for one resource.
type ResourceData struct {
	Resource  model.Resource
	Schedule  availability.Schedule
	Downtimes *downtime.Collection
	Bookings  model.Bookings
}

// Source provides loaded resource data to a LocalFinder.
type Source interface {
	ResourceData(resourceID int64) (ResourceData, error)
}

// LocalFinder evaluates clashes from data already in memory.
type LocalFinder struct {
	source Source
}

func NewLocalFinder(source Source) *LocalFinder {
	return &LocalFinder{source: source}
}

// Find simulates each affected resource with the proposed downtime added to a
// copy of its downtimes, then packs the day's confirmed bookings shortest
// first against the minutes left. Bookings that do not fit are clashes.
func (f *LocalFinder) Find(ctx context.Context, proposed *downtime.Downtime) ([]model.Clash, error) {
	if err := proposed.Validate(); err != nil {
		return nil, err
	}

	var clashes []model.Clash
	for _, rid := range proposed.ResourceIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := f.source.ResourceData(rid)
		if err != nil {
			return nil, fmt.Errorf("load resource %d: %w", rid, err)
		}
		clashes = append(clashes, resourceClashes(data, proposed)...)
	}
	return clashes, nil
}

func resourceClashes(data ResourceData, proposed *downtime.Downtime) []model.Clash {
	whatIf := data.Downtimes.Clone()
	whatIf.Add(proposed.Clone())
	manager := availability.NewManager(data.Resource, data.Schedule.Snapshot(), whatIf, nil)

	shifted := proposed.InTimeZone(data.Resource.Zone)
	var clashes []model.Clash
	for _, date := range shifted.DateRange().Dates() {
		blocked := shifted.TimeRange(date)
		boundary := date.Equal(shifted.StartDate) || date.Equal(shifted.EndDate)
		available := manager.MinutesAvailableForDate(date, nil)

		timeBooked := 0
		for _, a := range data.Bookings.ConfirmedOn(data.Resource.ID, date) {
			minutes := a.Span.Minutes()
			if fixed, ok := a.Span.Fixed(); ok {
				if fixed.OverlapsWith(blocked) {
					clashes = append(clashes, model.ClashFor(a))
					continue
				}
				timeBooked += minutes
				continue
			}
			if !boundary || timeBooked+minutes > available {
				clashes = append(clashes, model.ClashFor(a))
				continue
			}
			timeBooked += minutes
		}
	}
	return clashes
}

// RemoteClient asks the server for the clash list.
type RemoteClient interface {
	Clashes(ctx context.Context, proposed *downtime.Downtime) ([]model.Clash, error)
}

// RemoteFinder delegates the check to the server and trusts its answer.
type RemoteFinder struct {
	client RemoteClient
}

func NewRemoteFinder(client RemoteClient) *RemoteFinder {
	return &RemoteFinder{client: client}
}

func (f *RemoteFinder) Find(ctx context.Context, proposed *downtime.Downtime) ([]model.Clash, error) {
	clashes, err := f.client.Clashes(ctx, proposed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClashesUnknown, err)
	}
	return clashes, nil
}

// DualFinder checks locally when every date the proposal touches, in each
// affected resource's zone, lies inside the loaded window and asks the server
// otherwise.
type DualFinder struct {
	Local  Finder
	Remote Finder
	// Loaded is the date range for which complete booking data is in memory.
	Loaded daterange.DateRange
	// Source resolves resource zones. Without it only the proposal's own
	// dates are checked.
	Source Source
}

func (f *DualFinder) Find(ctx context.Context, proposed *downtime.Downtime) ([]model.Clash, error) {
	if f.IsLocal(proposed) {
		return f.Local.Find(ctx, proposed)
	}
	return f.Remote.Find(ctx, proposed)
}

// IsLocal reports whether proposed would be checked in memory. A resource the
// source does not know sends the check to the server.
func (f *DualFinder) IsLocal(proposed *downtime.Downtime) bool {
	if f.Loaded.IsZero() || !f.Loaded.Contains(proposed.DateRange()) {
		return false
	}
	if f.Source == nil {
		return true
	}
	for _, rid := range proposed.ResourceIDs {
		data, err := f.Source.ResourceData(rid)
		if err != nil {
			return false
		}
		if !f.Loaded.Contains(proposed.InTimeZone(data.Resource.Zone).DateRange()) {
			return false
		}
	}
	return true
}
