package model

import (
	"sort"
	"time"

	"planboard/internal/daterange"
	"planboard/internal/timerange"
)

// Span is one day of allocated time. Implementations: Duration, FixedDuration, DowntimeDuration.
type Span interface {
	Day() time.Time
	Minutes() int
	// Fixed returns the time of day when the span is pinned to one.
	Fixed() (timerange.TimeRange, bool)
	IsWaiting() bool
	span()
}

// Duration books a number of minutes on a date without a fixed time of day.
type Duration struct {
	Date    time.Time `json:"date"`
	Length  int       `json:"minutes"`
	Waiting bool      `json:"waiting"`
}

func (d Duration) span()                              {}
func (d Duration) Day() time.Time                     { return daterange.Day(d.Date) }
func (d Duration) Minutes() int                       { return d.Length }
func (d Duration) Fixed() (timerange.TimeRange, bool) { return timerange.TimeRange{}, false }
func (d Duration) IsWaiting() bool                    { return d.Waiting }

// FixedDuration books a time of day on a date.
type FixedDuration struct {
	Date    time.Time           `json:"date"`
	Range   timerange.TimeRange `json:"range"`
	Waiting bool                `json:"waiting"`
}

func (d FixedDuration) span()                              {}
func (d FixedDuration) Day() time.Time                     { return daterange.Day(d.Date) }
func (d FixedDuration) Minutes() int                       { return d.Range.TotalTime() }
func (d FixedDuration) Fixed() (timerange.TimeRange, bool) { return d.Range, true }
func (d FixedDuration) IsWaiting() bool                    { return d.Waiting }

// DowntimeDuration is the part of a downtime falling on one date.
type DowntimeDuration struct {
	DowntimeID int64               `json:"downtime_id"`
	Date       time.Time           `json:"date"`
	Range      timerange.TimeRange `json:"range"`
}

func (d DowntimeDuration) span()                              {}
func (d DowntimeDuration) Day() time.Time                     { return daterange.Day(d.Date) }
func (d DowntimeDuration) Minutes() int                       { return d.Range.TotalTime() }
func (d DowntimeDuration) Fixed() (timerange.TimeRange, bool) { return d.Range, true }
func (d DowntimeDuration) IsWaiting() bool                    { return false }

// Booking allocates a resource's time over one or more days.
type Booking struct {
	ID         int64  `json:"id"`
	ResourceID int64  `json:"resource_id"`
	Title      string `json:"title"`
	Durations  []Span `json:"-"`
}

// Allocation is a booking's span on one date.
type Allocation struct {
	BookingID  int64
	ResourceID int64
	Title      string
	Span       Span
}

// Bookings is a read-only booking ledger.
type Bookings []Booking

// ConfirmedOn returns the non-waiting allocations with time on date for a resource,
// shortest first. Ties keep booking id order.
func (b Bookings) ConfirmedOn(resourceID int64, date time.Time) []Allocation {
	day := daterange.Day(date)
	var out []Allocation
	for _, booking := range b {
		if booking.ResourceID != resourceID {
			continue
		}
		for _, span := range booking.Durations {
			if span.IsWaiting() || span.Minutes() <= 0 || !span.Day().Equal(day) {
				continue
			}
			out = append(out, Allocation{
				BookingID:  booking.ID,
				ResourceID: booking.ResourceID,
				Title:      booking.Title,
				Span:       span,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Minutes() == out[j].Span.Minutes() {
			return out[i].BookingID < out[j].BookingID
		}
		return out[i].Span.Minutes() < out[j].Span.Minutes()
	})
	return out
}

// Clash is a booking day that no longer fits after a proposed downtime.
type Clash struct {
	BookingID  int64                `json:"booking_id"`
	ResourceID int64                `json:"resource_id"`
	Title      string               `json:"title"`
	Date       time.Time            `json:"date"`
	Minutes    int                  `json:"minutes"`
	Range      *timerange.TimeRange `json:"range,omitempty"`
}

// ClashFor builds the clash record of an allocation.
func ClashFor(a Allocation) Clash {
	c := Clash{
		BookingID:  a.BookingID,
		ResourceID: a.ResourceID,
		Title:      a.Title,
		Date:       a.Span.Day(),
		Minutes:    a.Span.Minutes(),
	}
	if r, ok := a.Span.Fixed(); ok {
		c.Range = &r
	}
	return c
}
