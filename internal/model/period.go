package model

import (
	"time"

	"planboard/internal/daterange"
	"planboard/internal/timerange"
	"planboard/internal/zone"
)

// Resource is a person or asset whose time can be booked.
type Resource struct {
	ID   int64     `json:"id"`
	Name string    `json:"name"`
	Zone zone.Zone `json:"zone"`
}

// Period is a working-hours rule that yields a time range on a date.
// The set of implementations is closed: AvailablePeriod and CustomAvailablePeriod.
type Period interface {
	TimeRange() timerange.TimeRange
	period()
}

// AvailablePeriod repeats every WeekDay between ValidFrom and ValidUntil (open-ended when nil).
// Superseded periods keep their ValidUntil so history stays queryable.
type AvailablePeriod struct {
	ID         int64        `json:"id"`
	ResourceID int64        `json:"resource_id"`
	WeekDay    time.Weekday `json:"week_day"`   // 0-6 (Sunday-Saturday)
	StartTime  int          `json:"start_time"` // minutes of day
	EndTime    int          `json:"end_time"`
	ValidFrom  time.Time    `json:"valid_from"`
	ValidUntil *time.Time   `json:"valid_until,omitempty"`
}

func (p AvailablePeriod) period() {}

func (p AvailablePeriod) TimeRange() timerange.TimeRange {
	return timerange.MustNew(p.StartTime, p.EndTime)
}

// ValidOn reports whether date lies inside the validity window, ignoring the weekday.
func (p AvailablePeriod) ValidOn(date time.Time) bool {
	d := daterange.Day(date)
	if d.Before(daterange.Day(p.ValidFrom)) {
		return false
	}
	return p.ValidUntil == nil || !d.After(daterange.Day(*p.ValidUntil))
}

// AppliesTo reports whether the period yields working hours on date.
func (p AvailablePeriod) AppliesTo(date time.Time) bool {
	return date.Weekday() == p.WeekDay && p.ValidOn(date)
}

// CustomAvailablePeriod overrides the weekly pattern for exactly one date.
type CustomAvailablePeriod struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	Date       time.Time `json:"date"`
	StartTime  int       `json:"start_time"`
	EndTime    int       `json:"end_time"`
}

func (p CustomAvailablePeriod) period() {}

func (p CustomAvailablePeriod) TimeRange() timerange.TimeRange {
	return timerange.MustNew(p.StartTime, p.EndTime)
}

func (p CustomAvailablePeriod) On(date time.Time) bool {
	return daterange.Day(p.Date).Equal(daterange.Day(date))
}

// Overtime is extra availability in minutes on top of the normal periods of one date.
type Overtime struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	Date       time.Time `json:"date"`
	Duration   int       `json:"duration"` // minutes
	CreatorID  int64     `json:"creator_id"`
}

func (o Overtime) On(date time.Time) bool {
	return daterange.Day(o.Date).Equal(daterange.Day(date))
}

// TimeRanges collects the ranges of periods.
func TimeRanges[P Period](periods []P) []timerange.TimeRange {
	ranges := make([]timerange.TimeRange, 0, len(periods))
	for _, p := range periods {
		ranges = append(ranges, p.TimeRange())
	}
	return ranges
}
