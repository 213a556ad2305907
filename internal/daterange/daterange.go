// Package daterange implements inclusive calendar-date intervals.
package daterange

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Layout is the ISO date format used on the wire.
const Layout = "2006-01-02"

const dayMillis = 24 * 60 * 60 * 1000

var ErrInverted = errors.New("daterange: start after end")

// Day normalises t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// EpochDay is the number of days since 1970-01-01 for the calendar date of t.
func EpochDay(t time.Time) int64 {
	return Day(t).Unix() / 86400
}

// DateRange is the inclusive interval [Start, End] of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Key identifies a range in memoisation maps.
type Key struct {
	Start int64
	End   int64
}

// New validates and builds a range.
func New(start, end time.Time) (DateRange, error) {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInverted, start.Format(Layout), end.Format(Layout))
	}
	return DateRange{Start: start, End: end}, nil
}

// MustNew panics on an inverted range.
func MustNew(start, end time.Time) DateRange {
	dr, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return dr
}

// Single is the range of one day.
func Single(day time.Time) DateRange {
	d := Day(day)
	return DateRange{Start: d, End: d}
}

// NumberOfDays is the inclusive day count.
func (r DateRange) NumberOfDays() int {
	ms := float64(r.End.Sub(r.Start).Milliseconds())
	return int(math.Round(ms/dayMillis)) + 1
}

// Dates lists every day from Start to End inclusive.
func (r DateRange) Dates() []time.Time {
	dates := make([]time.Time, 0, r.NumberOfDays())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func (r DateRange) OverlapsWith(other DateRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

func (r DateRange) Contains(other DateRange) bool {
	return !r.Start.After(other.Start) && !r.End.Before(other.End)
}

// Includes reports whether the calendar date of t lies in the range.
func (r DateRange) Includes(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// CoversYear reports whether any day of the range falls in year.
func (r DateRange) CoversYear(year int) bool {
	return r.Start.Year() <= year && year <= r.End.Year()
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r DateRange) Key() Key {
	return Key{Start: EpochDay(r.Start), End: EpochDay(r.End)}
}

func (r DateRange) String() string {
	return r.Start.Format(Layout) + ".." + r.End.Format(Layout)
}
