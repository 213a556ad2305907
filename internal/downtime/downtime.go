// Package downtime models time-off records for one or more resources.
package downtime

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"planboard/internal/daterange"
	"planboard/internal/model"
	"planboard/internal/timerange"
	"planboard/internal/zone"
)

var (
	ErrInvalid      = errors.New("downtime: invalid")
	ErrNotFound     = errors.New("downtime: not found")
	ErrOutsideRange = errors.New("downtime: date outside downtime")
)

// Downtime makes its resources unavailable from From@StartTime to To@EndTime in Zone.
type Downtime struct {
	ID          int64
	ResourceIDs []int64
	From        time.Time
	To          time.Time
	StartTime   int // minutes of day on From
	EndTime     int // minutes of day on To
	Zone        zone.Zone
	TypeID      int64
	CreatorID   int64
	Details     string
	UpdatedAt   time.Time

	mu        sync.Mutex
	shifted   map[int]cachedShift
	durations *cachedDurations
}

// signature captures the attributes derived values depend on.
type signature struct {
	from, to   int64
	start, end int
	zone       zone.Zone
}

type cachedShift struct {
	sig   signature
	value Shifted
}

type cachedDurations struct {
	sig   signature
	value []model.DowntimeDuration
}

func (d *Downtime) signature() signature {
	return signature{
		from:  daterange.EpochDay(d.From),
		to:    daterange.EpochDay(d.To),
		start: d.StartTime,
		end:   d.EndTime,
		zone:  d.Zone,
	}
}

// Validate checks the invariants of a well-formed downtime.
func (d *Downtime) Validate() error {
	from, to := daterange.Day(d.From), daterange.Day(d.To)
	switch {
	case d.From.IsZero() || d.To.IsZero():
		return fmt.Errorf("%w: dates are required", ErrInvalid)
	case from.After(to):
		return fmt.Errorf("%w: from %s after to %s", ErrInvalid, from.Format(daterange.Layout), to.Format(daterange.Layout))
	case d.StartTime < 0 || d.StartTime > timerange.MinutesPerDay || d.EndTime < 0 || d.EndTime > timerange.MinutesPerDay:
		return fmt.Errorf("%w: times must be within 0..1440", ErrInvalid)
	case from.Equal(to) && d.StartTime >= d.EndTime:
		return fmt.Errorf("%w: start time must precede end time on a single day", ErrInvalid)
	case len(d.ResourceIDs) == 0:
		return fmt.Errorf("%w: no resources", ErrInvalid)
	}
	return nil
}

// DateRange spans From..To in the downtime's own zone.
func (d *Downtime) DateRange() daterange.DateRange {
	return daterange.MustNew(d.From, d.To)
}

// IsSeries reports whether the downtime spans more than one day.
func (d *Downtime) IsSeries() bool {
	return d.DateRange().NumberOfDays() > 1
}

func (d *Downtime) HasResource(id int64) bool {
	return slices.Contains(d.ResourceIDs, id)
}

// AddResource is a no-op when the resource is already present.
func (d *Downtime) AddResource(id int64) {
	if !d.HasResource(id) {
		d.ResourceIDs = append(d.ResourceIDs, id)
	}
}

// RemoveResource is a no-op when the resource is absent.
func (d *Downtime) RemoveResource(id int64) {
	d.ResourceIDs = slices.DeleteFunc(d.ResourceIDs, func(r int64) bool { return r == id })
}

// TimeRange is the effective range on date in the downtime's own zone.
func (d *Downtime) TimeRange(date time.Time) timerange.TimeRange {
	return d.Local().TimeRange(date)
}

// Local is the downtime in its own zone, without shifting.
func (d *Downtime) Local() Shifted {
	return Shifted{
		StartDate: daterange.Day(d.From),
		EndDate:   daterange.Day(d.To),
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
	}
}

// Durations lists one entry per day of the downtime.
func (d *Downtime) Durations() []model.DowntimeDuration {
	sig := d.signature()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.durations != nil && d.durations.sig == sig {
		return slices.Clone(d.durations.value)
	}

	local := d.Local()
	dates := local.DateRange().Dates()
	out := make([]model.DowntimeDuration, 0, len(dates))
	for _, day := range dates {
		out = append(out, model.DowntimeDuration{
			DowntimeID: d.ID,
			Date:       day,
			Range:      local.TimeRange(day),
		})
	}
	d.durations = &cachedDurations{sig: sig, value: out}
	return slices.Clone(out)
}

// Clone copies the attributes; caches are not shared.
func (d *Downtime) Clone() *Downtime {
	return &Downtime{
		ID:          d.ID,
		ResourceIDs: slices.Clone(d.ResourceIDs),
		From:        d.From,
		To:          d.To,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Zone:        d.Zone,
		TypeID:      d.TypeID,
		CreatorID:   d.CreatorID,
		Details:     d.Details,
		UpdatedAt:   d.UpdatedAt,
	}
}

// SplitAt removes date from the downtime and returns what is left on either side.
// The left piece keeps the id and ends at 1440 on the day before date; the right
// piece has no id yet and starts at 0 on the day after. Either may be nil, also
// when the piece would cover no time at all, such as the last day of a downtime
// that ends at midnight.
func (d *Downtime) SplitAt(date time.Time) (left, right *Downtime, err error) {
	day := daterange.Day(date)
	from, to := daterange.Day(d.From), daterange.Day(d.To)
	if !d.DateRange().Includes(day) {
		return nil, nil, fmt.Errorf("%w: %s not in %s", ErrOutsideRange, day.Format(daterange.Layout), d.DateRange())
	}

	if day.After(from) && !(day.Equal(from.AddDate(0, 0, 1)) && d.StartTime >= timerange.MinutesPerDay) {
		left = d.Clone()
		left.To = day.AddDate(0, 0, -1)
		left.EndTime = timerange.MinutesPerDay
	}
	if day.Before(to) && !(day.Equal(to.AddDate(0, 0, -1)) && d.EndTime == 0) {
		right = d.Clone()
		right.ID = 0
		right.From = day.AddDate(0, 0, 1)
		right.StartTime = 0
	}
	return left, right, nil
}

// RemoveDate lists the pieces that survive deleting date, left first.
func (d *Downtime) RemoveDate(date time.Time) ([]*Downtime, error) {
	left, right, err := d.SplitAt(date)
	if err != nil {
		return nil, err
	}
	var pieces []*Downtime
	for _, p := range []*Downtime{left, right} {
		if p != nil {
			pieces = append(pieces, p)
		}
	}
	return pieces, nil
}

func (d *Downtime) String() string {
	return fmt.Sprintf("downtime %d %s@%s..%s@%s %s",
		d.ID,
		daterange.Day(d.From).Format(daterange.Layout), timerange.FormatClock(d.StartTime),
		daterange.Day(d.To).Format(daterange.Layout), timerange.FormatClock(d.EndTime),
		d.Zone)
}
