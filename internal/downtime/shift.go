package downtime

import (
	"time"

	"planboard/internal/daterange"
	"planboard/internal/timerange"
	"planboard/internal/zone"
)

// Shifted is a downtime's span expressed in some zone.
type Shifted struct {
	StartDate time.Time
	EndDate   time.Time
	StartTime int
	EndTime   int
}

func (s Shifted) DateRange() daterange.DateRange {
	return daterange.MustNew(s.StartDate, s.EndDate)
}

// TimeRange is the part of the span falling on date; empty outside the span.
func (s Shifted) TimeRange(date time.Time) timerange.TimeRange {
	day := daterange.Day(date)
	isStart := day.Equal(s.StartDate)
	isEnd := day.Equal(s.EndDate)

	switch {
	case isStart && isEnd:
		return timerange.TimeRange{Start: s.StartTime, End: s.EndTime}
	case isStart:
		return timerange.TimeRange{Start: s.StartTime, End: timerange.MinutesPerDay}
	case isEnd:
		return timerange.TimeRange{Start: 0, End: s.EndTime}
	case day.After(s.StartDate) && day.Before(s.EndDate):
		return timerange.FullDay
	}
	return timerange.TimeRange{}
}

// InTimeZone expresses the downtime in target. Downtimes without a zone are
// never shifted. Results are cached per target offset.
func (d *Downtime) InTimeZone(target zone.Zone) Shifted {
	if d.Zone.IsLocal() || target.IsLocal() {
		return d.Local()
	}

	sig := d.signature()
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.shifted[target.Offset]; ok && c.sig == sig {
		return c.value
	}

	s := shift(d.Local(), d.Zone.ShiftTo(target))
	if d.shifted == nil {
		d.shifted = make(map[int]cachedShift)
	}
	d.shifted[target.Offset] = cachedShift{sig: sig, value: s}
	return s
}

func shift(s Shifted, minutes int) Shifted {
	if minutes == 0 {
		return s
	}
	start := s.StartTime + minutes
	end := s.EndTime + minutes

	days := floorDiv(start, timerange.MinutesPerDay)
	s.StartDate = s.StartDate.AddDate(0, 0, days)
	s.StartTime = start - days*timerange.MinutesPerDay

	// Ends land in (0, 1440]: an end at 0 after rollover means through the
	// end of the previous day.
	days = floorDiv(end-1, timerange.MinutesPerDay)
	s.EndDate = s.EndDate.AddDate(0, 0, days)
	s.EndTime = end - days*timerange.MinutesPerDay
	return s
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
