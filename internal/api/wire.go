package api

import (
	"fmt"
	"time"

	"planboard/internal/daterange"
	"planboard/internal/dataset"
	"planboard/internal/downtime"
	"planboard/internal/model"
	"planboard/internal/timerange"
	"planboard/internal/zone"
)

// Dates travel as YYYY-MM-DD, times of day as minutes since midnight.

// ZonePayload names a zone and its offset in minutes east of UTC.
type ZonePayload struct {
	Name   string `json:"name,omitempty"`
	Offset int    `json:"offset"`
}

// DowntimePayload is the wire form of a downtime. Timezone carries an IANA
// name only; the offset is resolved on decode.
type DowntimePayload struct {
	ID          int64   `json:"id,omitempty"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	StartTime   int     `json:"start_time"`
	EndTime     int     `json:"end_time"`
	Timezone    string  `json:"timezone,omitempty"`
	TypeID      int64   `json:"downtime_type_id,omitempty"`
	ResourceIDs []int64 `json:"resource_ids"`
	CreatorID   int64   `json:"creator_id,omitempty"`
	Details     string  `json:"details,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// CreateDowntimeRequest asks the server to store a downtime and apply the
// resolution to the bookings it clashes with.
type CreateDowntimeRequest struct {
	Downtime   DowntimePayload `json:"downtime"`
	Resolution string          `json:"resolution,omitempty"`
}

// ClashPayload is one clashing booking day.
type ClashPayload struct {
	BookingID  int64  `json:"booking_id"`
	ResourceID int64  `json:"resource_id"`
	Title      string `json:"title"`
	Date       string `json:"date"`
	Minutes    int    `json:"minutes"`
	StartTime  *int   `json:"start_time,omitempty"`
	EndTime    *int   `json:"end_time,omitempty"`
}

type ResourcePayload struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Zone ZonePayload `json:"zone"`
}

type PeriodPayload struct {
	ID         int64   `json:"id"`
	WeekDay    int     `json:"week_day"`
	StartTime  int     `json:"start_time"`
	EndTime    int     `json:"end_time"`
	ValidFrom  string  `json:"valid_from"`
	ValidUntil *string `json:"valid_until,omitempty"`
}

type CustomPeriodPayload struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	StartTime int    `json:"start_time"`
	EndTime   int    `json:"end_time"`
}

type OvertimePayload struct {
	ID         int64  `json:"id"`
	ResourceID int64  `json:"resource_instance_id,omitempty"`
	Date       string `json:"date"`
	Duration   int    `json:"duration"`
	CreatorID  int64  `json:"creator_id,omitempty"`
}

// SpanPayload is one day of a booking. StartTime and EndTime are set for
// fixed spans only.
type SpanPayload struct {
	Date       string `json:"date"`
	Minutes    int    `json:"minutes"`
	StartTime  *int   `json:"start_time,omitempty"`
	EndTime    *int   `json:"end_time,omitempty"`
	Waiting    bool   `json:"waiting,omitempty"`
	DowntimeID int64  `json:"downtime_id,omitempty"`
}

type BookingPayload struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Durations []SpanPayload `json:"durations"`
}

// SchedulePayload is the response of the schedule endpoint.
type SchedulePayload struct {
	Resource  ResourcePayload       `json:"resource"`
	Periods   []PeriodPayload       `json:"periods"`
	Custom    []CustomPeriodPayload `json:"custom_periods"`
	Overtimes []OvertimePayload     `json:"overtimes"`
	Downtimes []DowntimePayload     `json:"downtimes"`
	Bookings  []BookingPayload      `json:"bookings"`
}

func zoneOf(p ZonePayload) zone.Zone {
	if p.Name == "" {
		return zone.Local
	}
	return zone.Fixed(p.Name, p.Offset)
}

func formatDate(t time.Time) string {
	return daterange.Day(t).Format(daterange.Layout)
}

func parseDate(field, s string) (time.Time, error) {
	t, err := daterange.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode %s %q: %w", field, s, err)
	}
	return t, nil
}

// EncodeDowntime converts a downtime to its wire form.
func EncodeDowntime(d *downtime.Downtime) DowntimePayload {
	p := DowntimePayload{
		ID:          d.ID,
		ResourceIDs: append([]int64(nil), d.ResourceIDs...),
		From:        formatDate(d.From),
		To:          formatDate(d.To),
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Timezone:    d.Zone.Name,
		TypeID:      d.TypeID,
		CreatorID:   d.CreatorID,
		Details:     d.Details,
	}
	if !d.UpdatedAt.IsZero() {
		p.UpdatedAt = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return p
}

// Decode converts the payload back into a downtime.
func (p DowntimePayload) Decode() (*downtime.Downtime, error) {
	from, err := parseDate("from", p.From)
	if err != nil {
		return nil, err
	}
	to, err := parseDate("to", p.To)
	if err != nil {
		return nil, err
	}
	z, err := zone.Load(p.Timezone, from.Add(time.Duration(p.StartTime)*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("decode downtime %d: %w", p.ID, err)
	}
	d := &downtime.Downtime{
		ID:          p.ID,
		ResourceIDs: append([]int64(nil), p.ResourceIDs...),
		From:        from,
		To:          to,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Zone:        z,
		TypeID:      p.TypeID,
		CreatorID:   p.CreatorID,
		Details:     p.Details,
	}
	if p.UpdatedAt != "" {
		d.UpdatedAt, err = time.Parse(time.RFC3339, p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("decode updated_at %q: %w", p.UpdatedAt, err)
		}
	}
	return d, nil
}

// EncodeClash converts a clash to its wire form.
func EncodeClash(c model.Clash) ClashPayload {
	p := ClashPayload{
		BookingID:  c.BookingID,
		ResourceID: c.ResourceID,
		Title:      c.Title,
		Date:       formatDate(c.Date),
		Minutes:    c.Minutes,
	}
	if c.Range != nil {
		start, end := c.Range.Start, c.Range.End
		p.StartTime, p.EndTime = &start, &end
	}
	return p
}

func (p ClashPayload) Decode() (model.Clash, error) {
	date, err := parseDate("date", p.Date)
	if err != nil {
		return model.Clash{}, err
	}
	c := model.Clash{
		BookingID:  p.BookingID,
		ResourceID: p.ResourceID,
		Title:      p.Title,
		Date:       date,
		Minutes:    p.Minutes,
	}
	if p.StartTime != nil && p.EndTime != nil {
		r, err := timerange.New(*p.StartTime, *p.EndTime)
		if err != nil {
			return model.Clash{}, fmt.Errorf("decode clash %d: %w", p.BookingID, err)
		}
		c.Range = &r
	}
	return c, nil
}

func (p SpanPayload) decode() (model.Span, error) {
	date, err := parseDate("span date", p.Date)
	if err != nil {
		return nil, err
	}
	if p.StartTime == nil || p.EndTime == nil {
		return model.Duration{Date: date, Length: p.Minutes, Waiting: p.Waiting}, nil
	}
	r, err := timerange.New(*p.StartTime, *p.EndTime)
	if err != nil {
		return nil, err
	}
	if p.DowntimeID != 0 {
		return model.DowntimeDuration{DowntimeID: p.DowntimeID, Date: date, Range: r}, nil
	}
	return model.FixedDuration{Date: date, Range: r, Waiting: p.Waiting}, nil
}

// Decode converts the payload into a snapshot.
func (p SchedulePayload) Decode() (dataset.Snapshot, error) {
	rid := p.Resource.ID
	s := dataset.Snapshot{
		Resource: model.Resource{ID: rid, Name: p.Resource.Name, Zone: zoneOf(p.Resource.Zone)},
	}

	for _, pp := range p.Periods {
		from, err := parseDate("valid_from", pp.ValidFrom)
		if err != nil {
			return dataset.Snapshot{}, err
		}
		period := model.AvailablePeriod{
			ID: pp.ID, ResourceID: rid, WeekDay: time.Weekday(pp.WeekDay),
			StartTime: pp.StartTime, EndTime: pp.EndTime, ValidFrom: from,
		}
		if pp.ValidUntil != nil {
			until, err := parseDate("valid_until", *pp.ValidUntil)
			if err != nil {
				return dataset.Snapshot{}, err
			}
			period.ValidUntil = &until
		}
		s.Periods = append(s.Periods, period)
	}

	for _, cp := range p.Custom {
		date, err := parseDate("custom period date", cp.Date)
		if err != nil {
			return dataset.Snapshot{}, err
		}
		s.Custom = append(s.Custom, model.CustomAvailablePeriod{ID: cp.ID, ResourceID: rid, Date: date, StartTime: cp.StartTime, EndTime: cp.EndTime})
	}

	for _, op := range p.Overtimes {
		date, err := parseDate("overtime date", op.Date)
		if err != nil {
			return dataset.Snapshot{}, err
		}
		if op.ResourceID != 0 && op.ResourceID != rid {
			return dataset.Snapshot{}, fmt.Errorf("decode overtime %d: resource %d, want %d", op.ID, op.ResourceID, rid)
		}
		s.Overtimes = append(s.Overtimes, model.Overtime{ID: op.ID, ResourceID: rid, Date: date, Duration: op.Duration, CreatorID: op.CreatorID})
	}

	for _, dp := range p.Downtimes {
		d, err := dp.Decode()
		if err != nil {
			return dataset.Snapshot{}, err
		}
		s.Downtimes = append(s.Downtimes, d)
	}

	for _, bp := range p.Bookings {
		b := model.Booking{ID: bp.ID, ResourceID: rid, Title: bp.Title}
		for _, sp := range bp.Durations {
			span, err := sp.decode()
			if err != nil {
				return dataset.Snapshot{}, fmt.Errorf("decode booking %d: %w", bp.ID, err)
			}
			b.Durations = append(b.Durations, span)
		}
		s.Bookings = append(s.Bookings, b)
	}
	return s, nil
}
