// Package availability aggregates a resource's working periods, overrides,
// overtime and downtime into answers about free time.
package availability

import (
	"sync"
	"time"

	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/events"
	"planboard/internal/model"
	"planboard/internal/store"
	"planboard/internal/timerange"
)

// Schedule holds the working-time collections of one resource.
type Schedule struct {
	Periods   *store.Collection[model.AvailablePeriod]
	Custom    *store.Collection[model.CustomAvailablePeriod]
	Overtimes *store.Collection[model.Overtime]
}

// NewSchedule wraps plain slices in detached collections.
func NewSchedule(periods []model.AvailablePeriod, custom []model.CustomAvailablePeriod, overtimes []model.Overtime) Schedule {
	return Schedule{
		Periods:   store.NewCollection("", nil, periods...),
		Custom:    store.NewCollection("", nil, custom...),
		Overtimes: store.NewCollection("", nil, overtimes...),
	}
}

// Snapshot copies the schedule into detached collections.
func (s Schedule) Snapshot() Schedule {
	return NewSchedule(s.Periods.All(), s.Custom.All(), s.Overtimes.All())
}

// RefreshEvent is the payload of events.TypeRefresh.
type RefreshEvent struct {
	ResourceID int64
	Range      daterange.DateRange
	// All is set when the whole downtime set was reset.
	All bool
}

type generation struct {
	periods, custom, overtimes, downtimes uint64
}

type minutesKey struct {
	dates daterange.Key
	time  timerange.TimeRange
}

// Manager answers availability questions for one resource. It performs no I/O.
// Memoised results are dropped whenever any source collection changes.
type Manager struct {
	resource  model.Resource
	schedule  Schedule
	downtimes *downtime.Collection
	bus       *events.EventBus

	mu         sync.Mutex
	gen        generation
	minutes    map[minutesKey]int
	maxMinutes map[daterange.Key]int
}

// NewManager binds a manager to a resource. When bus is non-nil the manager
// publishes events.TypeRefresh for every downtime mutation affecting the resource.
func NewManager(resource model.Resource, schedule Schedule, downtimes *downtime.Collection, bus *events.EventBus) *Manager {
	m := &Manager{
		resource:   resource,
		schedule:   schedule,
		downtimes:  downtimes,
		bus:        bus,
		minutes:    make(map[minutesKey]int),
		maxMinutes: make(map[daterange.Key]int),
	}
	m.gen = m.currentGeneration()
	bus.SubscribeAll(downtime.Topic, m.onDowntimeEvent)
	return m
}

func (m *Manager) Resource() model.Resource {
	return m.resource
}

func (m *Manager) currentGeneration() generation {
	return generation{
		periods:   m.schedule.Periods.Version(),
		custom:    m.schedule.Custom.Version(),
		overtimes: m.schedule.Overtimes.Version(),
		downtimes: m.downtimes.Version(),
	}
}

// fresh drops memoised values when a source changed. Callers hold m.mu.
func (m *Manager) fresh() {
	if g := m.currentGeneration(); g != m.gen {
		m.gen = g
		clear(m.minutes)
		clear(m.maxMinutes)
	}
}

// Downtimes lists the resource's downtimes expressed in the resource's zone.
func (m *Manager) Downtimes() []downtime.Shifted {
	all := m.downtimes.ForResource(m.resource.ID)
	out := make([]downtime.Shifted, 0, len(all))
	for _, d := range all {
		out = append(out, d.InTimeZone(m.resource.Zone))
	}
	return out
}

// PeriodsForDate returns the custom periods of date when there are any, else
// the weekly periods that apply, else the backfilled periods when the resource
// has no schedule valid on date at all.
func (m *Manager) PeriodsForDate(date time.Time) []model.Period {
	custom := m.schedule.Custom.Filter(func(p model.CustomAvailablePeriod) bool { return p.On(date) })
	if len(custom) > 0 {
		return asPeriods(custom)
	}

	all := m.schedule.Periods.All()
	applying := filter(all, func(p model.AvailablePeriod) bool { return p.AppliesTo(date) })
	if len(applying) > 0 {
		return asPeriods(applying)
	}
	if !anyValidOn(all, date) {
		return asPeriods(backfilledPeriods(all, date))
	}
	return nil
}

// IntersectsWithDowntime reports whether any downtime overlaps tr on date.
func (m *Manager) IntersectsWithDowntime(date time.Time, tr timerange.TimeRange) bool {
	for _, s := range m.Downtimes() {
		if s.TimeRange(date).OverlapsWith(tr) {
			return true
		}
	}
	return false
}

// MinutesAvailableForDate is MinutesAvailableInDateRange for one day.
// A nil tr means the whole day.
func (m *Manager) MinutesAvailableForDate(date time.Time, tr *timerange.TimeRange) int {
	return m.MinutesAvailableInDateRange(daterange.Single(date), tr)
}

// MinutesAvailableInDateRange sums, over every date, the period minutes left
// once downtime is removed, plus overtime on whole-day queries.
func (m *Manager) MinutesAvailableInDateRange(dr daterange.DateRange, tr *timerange.TimeRange) int {
	key := minutesKey{dates: dr.Key(), time: window(tr)}

	m.mu.Lock()
	m.fresh()
	if v, ok := m.minutes[key]; ok {
		m.mu.Unlock()
		return v
	}
	m.mu.Unlock()

	shifted := m.Downtimes()
	overtimes := m.schedule.Overtimes.All()

	total := 0
	for _, date := range dr.Dates() {
		periods, blocked := m.aggregate(date, tr, shifted)
		for _, p := range periods {
			overlapping := overlapsOf(p, blocked)
			switch len(overlapping) {
			case 0:
				total += p.TotalTime()
			case 1:
				total += p.Subtract(overlapping[0])
			default:
				total += timerange.Total(p.SubtractAll(overlapping))
			}
		}
		if tr == nil && !coversDay(blocked) {
			total += overtimeOn(overtimes, date)
		}
	}

	m.mu.Lock()
	m.minutes[key] = total
	m.mu.Unlock()
	return total
}

// AvailableTimeRangesInDateRange collects the free sub-ranges of every date.
func (m *Manager) AvailableTimeRangesInDateRange(dr daterange.DateRange, tr *timerange.TimeRange) []timerange.TimeRange {
	shifted := m.Downtimes()

	var out []timerange.TimeRange
	for _, date := range dr.Dates() {
		periods, blocked := m.aggregate(date, tr, shifted)
		for _, p := range periods {
			for _, piece := range p.SubtractAll(overlapsOf(p, blocked)) {
				if !piece.IsEmpty() {
					out = append(out, piece)
				}
			}
		}
	}
	return out
}

// IsAvailableIn reports free minutes in the range, or that the range precedes
// all schedule data and the backfilled schedule has time in it.
func (m *Manager) IsAvailableIn(dr daterange.DateRange, tr *timerange.TimeRange) bool {
	return m.MinutesAvailableInDateRange(dr, tr) > 0 || m.inEarliestNormalAvailability(dr, tr)
}

// aggregate returns the merged period ranges and merged downtime ranges of date,
// both clipped to tr.
func (m *Manager) aggregate(date time.Time, tr *timerange.TimeRange, shifted []downtime.Shifted) (periods, blocked []timerange.TimeRange) {
	for _, p := range m.PeriodsForDate(date) {
		if r, ok := clip(p.TimeRange(), tr); ok {
			periods = append(periods, r)
		}
	}
	for _, s := range shifted {
		r := s.TimeRange(date)
		if r.IsEmpty() {
			continue
		}
		if r, ok := clip(r, tr); ok {
			blocked = append(blocked, r)
		}
	}
	return timerange.MergeAll(periods), timerange.MergeAll(blocked)
}

func clip(r timerange.TimeRange, tr *timerange.TimeRange) (timerange.TimeRange, bool) {
	if tr == nil {
		return r, !r.IsEmpty()
	}
	return r.Intersect(*tr)
}

func window(tr *timerange.TimeRange) timerange.TimeRange {
	if tr == nil {
		return timerange.FullDay
	}
	return *tr
}

func overlapsOf(p timerange.TimeRange, blocked []timerange.TimeRange) []timerange.TimeRange {
	var out []timerange.TimeRange
	for _, b := range blocked {
		if p.OverlapsWith(b) {
			out = append(out, b)
		}
	}
	return out
}

func coversDay(blocked []timerange.TimeRange) bool {
	for _, b := range blocked {
		if b.Contains(timerange.FullDay) {
			return true
		}
	}
	return false
}

func overtimeOn(overtimes []model.Overtime, date time.Time) int {
	total := 0
	for _, o := range overtimes {
		if o.On(date) {
			total += o.Duration
		}
	}
	return total
}

func (m *Manager) onDowntimeEvent(e events.Event) error {
	var ranges []daterange.DateRange
	all := false

	switch e.Kind {
	case events.KindReset:
		all = true
	default:
		if d, ok := e.Payload.(*downtime.Downtime); ok && d.HasResource(m.resource.ID) {
			ranges = append(ranges, d.InTimeZone(m.resource.Zone).DateRange())
		}
		if prev, ok := e.Previous.(*downtime.Downtime); ok && prev.HasResource(m.resource.ID) {
			ranges = append(ranges, prev.InTimeZone(m.resource.Zone).DateRange())
		}
	}

	m.mu.Lock()
	m.fresh()
	m.mu.Unlock()

	if all {
		return m.bus.Publish(events.Event{Type: events.TypeRefresh, Payload: RefreshEvent{ResourceID: m.resource.ID, All: true}})
	}
	for _, r := range ranges {
		if err := m.bus.Publish(events.Event{Type: events.TypeRefresh, Payload: RefreshEvent{ResourceID: m.resource.ID, Range: r}}); err != nil {
			return err
		}
	}
	return nil
}

func asPeriods[P model.Period](in []P) []model.Period {
	out := make([]model.Period, 0, len(in))
	for _, p := range in {
		out = append(out, p)
	}
	return out
}

func filter[T any](in []T, keep func(T) bool) []T {
	var out []T
	for _, it := range in {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
