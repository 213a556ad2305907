package availability

import (
	"sort"
	"time"

	"planboard/internal/daterange"
	"planboard/internal/model"
	"planboard/internal/timerange"
)

// backfilledPeriods guesses the schedule of a date that precedes all schedule
// data. Candidates start after date. When any candidate carries a ValidUntil,
// only those sharing the earliest ValidFrom are considered; otherwise every
// candidate is. Either way the weekday must match.
func backfilledPeriods(periods []model.AvailablePeriod, date time.Time) []model.AvailablePeriod {
	day := daterange.Day(date)

	candidates := filter(periods, func(p model.AvailablePeriod) bool {
		return daterange.Day(p.ValidFrom).After(day)
	})
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ValidFrom.Before(candidates[j].ValidFrom)
	})

	hasHistory := false
	for _, p := range candidates {
		if p.ValidUntil != nil {
			hasHistory = true
			break
		}
	}

	earliest := daterange.Day(candidates[0].ValidFrom)
	return filter(candidates, func(p model.AvailablePeriod) bool {
		if p.WeekDay != day.Weekday() {
			return false
		}
		return !hasHistory || daterange.Day(p.ValidFrom).Equal(earliest)
	})
}

func anyValidOn(periods []model.AvailablePeriod, date time.Time) bool {
	for _, p := range periods {
		if p.ValidOn(date) {
			return true
		}
	}
	return false
}

// hasNormalSchedule reports whether any weekly period is valid on some date of dr.
func (m *Manager) hasNormalSchedule(dr daterange.DateRange) bool {
	periods := m.schedule.Periods.All()
	for _, date := range dr.Dates() {
		if anyValidOn(periods, date) {
			return true
		}
	}
	return false
}

// backfilledMinutes sums the backfilled period minutes of every date in dr,
// clipped to tr. Downtime is not applied.
func (m *Manager) backfilledMinutes(dr daterange.DateRange, tr *timerange.TimeRange) int {
	periods := m.schedule.Periods.All()
	total := 0
	for _, date := range dr.Dates() {
		var ranges []timerange.TimeRange
		for _, p := range backfilledPeriods(periods, date) {
			if r, ok := clip(p.TimeRange(), tr); ok {
				ranges = append(ranges, r)
			}
		}
		total += timerange.Total(timerange.MergeAll(ranges))
	}
	return total
}

func (m *Manager) inEarliestNormalAvailability(dr daterange.DateRange, tr *timerange.TimeRange) bool {
	return !m.hasNormalSchedule(dr) && m.backfilledMinutes(dr, tr) > 0
}

// MaxMinutesInUnit is the scheduled capacity of dr before downtime: custom or
// weekly period minutes plus overtime, or the backfilled minutes when no
// weekly period is valid anywhere in dr, whichever is larger.
func (m *Manager) MaxMinutesInUnit(dr daterange.DateRange, memoize bool) int {
	key := dr.Key()
	if memoize {
		m.mu.Lock()
		m.fresh()
		v, ok := m.maxMinutes[key]
		m.mu.Unlock()
		if ok {
			return v
		}
	}

	overtimes := m.schedule.Overtimes.All()
	scheduled := 0
	for _, date := range dr.Dates() {
		custom := m.schedule.Custom.Filter(func(p model.CustomAvailablePeriod) bool { return p.On(date) })
		if len(custom) > 0 {
			scheduled += timerange.Total(timerange.MergeAll(model.TimeRanges(custom)))
		} else {
			weekly := m.schedule.Periods.Filter(func(p model.AvailablePeriod) bool { return p.AppliesTo(date) })
			scheduled += timerange.Total(timerange.MergeAll(model.TimeRanges(weekly)))
		}
		scheduled += overtimeOn(overtimes, date)
	}

	backfilled := 0
	if !m.hasNormalSchedule(dr) {
		backfilled = m.backfilledMinutes(dr, nil)
	}

	v := max(scheduled, backfilled)
	if memoize {
		m.mu.Lock()
		m.maxMinutes[key] = v
		m.mu.Unlock()
	}
	return v
}
