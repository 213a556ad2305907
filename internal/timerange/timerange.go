// Package timerange implements minute-of-day intervals and their arithmetic.
package timerange

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MinutesPerDay is the upper bound of a minute-of-day value.
const MinutesPerDay = 1440

var (
	ErrInverted    = errors.New("timerange: start after end")
	ErrOutOfBounds = errors.New("timerange: minute outside 0..1440")
)

// TimeRange is the half-open interval [Start, End) in minutes of a day.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FullDay covers the whole day.
var FullDay = TimeRange{Start: 0, End: MinutesPerDay}

// New validates and builds a range.
func New(start, end int) (TimeRange, error) {
	if start < 0 || start > MinutesPerDay || end < 0 || end > MinutesPerDay {
		return TimeRange{}, fmt.Errorf("%w: %d-%d", ErrOutOfBounds, start, end)
	}
	if start > end {
		return TimeRange{}, fmt.Errorf("%w: %d-%d", ErrInverted, start, end)
	}
	return TimeRange{Start: start, End: end}, nil
}

// MustNew is like New but panics on malformed input.
func MustNew(start, end int) TimeRange {
	tr, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return tr
}

// TotalTime returns the length in minutes.
func (t TimeRange) TotalTime() int {
	return t.End - t.Start
}

// IsEmpty reports whether the range has no length.
func (t TimeRange) IsEmpty() bool {
	return t.End <= t.Start
}

// OverlapsWith is strict: ranges that only touch do not overlap.
func (t TimeRange) OverlapsWith(other TimeRange) bool {
	return t.End > other.Start && t.Start < other.End
}

// IsTouching is inclusive and decides merge eligibility.
func (t TimeRange) IsTouching(other TimeRange) bool {
	return t.End >= other.Start && t.Start <= other.End
}

func (t TimeRange) Contains(other TimeRange) bool {
	return t.Start <= other.Start && t.End >= other.End
}

// Intersect returns the common part of both ranges.
func (t TimeRange) Intersect(other TimeRange) (TimeRange, bool) {
	if !t.OverlapsWith(other) {
		return TimeRange{}, false
	}
	return TimeRange{Start: max(t.Start, other.Start), End: min(t.End, other.End)}, true
}

// Merge coalesces t and others into the minimal sorted set of disjoint,
// non-touching ranges covering the same minutes.
func (t TimeRange) Merge(others ...TimeRange) []TimeRange {
	all := make([]TimeRange, 0, len(others)+1)
	all = append(all, t)
	all = append(all, others...)
	return MergeAll(all)
}

// MergeAll is Merge over a plain slice. The input is not modified.
func MergeAll(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]TimeRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Start < sorted[j].Start
	})

	merged := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.IsTouching(r) {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Subtract returns how many minutes of t remain once other is removed.
func (t TimeRange) Subtract(other TimeRange) int {
	switch {
	case !t.OverlapsWith(other):
		return t.TotalTime()
	case other.Contains(t):
		return 0
	case t.Contains(other):
		return t.TotalTime() - other.TotalTime()
	}
	total := 0
	for _, piece := range t.SubtractOne(other) {
		total += piece.TotalTime()
	}
	return total
}

// SubtractOne removes other from t and returns the 0, 1 or 2 surviving pieces.
// It panics on a configuration outside the five interval cases.
func (t TimeRange) SubtractOne(other TimeRange) []TimeRange {
	switch {
	// disjoint
	case !t.OverlapsWith(other):
		return []TimeRange{t}
	// fully covered
	case other.Start <= t.Start && other.End >= t.End:
		return nil
	// strictly inside
	case other.Start > t.Start && other.End < t.End:
		return []TimeRange{
			{Start: t.Start, End: other.Start},
			{Start: other.End, End: t.End},
		}
	// covers the left edge
	case other.Start <= t.Start && other.End < t.End:
		return []TimeRange{{Start: other.End, End: t.End}}
	// covers the right edge
	case other.Start > t.Start && other.End >= t.End:
		return []TimeRange{{Start: t.Start, End: other.Start}}
	}
	panic(fmt.Sprintf("timerange: cannot subtract %s from %s", other, t))
}

// SubtractAll removes every range in others from t.
func (t TimeRange) SubtractAll(others []TimeRange) []TimeRange {
	pieces := []TimeRange{t}
	for _, o := range others {
		next := make([]TimeRange, 0, len(pieces))
		for _, p := range pieces {
			next = append(next, p.SubtractOne(o)...)
		}
		pieces = next
	}
	return pieces
}

func (t TimeRange) String() string {
	return FormatClock(t.Start) + "-" + FormatClock(t.End)
}

// FormatClock renders minutes of day as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock parses HH:MM into minutes of day. "24:00" is accepted as end of day.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %d", minute)
	}
	m := hour*60 + minute
	if m < 0 || m > MinutesPerDay {
		return 0, fmt.Errorf("%w: %s", ErrOutOfBounds, s)
	}
	return m, nil
}

// Parse reads "HH:MM-HH:MM".
func Parse(s string) (TimeRange, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("invalid range format: %s", s)
	}
	from, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	to, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	return New(from, to)
}

// Total sums the length of ranges.
func Total(ranges []TimeRange) int {
	total := 0
	for _, r := range ranges {
		total += r.TotalTime()
	}
	return total
}
