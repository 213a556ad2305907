package daterange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberOfDays(t *testing.T) {
	day := Date(2024, 6, 10)

	assert.Equal(t, 1, Single(day).NumberOfDays())
	assert.Equal(t, 2, MustNew(day, day.AddDate(0, 0, 1)).NumberOfDays())
	assert.Equal(t, 366, MustNew(Date(2024, 1, 1), Date(2024, 12, 31)).NumberOfDays())
}

func TestNew_Inverted(t *testing.T) {
	_, err := New(Date(2024, 6, 11), Date(2024, 6, 10))
	assert.ErrorIs(t, err, ErrInverted)
	assert.Panics(t, func() { MustNew(Date(2024, 6, 11), Date(2024, 6, 10)) })
}

func TestNew_NormalisesToCalendarDay(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	r, err := New(time.Date(2024, 6, 10, 23, 30, 0, 0, berlin), time.Date(2024, 6, 12, 1, 0, 0, 0, berlin))
	require.NoError(t, err)
	assert.Equal(t, Date(2024, 6, 10), r.Start)
	assert.Equal(t, Date(2024, 6, 12), r.End)
}

func TestDates(t *testing.T) {
	r := MustNew(Date(2024, 2, 27), Date(2024, 3, 1))
	assert.Equal(t, []time.Time{
		Date(2024, 2, 27),
		Date(2024, 2, 28),
		Date(2024, 2, 29),
		Date(2024, 3, 1),
	}, r.Dates())

	// restartable
	assert.Equal(t, r.Dates(), r.Dates())
}

func TestPredicates(t *testing.T) {
	june := MustNew(Date(2024, 6, 1), Date(2024, 6, 30))
	week := MustNew(Date(2024, 6, 10), Date(2024, 6, 16))
	straddle := MustNew(Date(2024, 6, 28), Date(2024, 7, 3))
	july := MustNew(Date(2024, 7, 1), Date(2024, 7, 31))

	assert.True(t, june.Contains(week))
	assert.False(t, june.Contains(straddle))
	assert.True(t, june.OverlapsWith(straddle))
	assert.False(t, june.OverlapsWith(july))
	assert.True(t, june.OverlapsWith(Single(Date(2024, 6, 30))), "inclusive end")

	assert.True(t, june.Includes(time.Date(2024, 6, 30, 23, 59, 0, 0, time.UTC)))
	assert.False(t, june.Includes(Date(2024, 7, 1)))
}

func TestCoversYear(t *testing.T) {
	r := MustNew(Date(2023, 12, 30), Date(2025, 1, 2))
	assert.True(t, r.CoversYear(2023))
	assert.True(t, r.CoversYear(2024))
	assert.True(t, r.CoversYear(2025))
	assert.False(t, r.CoversYear(2026))
}

func TestKey(t *testing.T) {
	a := MustNew(Date(2024, 6, 10), Date(2024, 6, 14))
	b := MustNew(time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC), Date(2024, 6, 14))

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), Single(Date(2024, 6, 10)).Key())
	assert.Equal(t, "2024-06-10..2024-06-14", a.String())
}
