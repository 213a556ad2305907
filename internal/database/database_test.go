package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/model"
	"planboard/internal/timerange"
	"planboard/internal/zone"
)

var (
	monday  = daterange.Date(2024, 6, 10)
	tuesday = daterange.Date(2024, 6, 11)
	friday  = daterange.Date(2024, 6, 14)
	week    = daterange.MustNew(monday, friday)
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(MemoryPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedResource(t *testing.T, db *DB) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := db.CreateResource(ctx, "Room A", "Europe/Berlin")
	require.NoError(t, err)

	until := daterange.Date(2024, 12, 31)
	for wd := time.Monday; wd <= time.Friday; wd++ {
		p := model.AvailablePeriod{ResourceID: id, WeekDay: wd, StartTime: 480, EndTime: 1020, ValidFrom: daterange.Date(2024, 1, 1)}
		if wd == time.Friday {
			p.ValidUntil = &until
		}
		require.NoError(t, db.AddAvailablePeriod(ctx, p))
	}
	_, err = db.AddCustomPeriod(ctx, model.CustomAvailablePeriod{ResourceID: id, Date: tuesday, StartTime: 600, EndTime: 720})
	require.NoError(t, err)
	_, err = db.AddCustomPeriod(ctx, model.CustomAvailablePeriod{ResourceID: id, Date: daterange.Date(2024, 7, 1), StartTime: 600, EndTime: 720})
	require.NoError(t, err)
	_, err = db.AddOvertime(ctx, model.Overtime{ResourceID: id, Date: monday, Duration: 45, CreatorID: 3})
	require.NoError(t, err)
	return id
}

func TestNewDB_CreatesTables(t *testing.T) {
	db := newTestDB(t)

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN
		('resources', 'available_periods', 'custom_periods', 'overtimes', 'downtimes', 'downtime_resources', 'bookings', 'booking_durations')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 8, count)
}

func TestLoadSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedResource(t, db)

	_, err := db.CreateBooking(ctx, model.Booking{ResourceID: id, Title: "checkup", Durations: []model.Span{
		model.FixedDuration{Date: monday, Range: timerange.MustNew(540, 600)},
		model.Duration{Date: tuesday, Length: 30, Waiting: true},
		model.Duration{Date: daterange.Date(2024, 7, 2), Length: 30},
	}})
	require.NoError(t, err)

	snap, err := db.LoadSnapshot(ctx, id, week)
	require.NoError(t, err)

	assert.Equal(t, "Room A", snap.Resource.Name)
	assert.Equal(t, zone.Fixed("Europe/Berlin", 120), snap.Resource.Zone, "summer offset")
	require.Len(t, snap.Periods, 5)
	require.NotNil(t, snap.Periods[4].ValidUntil)
	assert.Len(t, snap.Custom, 1, "only inside the window")
	require.Len(t, snap.Overtimes, 1)
	assert.Equal(t, 45, snap.Overtimes[0].Duration)

	require.Len(t, snap.Bookings, 1)
	spans := snap.Bookings[0].Durations
	require.Len(t, spans, 2)
	r, fixed := spans[0].Fixed()
	assert.True(t, fixed)
	assert.Equal(t, timerange.MustNew(540, 600), r)
	assert.True(t, spans[1].IsWaiting())

	_, err = db.LoadSnapshot(ctx, 999, week)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDowntimeLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := seedResource(t, db)
	b, err := db.CreateResource(ctx, "Room B", "")
	require.NoError(t, err)

	d := &downtime.Downtime{
		ResourceIDs: []int64{b, a},
		From:        monday,
		To:          tuesday,
		StartTime:   600,
		EndTime:     660,
		Zone:        zone.Fixed("Europe/London", 60),
		Details:     "renovation",
	}
	created, err := db.CreateDowntime(ctx, d, clash.ResolutionNone, nil)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Zero(t, d.ID, "input untouched")

	got, err := db.GetDowntime(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, got.ResourceIDs)
	assert.Equal(t, monday, got.From)
	assert.Equal(t, zone.Fixed("Europe/London", 60), got.Zone)
	assert.Equal(t, "renovation", got.Details)

	got.RemoveResource(b)
	got.EndTime = 720
	require.NoError(t, db.UpdateDowntime(ctx, got))

	listed, err := db.ListDowntimes(ctx, a, week)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 720, listed[0].EndTime)

	listed, err = db.ListDowntimes(ctx, b, week)
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = db.ListDowntimes(ctx, a, daterange.Single(daterange.Date(2024, 6, 20)))
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, db.DeleteDowntime(ctx, got.ID))
	assert.ErrorIs(t, db.DeleteDowntime(ctx, got.ID), ErrNotFound)
	_, err = db.GetDowntime(ctx, got.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDowntime_Invalid(t *testing.T) {
	db := newTestDB(t)
	_, err := db.CreateDowntime(context.Background(), &downtime.Downtime{From: tuesday, To: monday, ResourceIDs: []int64{1}}, clash.ResolutionNone, nil)
	assert.ErrorIs(t, err, downtime.ErrInvalid)
}

func TestCreateDowntime_AppliesResolution(t *testing.T) {
	tests := []struct {
		resolution   clash.Resolution
		wantSpans    int
		wantWaiting  bool
		wantBookings int
	}{
		{clash.ResolutionWaitingList, 1, true, 1},
		{clash.ResolutionDelete, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.resolution), func(t *testing.T) {
			db := newTestDB(t)
			ctx := context.Background()
			id := seedResource(t, db)

			bookingID, err := db.CreateBooking(ctx, model.Booking{ResourceID: id, Title: "x", Durations: []model.Span{
				model.Duration{Date: monday, Length: 120},
			}})
			require.NoError(t, err)

			d := &downtime.Downtime{ResourceIDs: []int64{id}, From: monday, To: monday, StartTime: 0, EndTime: 1440}
			clashes := []model.Clash{{BookingID: bookingID, ResourceID: id, Date: monday, Minutes: 120}}
			_, err = db.CreateDowntime(ctx, d, tt.resolution, clashes)
			require.NoError(t, err)

			snap, err := db.LoadSnapshot(ctx, id, week)
			require.NoError(t, err)
			assert.Len(t, snap.Bookings, tt.wantBookings)
			if tt.wantSpans > 0 {
				require.Len(t, snap.Bookings[0].Durations, tt.wantSpans)
				assert.Equal(t, tt.wantWaiting, snap.Bookings[0].Durations[0].IsWaiting())
			}
			assert.Len(t, snap.Downtimes, 1)
		})
	}
}

func TestCreateDowntime_ClashesWithoutResolutionRollBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedResource(t, db)

	d := &downtime.Downtime{ResourceIDs: []int64{id}, From: monday, To: monday, StartTime: 0, EndTime: 60}
	_, err := db.CreateDowntime(ctx, d, clash.ResolutionNone, []model.Clash{{BookingID: 1, Date: monday}})
	require.Error(t, err)

	listed, err := db.ListDowntimes(ctx, id, week)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestUpsertAndReplacePeriods(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertResource(ctx, 5, "Lab", ""))
	require.NoError(t, db.UpsertResource(ctx, 5, "Lab 2", "Europe/Berlin"))
	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, []model.AvailablePeriod{
		{WeekDay: time.Monday, StartTime: 480, EndTime: 720, ValidFrom: monday},
	}))
	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, []model.AvailablePeriod{
		{WeekDay: time.Tuesday, StartTime: 480, EndTime: 600, ValidFrom: monday},
		{WeekDay: time.Wednesday, StartTime: 480, EndTime: 600, ValidFrom: monday},
	}))

	ids, err := db.ResourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)

	snap, err := db.LoadSnapshot(ctx, 5, week)
	require.NoError(t, err)
	assert.Equal(t, "Lab 2", snap.Resource.Name)
	require.Len(t, snap.Periods, 2)
	assert.Equal(t, time.Tuesday, snap.Periods[0].WeekDay)
}

func TestReplaceAvailablePeriods_KeepsHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertResource(ctx, 5, "Lab", ""))

	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, []model.AvailablePeriod{
		{WeekDay: time.Monday, StartTime: 480, EndTime: 720, ValidFrom: daterange.Date(2023, 1, 2)},
		{WeekDay: time.Tuesday, StartTime: 480, EndTime: 720, ValidFrom: daterange.Date(2023, 1, 2)},
	}))
	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, []model.AvailablePeriod{
		{WeekDay: time.Monday, StartTime: 600, EndTime: 900, ValidFrom: monday},
		{WeekDay: time.Tuesday, StartTime: 480, EndTime: 720, ValidFrom: monday},
	}))

	snap, err := db.LoadSnapshot(ctx, 5, week)
	require.NoError(t, err)
	require.Len(t, snap.Periods, 3)

	old := snap.Periods[0]
	assert.Equal(t, time.Monday, old.WeekDay)
	assert.Equal(t, 480, old.StartTime)
	require.NotNil(t, old.ValidUntil)
	assert.Equal(t, daterange.Date(2024, 6, 9), *old.ValidUntil)
	assert.True(t, old.ValidOn(daterange.Date(2023, 3, 6)))

	unchanged := snap.Periods[1]
	assert.Equal(t, time.Tuesday, unchanged.WeekDay)
	assert.Equal(t, daterange.Date(2023, 1, 2), unchanged.ValidFrom)
	assert.Nil(t, unchanged.ValidUntil)

	current := snap.Periods[2]
	assert.Equal(t, 600, current.StartTime)
	assert.Equal(t, monday, current.ValidFrom)
	assert.Nil(t, current.ValidUntil)
}

func TestReplaceAvailablePeriods_SameScheduleIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertResource(ctx, 5, "Lab", ""))

	periods := []model.AvailablePeriod{
		{WeekDay: time.Monday, StartTime: 480, EndTime: 720, ValidFrom: monday},
		{WeekDay: time.Monday, StartTime: 780, EndTime: 1020, ValidFrom: monday},
	}
	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, periods))
	before, err := db.LoadSnapshot(ctx, 5, week)
	require.NoError(t, err)

	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, periods))
	after, err := db.LoadSnapshot(ctx, 5, week)
	require.NoError(t, err)
	assert.Equal(t, before.Periods, after.Periods)
}

func TestReplaceAvailablePeriods_EmptyClosesYesterday(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertResource(ctx, 5, "Lab", ""))

	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, []model.AvailablePeriod{
		{WeekDay: time.Monday, StartTime: 480, EndTime: 720, ValidFrom: daterange.Date(2023, 1, 2)},
	}))
	require.NoError(t, db.ReplaceAvailablePeriods(ctx, 5, nil))

	snap, err := db.LoadSnapshot(ctx, 5, week)
	require.NoError(t, err)
	require.Len(t, snap.Periods, 1)
	require.NotNil(t, snap.Periods[0].ValidUntil)
	assert.Equal(t, daterange.Day(time.Now().UTC()).AddDate(0, 0, -1), *snap.Periods[0].ValidUntil)
}

func TestSplitDowntime(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedResource(t, db)

	d := &downtime.Downtime{ResourceIDs: []int64{id}, From: monday, To: friday, StartTime: 600, EndTime: 660}
	stored, err := db.CreateDowntime(ctx, d, clash.ResolutionNone, nil)
	require.NoError(t, err)

	pieces, err := stored.RemoveDate(daterange.Date(2024, 6, 12))
	require.NoError(t, err)
	require.Len(t, pieces, 2)

	added, err := db.SplitDowntime(ctx, pieces[0], pieces[1])
	require.NoError(t, err)
	assert.NotEqual(t, stored.ID, added.ID)

	listed, err := db.ListDowntimes(ctx, id, week)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, tuesday, listed[0].To)
	assert.Equal(t, 1440, listed[0].EndTime)
	assert.Equal(t, daterange.Date(2024, 6, 13), listed[1].From)
	assert.Equal(t, 0, listed[1].StartTime)
}

func TestSplitDowntime_InvalidWritesNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedResource(t, db)

	d := &downtime.Downtime{ResourceIDs: []int64{id}, From: monday, To: friday, StartTime: 600, EndTime: 660}
	stored, err := db.CreateDowntime(ctx, d, clash.ResolutionNone, nil)
	require.NoError(t, err)

	kept := stored.Clone()
	kept.To = monday
	kept.EndTime = 1440
	empty := stored.Clone()
	empty.ID = 0
	empty.From, empty.To = friday, friday
	empty.StartTime, empty.EndTime = 0, 0

	_, err = db.SplitDowntime(ctx, kept, empty)
	assert.ErrorIs(t, err, downtime.ErrInvalid)

	got, err := db.GetDowntime(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, friday, got.To)
	assert.Equal(t, 660, got.EndTime)
}

func TestCloseDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedResource(t, db)

	// tuesday already has a custom period; closing twice leaves one empty period
	require.NoError(t, db.CloseDay(ctx, id, tuesday))
	require.NoError(t, db.CloseDay(ctx, id, tuesday))

	snap, err := db.LoadSnapshot(ctx, id, week)
	require.NoError(t, err)
	require.Len(t, snap.Custom, 1)
	assert.Equal(t, tuesday, snap.Custom[0].Date)
	assert.Equal(t, 0, snap.Custom[0].StartTime)
	assert.Equal(t, 0, snap.Custom[0].EndTime)
}

func TestPoolFor(t *testing.T) {
	mem := poolFor(MemoryPath)
	assert.Equal(t, 1, mem.maxOpen)
	assert.Equal(t, 1, mem.maxIdle)
	assert.Zero(t, mem.lifetime, "the in-memory connection must never be recycled")

	file := poolFor("data/planboard.db")
	assert.Equal(t, 10, file.maxOpen)
	assert.Equal(t, time.Hour, file.lifetime)
}

func TestLoadSnapshot_OffsetAtWindowStart(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id, err := db.CreateResource(ctx, "Room A", "Europe/Berlin")
	require.NoError(t, err)

	// Berlin leaves summer time on 2024-10-27
	window := daterange.MustNew(daterange.Date(2024, 10, 21), daterange.Date(2024, 11, 3))
	snap, err := db.LoadSnapshot(ctx, id, window)
	require.NoError(t, err)
	assert.Equal(t, zone.Fixed("Europe/Berlin", 120), snap.Resource.Zone)

	snap, err = db.LoadSnapshot(ctx, id, daterange.Single(daterange.Date(2024, 11, 3)))
	require.NoError(t, err)
	assert.Equal(t, zone.Fixed("Europe/Berlin", 60), snap.Resource.Zone)
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(dir, "planboard.db"), &logger)
	require.NoError(t, err)
	defer db.Close()
	seedResource(t, db)

	svc := NewBackupService(db, BackupConfig{Enabled: true, StoragePath: filepath.Join(dir, "backups"), RetentionDays: 1}, &logger)
	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	copyDB, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer copyDB.Close()
	ids, err := copyDB.ResourceIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	old := time.Now().AddDate(0, 0, -3)
	require.NoError(t, os.Chtimes(path, old, old))
	svc.CleanupOldBackups()
	assert.NoFileExists(t, path)
}
