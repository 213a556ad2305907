package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/dataset"
	"planboard/internal/model"
	"planboard/internal/zone"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func day(t time.Time) string {
	return daterange.Day(t).Format(daterange.Layout)
}

// CreateResource stores a resource; zoneName is an IANA name or empty for local time.
func (db *DB) CreateResource(ctx context.Context, name, zoneName string) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO resources (name, time_zone) VALUES (?, ?)`, name, zoneName)
	if err != nil {
		return 0, fmt.Errorf("insert resource: %w", err)
	}
	return res.LastInsertId()
}

// UpsertResource stores a resource under a fixed id.
func (db *DB) UpsertResource(ctx context.Context, id int64, name, zoneName string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO resources (id, name, time_zone) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, time_zone = excluded.time_zone`,
		id, name, zoneName)
	if err != nil {
		return fmt.Errorf("upsert resource %d: %w", id, err)
	}
	return nil
}

// ReplaceAvailablePeriods makes periods the resource's open weekly schedule.
// Open periods that reappear unchanged are left alone. The others are closed
// the day before the new schedule takes effect on their weekday, and dropped
// when they would never have applied. With no new periods the old ones close
// yesterday.
func (db *DB) ReplaceAvailablePeriods(ctx context.Context, resourceID int64, periods []model.AvailablePeriod) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	open, err := openAvailablePeriods(ctx, tx, resourceID)
	if err != nil {
		return err
	}

	kept := make(map[int64]bool, len(open))
	var added []model.AvailablePeriod
	for _, p := range periods {
		i := slices.IndexFunc(open, func(o model.AvailablePeriod) bool {
			return !kept[o.ID] && o.WeekDay == p.WeekDay && o.StartTime == p.StartTime && o.EndTime == p.EndTime
		})
		if i >= 0 {
			kept[open[i].ID] = true
			continue
		}
		added = append(added, p)
	}

	today := daterange.Day(time.Now().UTC())
	for _, o := range open {
		if kept[o.ID] {
			continue
		}
		cutoff := effectiveFrom(added, o.WeekDay, today)
		if !cutoff.After(o.ValidFrom) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM available_periods WHERE id = ?`, o.ID); err != nil {
				return fmt.Errorf("drop available period %d: %w", o.ID, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE available_periods SET valid_until = ? WHERE id = ?`,
			day(cutoff.AddDate(0, 0, -1)), o.ID); err != nil {
			return fmt.Errorf("close available period %d: %w", o.ID, err)
		}
	}

	for _, p := range added {
		if err := insertAvailablePeriod(ctx, tx, resourceID, p); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	db.logger.Debug().Int64("resource_id", resourceID).Int("kept", len(kept)).Int("added", len(added)).Msg("Available periods replaced")
	return nil
}

// effectiveFrom is the first day the added periods govern weekday wd: the
// earliest start among those on wd, else among all of them, else fallback.
func effectiveFrom(added []model.AvailablePeriod, wd time.Weekday, fallback time.Time) time.Time {
	var sameDay, earliest time.Time
	for _, p := range added {
		from := daterange.Day(p.ValidFrom)
		if earliest.IsZero() || from.Before(earliest) {
			earliest = from
		}
		if p.WeekDay == wd && (sameDay.IsZero() || from.Before(sameDay)) {
			sameDay = from
		}
	}
	switch {
	case !sameDay.IsZero():
		return sameDay
	case !earliest.IsZero():
		return earliest
	}
	return fallback
}

func openAvailablePeriods(ctx context.Context, q queryer, resourceID int64) ([]model.AvailablePeriod, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, week_day, start_time, end_time, valid_from FROM available_periods
		 WHERE resource_id = ? AND valid_until IS NULL ORDER BY id`,
		resourceID)
	if err != nil {
		return nil, fmt.Errorf("select open periods: %w", err)
	}
	defer rows.Close()

	var out []model.AvailablePeriod
	for rows.Next() {
		var (
			p    = model.AvailablePeriod{ResourceID: resourceID}
			wd   int
			from string
		)
		if err := rows.Scan(&p.ID, &wd, &p.StartTime, &p.EndTime, &from); err != nil {
			return nil, err
		}
		p.WeekDay = time.Weekday(wd)
		if p.ValidFrom, err = daterange.ParseDate(from); err != nil {
			return nil, fmt.Errorf("period %d valid_from: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Resource loads a resource with its zone offset in effect at the given instant.
func (db *DB) Resource(ctx context.Context, id int64, at time.Time) (model.Resource, error) {
	var name, zoneName string
	err := db.QueryRowContext(ctx, `SELECT name, time_zone FROM resources WHERE id = ?`, id).Scan(&name, &zoneName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, fmt.Errorf("%w: resource %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Resource{}, fmt.Errorf("select resource: %w", err)
	}
	z, err := zone.Load(zoneName, at)
	if err != nil {
		return model.Resource{}, err
	}
	return model.Resource{ID: id, Name: name, Zone: z}, nil
}

// ResourceIDs lists every stored resource.
func (db *DB) ResourceIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM resources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select resources: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) AddAvailablePeriod(ctx context.Context, p model.AvailablePeriod) error {
	return insertAvailablePeriod(ctx, db, p.ResourceID, p)
}

func insertAvailablePeriod(ctx context.Context, q queryer, resourceID int64, p model.AvailablePeriod) error {
	var until any
	if p.ValidUntil != nil {
		until = day(*p.ValidUntil)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO available_periods (resource_id, week_day, start_time, end_time, valid_from, valid_until) VALUES (?, ?, ?, ?, ?, ?)`,
		resourceID, int(p.WeekDay), p.StartTime, p.EndTime, day(p.ValidFrom), until)
	if err != nil {
		return fmt.Errorf("insert available period: %w", err)
	}
	return nil
}

func (db *DB) AddCustomPeriod(ctx context.Context, p model.CustomAvailablePeriod) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO custom_periods (resource_id, date, start_time, end_time) VALUES (?, ?, ?, ?)`,
		p.ResourceID, day(p.Date), p.StartTime, p.EndTime)
	if err != nil {
		return 0, fmt.Errorf("insert custom period: %w", err)
	}
	return res.LastInsertId()
}

// CloseDay replaces the custom periods of date with a single empty one, which
// leaves the resource no available time that day.
func (db *DB) CloseDay(ctx context.Context, resourceID int64, date time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM custom_periods WHERE resource_id = ? AND date = ?`, resourceID, day(date)); err != nil {
		return fmt.Errorf("clear custom periods: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO custom_periods (resource_id, date, start_time, end_time) VALUES (?, ?, 0, 0)`,
		resourceID, day(date)); err != nil {
		return fmt.Errorf("close day: %w", err)
	}
	return tx.Commit()
}

func (db *DB) AddOvertime(ctx context.Context, o model.Overtime) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO overtimes (resource_id, date, duration, creator_id) VALUES (?, ?, ?, ?)`,
		o.ResourceID, day(o.Date), o.Duration, o.CreatorID)
	if err != nil {
		return 0, fmt.Errorf("insert overtime: %w", err)
	}
	return res.LastInsertId()
}

// CreateBooking stores a booking with its spans and returns its id.
func (db *DB) CreateBooking(ctx context.Context, b model.Booking) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO bookings (resource_id, title) VALUES (?, ?)`, b.ResourceID, b.Title)
	if err != nil {
		return 0, fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, span := range b.Durations {
		var start, end, downtimeID any
		if r, ok := span.Fixed(); ok {
			start, end = r.Start, r.End
		}
		if dd, ok := span.(model.DowntimeDuration); ok {
			downtimeID = dd.DowntimeID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_durations (booking_id, date, minutes, start_time, end_time, waiting, downtime_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, day(span.Day()), span.Minutes(), start, end, span.IsWaiting(), downtimeID); err != nil {
			return 0, fmt.Errorf("insert booking duration: %w", err)
		}
	}
	return id, tx.Commit()
}

// LoadSnapshot implements dataset.Loader. The resource's zone offset is the
// one in effect on the first day of window and holds for the whole window.
func (db *DB) LoadSnapshot(ctx context.Context, resourceID int64, window daterange.DateRange) (dataset.Snapshot, error) {
	resource, err := db.Resource(ctx, resourceID, window.Start)
	if err != nil {
		return dataset.Snapshot{}, err
	}
	snap := dataset.Snapshot{Resource: resource}

	if snap.Periods, err = db.availablePeriods(ctx, resourceID); err != nil {
		return dataset.Snapshot{}, err
	}
	from, to := day(window.Start), day(window.End)
	if snap.Custom, err = db.customPeriods(ctx, resourceID, from, to); err != nil {
		return dataset.Snapshot{}, err
	}
	if snap.Overtimes, err = db.overtimes(ctx, resourceID, from, to); err != nil {
		return dataset.Snapshot{}, err
	}
	// zone shifting can move a downtime by a day either way
	padded := daterange.MustNew(window.Start.AddDate(0, 0, -1), window.End.AddDate(0, 0, 1))
	if snap.Downtimes, err = db.ListDowntimes(ctx, resourceID, padded); err != nil {
		return dataset.Snapshot{}, err
	}
	if snap.Bookings, err = db.bookings(ctx, resourceID, from, to); err != nil {
		return dataset.Snapshot{}, err
	}
	return snap, nil
}

func (db *DB) availablePeriods(ctx context.Context, resourceID int64) ([]model.AvailablePeriod, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, week_day, start_time, end_time, valid_from, valid_until FROM available_periods WHERE resource_id = ? ORDER BY id`,
		resourceID)
	if err != nil {
		return nil, fmt.Errorf("select available periods: %w", err)
	}
	defer rows.Close()

	var out []model.AvailablePeriod
	for rows.Next() {
		var (
			p     = model.AvailablePeriod{ResourceID: resourceID}
			wd    int
			from  string
			until sql.NullString
		)
		if err := rows.Scan(&p.ID, &wd, &p.StartTime, &p.EndTime, &from, &until); err != nil {
			return nil, err
		}
		p.WeekDay = time.Weekday(wd)
		if p.ValidFrom, err = daterange.ParseDate(from); err != nil {
			return nil, fmt.Errorf("period %d valid_from: %w", p.ID, err)
		}
		if until.Valid {
			u, err := daterange.ParseDate(until.String)
			if err != nil {
				return nil, fmt.Errorf("period %d valid_until: %w", p.ID, err)
			}
			p.ValidUntil = &u
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) customPeriods(ctx context.Context, resourceID int64, from, to string) ([]model.CustomAvailablePeriod, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, date, start_time, end_time FROM custom_periods WHERE resource_id = ? AND date BETWEEN ? AND ? ORDER BY date, id`,
		resourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select custom periods: %w", err)
	}
	defer rows.Close()

	var out []model.CustomAvailablePeriod
	for rows.Next() {
		p := model.CustomAvailablePeriod{ResourceID: resourceID}
		var date string
		if err := rows.Scan(&p.ID, &date, &p.StartTime, &p.EndTime); err != nil {
			return nil, err
		}
		if p.Date, err = daterange.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) overtimes(ctx context.Context, resourceID int64, from, to string) ([]model.Overtime, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, date, duration, creator_id FROM overtimes WHERE resource_id = ? AND date BETWEEN ? AND ? ORDER BY date, id`,
		resourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select overtimes: %w", err)
	}
	defer rows.Close()

	var out []model.Overtime
	for rows.Next() {
		o := model.Overtime{ResourceID: resourceID}
		var date string
		if err := rows.Scan(&o.ID, &date, &o.Duration, &o.CreatorID); err != nil {
			return nil, err
		}
		if o.Date, err = daterange.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (db *DB) bookings(ctx context.Context, resourceID int64, from, to string) (model.Bookings, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT b.id, b.title, d.date, d.minutes, d.start_time, d.end_time, d.waiting, d.downtime_id
		FROM bookings b JOIN booking_durations d ON d.booking_id = b.id
		WHERE b.resource_id = ? AND d.date BETWEEN ? AND ?
		ORDER BY b.id, d.date, d.id`,
		resourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()

	var out model.Bookings
	for rows.Next() {
		var (
			id               int64
			title, date      string
			minutes          int
			start, end, dtID sql.NullInt64
			waiting          bool
		)
		if err := rows.Scan(&id, &title, &date, &minutes, &start, &end, &waiting, &dtID); err != nil {
			return nil, err
		}
		d, err := daterange.ParseDate(date)
		if err != nil {
			return nil, err
		}

		var span model.Span = model.Duration{Date: d, Length: minutes, Waiting: waiting}
		if start.Valid && end.Valid {
			r, err := timerangeOf(start.Int64, end.Int64)
			if err != nil {
				return nil, fmt.Errorf("booking %d: %w", id, err)
			}
			span = model.FixedDuration{Date: d, Range: r, Waiting: waiting}
			if dtID.Valid {
				span = model.DowntimeDuration{DowntimeID: dtID.Int64, Date: d, Range: r}
			}
		}

		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, model.Booking{ID: id, ResourceID: resourceID, Title: title})
		}
		last := &out[len(out)-1]
		last.Durations = append(last.Durations, span)
	}
	return out, rows.Err()
}

// applyResolution moves clashing booking days to the waiting list or deletes them.
func applyResolution(ctx context.Context, q queryer, clashes []model.Clash, resolution clash.Resolution) error {
	for _, c := range clashes {
		var err error
		switch resolution {
		case clash.ResolutionWaitingList:
			_, err = q.ExecContext(ctx, `UPDATE booking_durations SET waiting = 1 WHERE booking_id = ? AND date = ?`, c.BookingID, day(c.Date))
		case clash.ResolutionDelete:
			_, err = q.ExecContext(ctx, `DELETE FROM booking_durations WHERE booking_id = ? AND date = ?`, c.BookingID, day(c.Date))
		default:
			return fmt.Errorf("resolution %q with %d clashes", resolution, len(clashes))
		}
		if err != nil {
			return fmt.Errorf("apply %s to booking %d: %w", resolution, c.BookingID, err)
		}
	}
	if resolution == clash.ResolutionDelete && len(clashes) > 0 {
		if _, err := q.ExecContext(ctx, `DELETE FROM bookings WHERE id NOT IN (SELECT DISTINCT booking_id FROM booking_durations)`); err != nil {
			return fmt.Errorf("delete empty bookings: %w", err)
		}
	}
	return nil
}
