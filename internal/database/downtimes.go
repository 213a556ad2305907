package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/model"
	"planboard/internal/timerange"
	"planboard/internal/zone"
)

func timerangeOf(start, end int64) (timerange.TimeRange, error) {
	return timerange.New(int(start), int(end))
}

// CreateDowntime stores d, applies resolution to clashes in the same
// transaction and returns the stored copy with its id.
func (db *DB) CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution clash.Resolution, clashes []model.Clash) (*downtime.Downtime, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := insertDowntime(ctx, tx, d)
	if err != nil {
		return nil, err
	}
	if len(clashes) > 0 {
		if err := applyResolution(ctx, tx, clashes, resolution); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	db.logger.Info().Int64("downtime_id", created.ID).Str("resolution", string(resolution)).Int("clashes", len(clashes)).Msg("Downtime stored")
	return created, nil
}

// UpdateDowntime overwrites the stored attributes and resources of d.
func (db *DB) UpdateDowntime(ctx context.Context, d *downtime.Downtime) error {
	if err := d.Validate(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateDowntime(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit()
}

// SplitDowntime shortens kept, an existing downtime, and stores added as a
// new one in a single transaction. Nothing is written unless both are valid.
func (db *DB) SplitDowntime(ctx context.Context, kept, added *downtime.Downtime) (*downtime.Downtime, error) {
	if err := kept.Validate(); err != nil {
		return nil, err
	}
	if err := added.Validate(); err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateDowntime(ctx, tx, kept); err != nil {
		return nil, err
	}
	created, err := insertDowntime(ctx, tx, added)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	db.logger.Info().Int64("downtime_id", kept.ID).Int64("split_id", created.ID).Msg("Downtime split")
	return created, nil
}

func insertDowntime(ctx context.Context, q queryer, d *downtime.Downtime) (*downtime.Downtime, error) {
	created := d.Clone()
	created.UpdatedAt = time.Now().UTC()
	res, err := q.ExecContext(ctx,
		`INSERT INTO downtimes (from_date, to_date, start_time, end_time, time_zone, utc_offset, type_id, creator_id, details, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		day(d.From), day(d.To), d.StartTime, d.EndTime, d.Zone.Name, d.Zone.Offset, d.TypeID, d.CreatorID, d.Details, created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert downtime: %w", err)
	}
	if created.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	if err := setDowntimeResources(ctx, q, created.ID, created.ResourceIDs); err != nil {
		return nil, err
	}
	return created, nil
}

func updateDowntime(ctx context.Context, q queryer, d *downtime.Downtime) error {
	res, err := q.ExecContext(ctx,
		`UPDATE downtimes SET from_date = ?, to_date = ?, start_time = ?, end_time = ?, time_zone = ?, utc_offset = ?,
		 type_id = ?, creator_id = ?, details = ?, updated_at = ? WHERE id = ?`,
		day(d.From), day(d.To), d.StartTime, d.EndTime, d.Zone.Name, d.Zone.Offset, d.TypeID, d.CreatorID, d.Details, time.Now().UTC(), d.ID)
	if err != nil {
		return fmt.Errorf("update downtime: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: downtime %d", ErrNotFound, d.ID)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM downtime_resources WHERE downtime_id = ?`, d.ID); err != nil {
		return fmt.Errorf("clear downtime resources: %w", err)
	}
	return setDowntimeResources(ctx, q, d.ID, d.ResourceIDs)
}

func (db *DB) DeleteDowntime(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM downtimes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete downtime: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: downtime %d", ErrNotFound, id)
	}
	return nil
}

func setDowntimeResources(ctx context.Context, q queryer, id int64, resourceIDs []int64) error {
	for _, rid := range resourceIDs {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO downtime_resources (downtime_id, resource_id) VALUES (?, ?)`, id, rid); err != nil {
			return fmt.Errorf("link downtime %d to resource %d: %w", id, rid, err)
		}
	}
	return nil
}

// GetDowntime loads one downtime.
func (db *DB) GetDowntime(ctx context.Context, id int64) (*downtime.Downtime, error) {
	found, err := db.queryDowntimes(ctx, `WHERE d.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: downtime %d", ErrNotFound, id)
	}
	return found[0], nil
}

// ListDowntimes returns the downtimes of a resource touching window.
func (db *DB) ListDowntimes(ctx context.Context, resourceID int64, window daterange.DateRange) ([]*downtime.Downtime, error) {
	return db.queryDowntimes(ctx,
		`WHERE d.id IN (SELECT downtime_id FROM downtime_resources WHERE resource_id = ?) AND d.from_date <= ? AND d.to_date >= ?`,
		resourceID, day(window.End), day(window.Start))
}

func (db *DB) queryDowntimes(ctx context.Context, where string, args ...any) ([]*downtime.Downtime, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT d.id, d.from_date, d.to_date, d.start_time, d.end_time, d.time_zone, d.utc_offset,
		       d.type_id, d.creator_id, d.details, d.updated_at, GROUP_CONCAT(r.resource_id)
		FROM downtimes d LEFT JOIN downtime_resources r ON r.downtime_id = d.id
		`+where+`
		GROUP BY d.id ORDER BY d.from_date, d.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("select downtimes: %w", err)
	}
	defer rows.Close()

	var out []*downtime.Downtime
	for rows.Next() {
		var (
			d              downtime.Downtime
			from, to, name string
			offset         int
			resources      sql.NullString
		)
		if err := rows.Scan(&d.ID, &from, &to, &d.StartTime, &d.EndTime, &name, &offset,
			&d.TypeID, &d.CreatorID, &d.Details, &d.UpdatedAt, &resources); err != nil {
			return nil, err
		}
		if d.From, err = daterange.ParseDate(from); err != nil {
			return nil, err
		}
		if d.To, err = daterange.ParseDate(to); err != nil {
			return nil, err
		}
		if name != "" {
			d.Zone = zone.Fixed(name, offset)
		}
		if d.ResourceIDs, err = parseIDs(resources.String); err != nil {
			return nil, fmt.Errorf("downtime %d resources: %w", d.ID, err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func parseIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
