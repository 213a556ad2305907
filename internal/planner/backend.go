package planner

import (
	"context"
	"errors"
	"fmt"

	"planboard/internal/api"
	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/dataset"
	"planboard/internal/database"
	"planboard/internal/downtime"
	"planboard/internal/model"
)

// Backend is where schedules are read from and downtimes written to.
type Backend interface {
	dataset.Loader
	// CreateDowntime stores d and applies resolution to clashes atomically.
	CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution clash.Resolution, clashes []model.Clash) (*downtime.Downtime, error)
	UpdateDowntime(ctx context.Context, d *downtime.Downtime) error
	DeleteDowntime(ctx context.Context, d *downtime.Downtime) error
	// SplitDowntime shortens kept and stores added as a new downtime. Either
	// both writes land or neither does.
	SplitDowntime(ctx context.Context, kept, added *downtime.Downtime) (*downtime.Downtime, error)
}

type databaseBackend struct {
	db *database.DB
}

// DatabaseBackend serves a Service from the local SQLite store.
func DatabaseBackend(db *database.DB) Backend {
	return databaseBackend{db: db}
}

func (b databaseBackend) LoadSnapshot(ctx context.Context, resourceID int64, window daterange.DateRange) (dataset.Snapshot, error) {
	return b.db.LoadSnapshot(ctx, resourceID, window)
}

func (b databaseBackend) CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution clash.Resolution, clashes []model.Clash) (*downtime.Downtime, error) {
	return b.db.CreateDowntime(ctx, d, resolution, clashes)
}

func (b databaseBackend) UpdateDowntime(ctx context.Context, d *downtime.Downtime) error {
	return b.db.UpdateDowntime(ctx, d)
}

func (b databaseBackend) DeleteDowntime(ctx context.Context, d *downtime.Downtime) error {
	return b.db.DeleteDowntime(ctx, d.ID)
}

func (b databaseBackend) SplitDowntime(ctx context.Context, kept, added *downtime.Downtime) (*downtime.Downtime, error) {
	return b.db.SplitDowntime(ctx, kept, added)
}

type apiBackend struct {
	client *api.Client
}

// APIBackend serves a Service from the remote planning API. The server
// resolves clashes itself, so the clash list is not sent.
func APIBackend(client *api.Client) Backend {
	return apiBackend{client: client}
}

func (b apiBackend) LoadSnapshot(ctx context.Context, resourceID int64, window daterange.DateRange) (dataset.Snapshot, error) {
	return b.client.LoadSnapshot(ctx, resourceID, window)
}

func (b apiBackend) CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution clash.Resolution, _ []model.Clash) (*downtime.Downtime, error) {
	return b.client.CreateDowntime(ctx, d, resolution)
}

func (b apiBackend) UpdateDowntime(ctx context.Context, d *downtime.Downtime) error {
	_, err := b.client.UpdateDowntime(ctx, d)
	return err
}

func (b apiBackend) DeleteDowntime(ctx context.Context, d *downtime.Downtime) error {
	return b.client.DeleteDowntime(ctx, d.ID, d.ResourceIDs)
}

// SplitDowntime creates the new piece first and removes it again when the
// update of the kept piece fails.
func (b apiBackend) SplitDowntime(ctx context.Context, kept, added *downtime.Downtime) (*downtime.Downtime, error) {
	created, err := b.client.CreateDowntime(ctx, added, clash.ResolutionNone)
	if err != nil {
		return nil, err
	}
	if _, err := b.client.UpdateDowntime(ctx, kept); err != nil {
		if undoErr := b.client.DeleteDowntime(ctx, created.ID, created.ResourceIDs); undoErr != nil {
			return nil, errors.Join(err, fmt.Errorf("undo split downtime %d: %w", created.ID, undoErr))
		}
		return nil, err
	}
	return created, nil
}
