package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"planboard/internal/config"
	"planboard/internal/daterange"
	"planboard/internal/model"
)

// ResourceWriter stores configured resources, their weekly periods and the
// days they are closed.
type ResourceWriter interface {
	UpsertResource(ctx context.Context, id int64, name, zoneName string) error
	ReplaceAvailablePeriods(ctx context.Context, resourceID int64, periods []model.AvailablePeriod) error
	CloseDay(ctx context.Context, resourceID int64, date time.Time) error
}

// SyncResources writes every configured resource and its weekly schedule.
// Holidays close the day for every resource. Resources without a zone get
// defaultZone.
func SyncResources(ctx context.Context, w ResourceWriter, cfg *config.ResourcesConfig, defaultZone string, logger *zerolog.Logger) error {
	holidays := cfg.HolidayDates()
	for _, r := range cfg.Resources {
		zoneName := r.TimeZone
		if zoneName == "" {
			zoneName = defaultZone
		}
		if err := w.UpsertResource(ctx, r.ID, r.Name, zoneName); err != nil {
			return err
		}
		periods, err := cfg.Periods(r.ID)
		if err != nil {
			return fmt.Errorf("resource %d: %w", r.ID, err)
		}
		if err := w.ReplaceAvailablePeriods(ctx, r.ID, periods); err != nil {
			return fmt.Errorf("resource %d: %w", r.ID, err)
		}
		for _, date := range holidays {
			if err := w.CloseDay(ctx, r.ID, date); err != nil {
				return fmt.Errorf("resource %d holiday %s: %w", r.ID, date.Format(daterange.Layout), err)
			}
		}
		if logger != nil {
			logger.Debug().Int64("resource_id", r.ID).Int("periods", len(periods)).Int("holidays", len(holidays)).Msg("resource synced")
		}
	}
	if logger != nil {
		logger.Info().Int("resources", len(cfg.Resources)).Msg("resources synced")
	}
	return nil
}
