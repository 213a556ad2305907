package planner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"planboard/internal/daterange"
)

// RollerConfig holds configuration for the window roller.
type RollerConfig struct {
	// Days loaded either side of today.
	Days int
	// Location decides when a day starts.
	Location *time.Location
	// CheckInterval is how often to check for a new day.
	CheckInterval time.Duration
	Now           func() time.Time
}

// Roller moves a service's loaded window along with the calendar and
// reloads every resource once a day.
type Roller struct {
	config  RollerConfig
	service *Service
	logger  *zerolog.Logger

	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of last run
}

func NewRoller(service *Service, config RollerConfig, logger *zerolog.Logger) *Roller {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.Days <= 0 {
		config.Days = 60
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Roller{
		config:      config,
		service:     service,
		logger:      logger,
		lastRunDate: config.Now().In(config.Location).Format(daterange.Layout),
	}
}

// Start runs the roller loop until ctx is done.
func (r *Roller) Start(ctx context.Context) {
	r.logger.Info().Int("days", r.config.Days).Str("location", r.config.Location.String()).Msg("window roller started")

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("window roller stopped")
			return
		case <-ticker.C:
			if _, err := r.checkAndRun(ctx); err != nil {
				r.logger.Error().Err(err).Msg("window roll failed")
			}
		}
	}
}

// checkAndRun rolls the window when the day changed. It reports whether it did.
func (r *Roller) checkAndRun(ctx context.Context) (bool, error) {
	now := r.config.Now().In(r.config.Location)
	today := now.Format(daterange.Layout)

	r.mu.Lock()
	alreadyRan := r.lastRunDate == today
	r.mu.Unlock()
	if alreadyRan {
		return false, nil
	}

	local := daterange.Date(now.Year(), now.Month(), now.Day())
	window := DefaultWindow(local, r.config.Days)
	r.service.SetWindow(window)
	if err := r.service.RefreshDowntimes(ctx); err != nil {
		return false, err
	}

	r.mu.Lock()
	r.lastRunDate = today
	r.mu.Unlock()

	r.logger.Info().Str("date", today).Str("window", window.String()).Msg("window rolled")
	return true, nil
}
