// Package planner keeps the loaded schedules of a set of resources in memory
// and runs downtime changes against them.
package planner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"planboard/internal/availability"
	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/dataset"
	"planboard/internal/downtime"
	"planboard/internal/events"
	"planboard/internal/metrics"
	"planboard/internal/model"
)

var ErrNotLoaded = errors.New("planner: resource not loaded")

// Options configures a Service.
type Options struct {
	// Window is the date range loaded for every resource.
	Window daterange.DateRange
	// Remote answers clash lookups outside Window. Without it the window is
	// widened and reloaded instead.
	Remote clash.RemoteClient
	Bus    *events.EventBus
}

type loadedResource struct {
	manager  *availability.Manager
	schedule availability.Schedule
	bookings model.Bookings
}

// Service provides downtime planning operations.
type Service struct {
	backend Backend
	remote  clash.RemoteClient
	bus     *events.EventBus
	logger  *zerolog.Logger

	downtimes *downtime.Collection

	mu        sync.RWMutex
	window    daterange.DateRange
	resources map[int64]*loadedResource
}

// NewService creates a planner service.
func NewService(backend Backend, opts Options, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	window := opts.Window
	if window.IsZero() {
		window = DefaultWindow(time.Now(), 60)
	}
	downtimes := downtime.NewCollection(opts.Bus)
	downtimes.SetLogger(logger)
	return &Service{
		backend:   backend,
		remote:    opts.Remote,
		bus:       opts.Bus,
		logger:    logger,
		downtimes: downtimes,
		window:    window,
		resources: make(map[int64]*loadedResource),
	}
}

// DefaultWindow spans days either side of now.
func DefaultWindow(now time.Time, days int) daterange.DateRange {
	today := daterange.Day(now)
	return daterange.MustNew(today.AddDate(0, 0, -days), today.AddDate(0, 0, days))
}

func (s *Service) Window() daterange.DateRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// SetWindow changes the date range loaded by later loads and refreshes.
func (s *Service) SetWindow(window daterange.DateRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = window
}

// Downtimes is the shared downtime collection of every loaded resource.
func (s *Service) Downtimes() *downtime.Collection {
	return s.downtimes
}

// Resources lists the loaded resource ids in ascending order.
func (s *Service) Resources() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.resources))
}

// LoadResource reads a resource for the current window. Loading it again
// refreshes the data behind the existing manager.
func (s *Service) LoadResource(ctx context.Context, resourceID int64) (*availability.Manager, error) {
	snap, err := s.backend.LoadSnapshot(ctx, resourceID, s.Window())
	if err != nil {
		return nil, fmt.Errorf("load resource %d: %w", resourceID, err)
	}

	s.mu.Lock()
	lr := s.apply(snap)
	s.mu.Unlock()

	s.mergeDowntimes(snap.Downtimes)
	s.logger.Info().
		Int64("resource_id", resourceID).
		Int("periods", len(snap.Periods)).
		Int("downtimes", len(snap.Downtimes)).
		Int("bookings", len(snap.Bookings)).
		Msg("resource loaded")
	return lr.manager, nil
}

// apply stores snap. Callers hold s.mu.
func (s *Service) apply(snap dataset.Snapshot) *loadedResource {
	if lr, ok := s.resources[snap.Resource.ID]; ok {
		lr.schedule.Periods.Reset(snap.Periods)
		lr.schedule.Custom.Reset(snap.Custom)
		lr.schedule.Overtimes.Reset(snap.Overtimes)
		lr.bookings = snap.Bookings
		return lr
	}
	schedule := availability.NewSchedule(snap.Periods, snap.Custom, snap.Overtimes)
	lr := &loadedResource{
		manager:  availability.NewManager(snap.Resource, schedule, s.downtimes, s.bus),
		schedule: schedule,
		bookings: snap.Bookings,
	}
	s.resources[snap.Resource.ID] = lr
	return lr
}

// mergeDowntimes adds the downtimes not yet known. A downtime shared by
// several resources arrives once per resource.
func (s *Service) mergeDowntimes(items []*downtime.Downtime) {
	var fresh []*downtime.Downtime
	for _, d := range items {
		if _, err := s.downtimes.Get(d.ID); err == nil {
			continue
		}
		fresh = append(fresh, d)
	}
	s.downtimes.Add(fresh...)
}

// Manager returns the availability manager of a loaded resource.
func (s *Service) Manager(resourceID int64) (*availability.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lr, ok := s.resources[resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotLoaded, resourceID)
	}
	return lr.manager, nil
}

// ResourceData implements clash.Source.
func (s *Service) ResourceData(resourceID int64) (clash.ResourceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lr, ok := s.resources[resourceID]
	if !ok {
		return clash.ResourceData{}, fmt.Errorf("%w: %d", ErrNotLoaded, resourceID)
	}
	return clash.ResourceData{
		Resource:  lr.manager.Resource(),
		Schedule:  lr.schedule,
		Downtimes: s.downtimes,
		Bookings:  lr.bookings,
	}, nil
}

// RefreshDowntimes reloads every loaded resource and replaces the downtime
// collection with what the backend now holds. It implements clash.Refresher.
func (s *Service) RefreshDowntimes(ctx context.Context) error {
	window := s.Window()
	ids := s.Resources()

	snaps := make([]dataset.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.backend.LoadSnapshot(ctx, id, window)
		if err != nil {
			return fmt.Errorf("reload resource %d: %w", id, err)
		}
		snaps = append(snaps, snap)
	}

	seen := make(map[int64]bool)
	var all []*downtime.Downtime
	s.mu.Lock()
	for _, snap := range snaps {
		s.apply(snap)
		for _, d := range snap.Downtimes {
			if !seen[d.ID] {
				seen[d.ID] = true
				all = append(all, d)
			}
		}
	}
	s.mu.Unlock()

	s.downtimes.Reset(all)
	s.logger.Debug().Int("resources", len(ids)).Int("downtimes", len(all)).Msg("downtimes refreshed")
	return nil
}

// ensureLoaded loads the missing resources of proposed and, without a remote
// clash source, widens the window so it covers every date the proposal falls
// on in each resource's zone.
func (s *Service) ensureLoaded(ctx context.Context, proposed *downtime.Downtime) error {
	for _, id := range proposed.ResourceIDs {
		if _, err := s.Manager(id); err == nil {
			continue
		}
		if _, err := s.LoadResource(ctx, id); err != nil {
			return err
		}
	}
	if s.remote != nil {
		return nil
	}

	need := proposed.DateRange()
	for _, id := range proposed.ResourceIDs {
		data, err := s.ResourceData(id)
		if err != nil {
			return err
		}
		shifted := proposed.InTimeZone(data.Resource.Zone).DateRange()
		need = daterange.MustNew(minTime(need.Start, shifted.Start), maxTime(need.End, shifted.End))
	}

	s.mu.Lock()
	widened := !s.window.Contains(need)
	if widened {
		s.window = daterange.MustNew(minTime(s.window.Start, need.Start), maxTime(s.window.End, need.End))
	}
	s.mu.Unlock()
	if widened {
		return s.RefreshDowntimes(ctx)
	}
	return nil
}

// Finder returns the clash finder for the current window.
func (s *Service) Finder() *clash.DualFinder {
	local := clash.NewLocalFinder(s)
	if s.remote == nil {
		return &clash.DualFinder{Local: local, Remote: local}
	}
	return &clash.DualFinder{Local: local, Remote: clash.NewRemoteFinder(s.remote), Loaded: s.Window(), Source: s}
}

// CheckClashes lists the clashes of proposed without changing anything.
func (s *Service) CheckClashes(ctx context.Context, proposed *downtime.Downtime) ([]model.Clash, error) {
	if err := proposed.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureLoaded(ctx, proposed); err != nil {
		return nil, err
	}
	return s.proposal().Find(ctx, proposed)
}

func (s *Service) proposal() *proposal {
	finder := s.Finder()
	local := finder.IsLocal
	if s.remote == nil {
		local = func(*downtime.Downtime) bool { return true }
	}
	return &proposal{finder: finder, local: local, backend: s.backend}
}

// ProposeDowntime runs a CreateDowntimeCommand for proposed. decide is asked
// only when clashes exist; a nil decide cancels. The command is returned even
// when it fails so callers can inspect its state.
func (s *Service) ProposeDowntime(ctx context.Context, proposed *downtime.Downtime, decide func([]model.Clash) clash.Decision) (*clash.CreateDowntimeCommand, error) {
	if err := proposed.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureLoaded(ctx, proposed); err != nil {
		return nil, err
	}

	p := s.proposal()
	cmd := clash.NewCreateDowntimeCommand(proposed, p, p, s, s.logger)

	err := cmd.Run(ctx, func(clashes []model.Clash) clash.Decision {
		decision := clash.DecisionCancel
		if decide != nil {
			decision = decide(clashes)
		}
		metrics.IncDowntimeDecision(string(decision))
		return decision
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("command", cmd.ID).Str("state", string(cmd.State())).Msg("downtime proposal failed")
	}
	return cmd, err
}

// DeleteDowntimeDate removes one date from a downtime. The first surviving
// piece keeps the downtime's id; a second piece is stored as a new downtime.
// Removing the only date deletes the downtime.
func (s *Service) DeleteDowntimeDate(ctx context.Context, id int64, date time.Time) error {
	d, err := s.downtimes.Get(id)
	if err != nil {
		return err
	}
	pieces, err := d.RemoveDate(date)
	if err != nil {
		return err
	}

	if len(pieces) == 0 {
		if err := s.backend.DeleteDowntime(ctx, d); err != nil {
			return fmt.Errorf("delete downtime %d: %w", id, err)
		}
		s.downtimes.Remove(id)
		s.logger.Info().Int64("downtime_id", id).Msg("downtime deleted")
		return nil
	}

	for _, p := range pieces {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("split downtime %d: %w", id, err)
		}
	}
	kept := pieces[0]
	kept.ID = id

	var created *downtime.Downtime
	if len(pieces) > 1 {
		if created, err = s.backend.SplitDowntime(ctx, kept, pieces[1]); err != nil {
			return fmt.Errorf("split downtime %d: %w", id, err)
		}
	} else if err := s.backend.UpdateDowntime(ctx, kept); err != nil {
		return fmt.Errorf("update downtime %d: %w", id, err)
	}

	if err := s.downtimes.Update(id, func(cur *downtime.Downtime) {
		cur.From, cur.To = kept.From, kept.To
		cur.StartTime, cur.EndTime = kept.StartTime, kept.EndTime
	}); err != nil {
		return err
	}
	if created != nil {
		s.downtimes.Add(created)
		s.logger.Info().Int64("downtime_id", id).Int64("split_id", created.ID).Msg("downtime split")
	}
	return nil
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
