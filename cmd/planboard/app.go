package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"planboard/internal/api"
	"planboard/internal/config"
	"planboard/internal/database"
	"planboard/internal/daterange"
	"planboard/internal/events"
	"planboard/internal/planner"
)

// app holds what every command needs.
type app struct {
	cfg     *config.Config
	db      *database.DB
	client  *api.Client
	rdb     *redis.Client
	bus     *events.EventBus
	service *planner.Service
}

// newApp wires the planner. A zero window loads the configured data window around today.
func newApp(ctx context.Context, window daterange.DateRange) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{cfg: cfg, db: db, bus: events.NewEventBus()}

	if err := a.syncResources(ctx); err != nil {
		a.close()
		return nil, err
	}

	if window.IsZero() {
		window = planner.DefaultWindow(time.Now(), cfg.DataWindowDays())
	}
	opts := planner.Options{Window: window, Bus: a.bus}
	backend := planner.DatabaseBackend(db)
	if cfg.API.Enabled && cfg.API.BaseURL != "" {
		a.client = api.NewClient(api.Options{
			BaseURL:       cfg.API.BaseURL,
			APIKey:        cfg.API.APIKey,
			Timeout:       cfg.APITimeout(),
			RatePerSecond: cfg.API.RatePerSecond,
			Burst:         cfg.API.Burst,
		}, &logger)
		if cfg.Redis.Address != "" && cfg.APICacheTTL() > 0 {
			a.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			a.client.UseRedisCache(a.rdb, cfg.APICacheTTL())
		}
		backend = planner.APIBackend(a.client)
		opts.Remote = a.client
	}

	a.service = planner.NewService(backend, opts, &logger)
	return a, nil
}

// syncResources writes resources.yaml into the database when the file exists.
func (a *app) syncResources(ctx context.Context) error {
	rc, err := config.LoadResourcesConfig(a.cfg.Resources.Path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug().Str("path", a.cfg.Resources.Path).Msg("no resources file")
		return nil
	}
	if err != nil {
		return err
	}
	return planner.SyncResources(ctx, a.db, rc, a.cfg.Planner.DefaultTimeZone, &logger)
}

// parseIDs reads a comma separated id list.
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids given")
	}
	return ids, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.db.Close()
}
