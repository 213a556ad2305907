package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"planboard/internal/availability"
	"planboard/internal/database"
	"planboard/internal/daterange"
	"planboard/internal/events"
	"planboard/internal/metrics"
	"planboard/internal/planner"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep schedules loaded and serve health and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, daterange.DateRange{})
			if err != nil {
				return err
			}
			defer a.close()
			cfg := a.cfg

			ids, err := a.db.ResourceIDs(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := a.service.LoadResource(ctx, id); err != nil {
					return err
				}
			}

			a.bus.Subscribe(events.TypeRefresh, func(e events.Event) error {
				if r, ok := e.Payload.(availability.RefreshEvent); ok {
					logger.Debug().Int64("resource_id", r.ResourceID).Str("range", r.Range.String()).Bool("all", r.All).Msg("availability changed")
				}
				return nil
			})

			loc := time.UTC
			if cfg.Planner.DefaultTimeZone != "" {
				if loc, err = time.LoadLocation(cfg.Planner.DefaultTimeZone); err != nil {
					return err
				}
			}
			roller := planner.NewRoller(a.service, planner.RollerConfig{Days: cfg.DataWindowDays(), Location: loc}, &logger)
			go roller.Start(ctx)

			backup := database.NewBackupService(a.db, database.BackupConfig{
				Enabled:       cfg.Backup.Enabled,
				Interval:      cfg.BackupInterval(),
				StoragePath:   cfg.Backup.Path,
				RetentionDays: cfg.Backup.RetentionDays,
			}, &logger)
			go backup.Start(ctx)

			watcher := planner.NewResourceWatcher(a.db, a.service, planner.WatcherConfig{
				Path:          cfg.Resources.Path,
				CheckInterval: cfg.ResourcesWatchInterval(),
				DefaultZone:   cfg.Planner.DefaultTimeZone,
			}, &logger)
			go watcher.Start(ctx)

			if cfg.Monitoring.HealthCheckPort == 0 {
				cfg.Monitoring.HealthCheckPort = 8090
			}
			go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, a)

			if cfg.Monitoring.PrometheusEnabled {
				if cfg.Monitoring.PrometheusPort == 0 {
					cfg.Monitoring.PrometheusPort = 9090
				}
				metrics.Register()
				go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort)
			}

			logger.Info().Int("resources", len(ids)).Str("window", a.service.Window().String()).Msg("planboard started")
			<-ctx.Done()
			logger.Info().Msg("planboard stopped")
			return nil
		},
	}
}

func startHealthServer(ctx context.Context, port int, a *app) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := a.db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if a.rdb != nil {
			if err := a.rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if a.client != nil {
			if err := a.client.HealthCheck(ctxPing); err != nil {
				http.Error(w, "api not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
