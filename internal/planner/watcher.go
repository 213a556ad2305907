package planner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"planboard/internal/config"
)

// WatcherConfig holds configuration for the resources file watcher.
type WatcherConfig struct {
	Path string
	// CheckInterval is how often the file is read.
	CheckInterval time.Duration
	// DefaultZone is given to resources without a time zone.
	DefaultZone string
}

// ResourceWatcher keeps the store in line with resources.yaml. When the file's
// content changes it syncs the resources and reloads the service. Touching the
// file without changing it does nothing.
type ResourceWatcher struct {
	config  WatcherConfig
	writer  ResourceWriter
	service *Service
	logger  *zerolog.Logger

	mu       sync.Mutex
	applied  [sha256.Size]byte
	rejected [sha256.Size]byte
}

// NewResourceWatcher builds a watcher. service may be nil when nothing is
// loaded in memory.
func NewResourceWatcher(writer ResourceWriter, service *Service, cfg WatcherConfig, logger *zerolog.Logger) *ResourceWatcher {
	if cfg.Path == "" {
		cfg.Path = "configs/resources.yaml"
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ResourceWatcher{config: cfg, writer: writer, service: service, logger: logger}
}

// Start applies the current file, then polls it until ctx is done.
func (w *ResourceWatcher) Start(ctx context.Context) {
	w.logger.Info().Str("path", w.config.Path).Dur("interval", w.config.CheckInterval).Msg("resources watcher started")
	if _, err := w.checkAndApply(ctx); err != nil {
		w.logger.Error().Err(err).Msg("resources sync failed")
	}

	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("resources watcher stopped")
			return
		case <-ticker.C:
			if _, err := w.checkAndApply(ctx); err != nil {
				w.logger.Error().Err(err).Msg("resources sync failed")
			}
		}
	}
}

// checkAndApply syncs the file when its content differs from what was last
// applied. It reports whether it did. A file that fails to parse is reported
// once and skipped until it changes again; a failed write is retried.
func (w *ResourceWatcher) checkAndApply(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(w.config.Path)
	if err != nil {
		return false, fmt.Errorf("read resources config: %w", err)
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if sum == w.applied || sum == w.rejected {
		return false, nil
	}

	cfg, err := config.ParseResourcesConfig(data)
	if err != nil {
		w.rejected = sum
		return false, err
	}
	if err := SyncResources(ctx, w.writer, cfg, w.config.DefaultZone, w.logger); err != nil {
		return false, err
	}
	if w.service != nil {
		if err := w.service.RefreshDowntimes(ctx); err != nil {
			return false, fmt.Errorf("reload after resources change: %w", err)
		}
	}
	w.applied = sum

	w.logger.Info().Int("resources", len(cfg.Resources)).Msg("resources config applied")
	return true, nil
}
