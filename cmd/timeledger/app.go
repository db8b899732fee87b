package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodtune/timeledger/internal/config"
	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/limits"
	"github.com/goodtune/timeledger/internal/reconcile"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/goodtune/timeledger/internal/storage/bolt"
	"github.com/goodtune/timeledger/internal/storage/redis"
	"github.com/goodtune/timeledger/internal/storage/sqlite"
	"github.com/goodtune/timeledger/internal/transfer"
	"github.com/goodtune/timeledger/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app is the wired set of components shared by every command.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	boundary ledger.Boundary

	local  storage.LocalStore
	remote storage.RemoteStore

	resolver *limits.Resolver
	days     *usage.DayStore
	syncer   *reconcile.Syncer
	tracker  *usage.Tracker
	exporter *transfer.Exporter
}

// newApp loads configuration and opens the stores. One-shot commands log
// warnings and errors only, to stderr.
func newApp(daemon bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var logger zerolog.Logger
	if daemon {
		logger = setupLogger(cfg.Logging)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	}
	log.Logger = logger

	boundary, err := ledger.ParseBoundary(cfg.Usage.DailyResetTime)
	if err != nil {
		return nil, err
	}

	local, err := openLocal(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		boundary: boundary,
		local:    local,
		remote:   openRemote(cfg, logger),
	}

	a.resolver, err = limits.NewResolver(local, a.remote, limits.Config{
		Child:    cfg.Child.Name,
		Boundary: boundary,
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize limits resolver: %w", err)
	}

	a.days = usage.NewDayStore(local, boundary, nil, logger)
	a.syncer = reconcile.NewSyncer(local, a.remote, a.days, a.resolver, nil, reconcile.Config{
		Child:     cfg.Child.Name,
		DeviceID:  cfg.Child.DeviceID,
		Interval:  config.ParseDuration(cfg.Sync.Interval, reconcile.DefaultInterval),
		Timeout:   config.ParseDuration(cfg.Sync.Timeout, reconcile.DefaultTimeout),
		QueueSize: cfg.Sync.QueueSize,
	}, logger)
	a.tracker = usage.NewTracker(a.days, a.resolver, a.syncer, nil, logger)
	a.exporter = transfer.NewExporter(a.days, a.resolver, cfg.Child.Name, boundary, nil, logger)

	return a, nil
}

// openLocal opens the device store with the configured driver.
func openLocal(cfg config.StorageConfig) (storage.LocalStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Path)
	default:
		return bolt.Open(cfg.Path)
	}
}

// openRemote connects to the family store. The device keeps working from
// its local ledger when Redis is disabled or unreachable.
func openRemote(cfg *config.Config, logger zerolog.Logger) storage.RemoteStore {
	if !cfg.Storage.Redis.Enabled {
		logger.Info().Msg("Remote store disabled, running offline")
		return nil
	}

	store, err := redis.Open(cfg.Storage.Redis, cfg.Child.Family, cfg.Child.DeviceID)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("redis_host", cfg.Storage.Redis.Host).
			Int("redis_port", cfg.Storage.Redis.Port).
			Msg("Remote store unavailable, running offline")
		return nil
	}
	return store
}

// requireRemote returns the remote store for commands that cannot work
// offline.
func (a *app) requireRemote() (storage.RemoteStore, error) {
	if a.remote == nil {
		return nil, fmt.Errorf("this command needs the remote store: %w", storage.ErrRemoteUnavailable)
	}
	return a.remote, nil
}

// flush pushes changes queued by a one-shot command before exit.
func (a *app) flush(ctx context.Context) {
	if err := a.syncer.Flush(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Changes saved locally, sync will retry later")
	}
}

func (a *app) close() {
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close remote store")
		}
	}
	if err := a.local.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close local store")
	}
}
