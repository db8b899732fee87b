package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/metrics"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/goodtune/timeledger/internal/usage"
	"github.com/rs/zerolog"
)

const (
	// DefaultInterval is the period between background syncs.
	DefaultInterval = 5 * time.Minute

	// DefaultTimeout bounds one round trip to the remote store.
	DefaultTimeout = 10 * time.Second

	// DefaultQueueSize is the number of pending background requests.
	DefaultQueueSize = 8
)

// Status is the informational sync state.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusChecking  Status = "checking"
	StatusConnected Status = "connected"
	StatusCached    Status = "cached"
	StatusFallback  Status = "fallback"
	StatusError     Status = "error"
)

// Limits resolves limits and caches settings from a fetched blob.
type Limits interface {
	Today(ctx context.Context) ledger.Limits
	Store(ctx context.Context, family *storage.Family) error
}

// Config holds syncer configuration
type Config struct {
	Child     string
	DeviceID  string
	Interval  time.Duration
	Timeout   time.Duration
	QueueSize int
}

// Result describes one completed sync.
type Result struct {
	Decision       Decision `json:"decision"`
	HistoryChanged bool     `json:"historyChanged"`
	Pushed         bool     `json:"pushed"`
	Status         Status   `json:"status"`
}

// Syncer reconciles the device's ledger with the remote family blob. Sync
// runs one attempt in the caller's goroutine; Submit queues one for the
// background worker started by Start.
type Syncer struct {
	local  storage.LocalStore
	remote storage.RemoteStore
	days   *usage.DayStore
	limits Limits
	clock  ledger.Clock
	cfg    Config
	logger zerolog.Logger

	queue    chan string
	errs     chan error
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu       sync.RWMutex
	status   Status
	lastSync time.Time
	syncMu   sync.Mutex
}

// NewSyncer creates a syncer. remote may be nil, in which case every
// sync reports the degraded status without error-level logging.
func NewSyncer(local storage.LocalStore, remote storage.RemoteStore, days *usage.DayStore, limits Limits, clock ledger.Clock, cfg Config, logger zerolog.Logger) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if clock == nil {
		clock = ledger.RealClock{}
	}

	return &Syncer{
		local:    local,
		remote:   remote,
		days:     days,
		limits:   limits,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With().Str("component", "syncer").Logger(),
		queue:    make(chan string, cfg.QueueSize),
		errs:     make(chan error, cfg.QueueSize),
		stopChan: make(chan struct{}),
		status:   StatusUnknown,
	}
}

// Status returns the state after the most recent attempt.
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastSync returns when the last successful sync finished.
func (s *Syncer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Errors carries background sync failures. Failures are dropped when
// nobody drains the channel.
func (s *Syncer) Errors() <-chan error {
	return s.errs
}

// SyncNow runs one synchronous sync attempt.
func (s *Syncer) SyncNow(ctx context.Context) error {
	_, err := s.Sync(ctx)
	return err
}

// Submit queues a background sync. It never blocks; when the queue is
// full a sync is already pending and the request is dropped.
func (s *Syncer) Submit(reason string) {
	select {
	case s.queue <- reason:
	default:
		metrics.SyncQueueDropped.Inc()
		s.logger.Debug().Str("reason", reason).Msg("Sync already pending, dropping request")
	}
}

// Flush runs one sync when requests are queued and no worker consumes
// them, as in one-shot commands.
func (s *Syncer) Flush(ctx context.Context) error {
	pending := 0
drain:
	for {
		select {
		case <-s.queue:
			pending++
		default:
			break drain
		}
	}
	if pending == 0 {
		return nil
	}
	_, err := s.Sync(ctx)
	return err
}

// Start launches the background worker, which syncs once immediately,
// then on every interval and for every submitted request.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Sync worker started")
}

// Stop stops the background worker and waits for it to exit.
func (s *Syncer) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info().Msg("Sync worker stopped")
}

func (s *Syncer) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.background("startup")
	for {
		select {
		case reason := <-s.queue:
			s.background(reason)
		case <-ticker.C:
			s.background("periodic")
		case <-s.stopChan:
			return
		}
	}
}

func (s *Syncer) background(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if _, err := s.Sync(ctx); err != nil {
		if errors.Is(err, storage.ErrRemoteUnavailable) {
			s.logger.Warn().Err(err).Str("reason", reason).Msg("Background sync skipped, remote unavailable")
		} else {
			s.logger.Error().Err(err).Str("reason", reason).Msg("Background sync failed")
		}
		select {
		case s.errs <- fmt.Errorf("sync (%s): %w", reason, err):
		default:
		}
	}
}

// Sync fetches the family blob, merges it with the local ledger and
// history, saves the result locally and pushes it back when the remote
// store is missing anything.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	start := time.Now()
	defer func() { metrics.SyncDuration.Observe(time.Since(start).Seconds()) }()

	s.setStatus(StatusChecking)

	if s.remote == nil {
		return nil, s.degrade(ctx, "disabled", storage.ErrRemoteUnavailable)
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	family, err := s.remote.GetAllData(rctx)
	if err != nil {
		if errors.Is(err, storage.ErrRemoteUnavailable) {
			return nil, s.degrade(ctx, "unavailable", err)
		}
		s.setStatus(StatusError)
		metrics.SyncAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch family: %w", err)
	}

	if family != nil {
		if err := s.limits.Store(ctx, family); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache remote settings")
		}
	}
	limits := s.limits.Today(ctx)
	now := s.clock.Now()

	var merge ChildMerge
	_, err = s.days.Reconcile(ctx, limits, func(today *ledger.Ledger, history map[string]*ledger.Ledger) (*ledger.Ledger, map[string]*ledger.Ledger, error) {
		local := &storage.ChildRecord{
			Profile:        storage.Profile{Name: s.cfg.Child, DeviceID: s.cfg.DeviceID},
			TodayData:      today,
			HistoricalData: history,
		}
		merge = MergeChild(local, family.Child(s.cfg.Child), now)
		return merge.Record.TodayData, merge.Record.HistoricalData, nil
	})
	if err != nil {
		s.setStatus(StatusError)
		metrics.SyncAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to save merged ledger: %w", err)
	}
	metrics.MergesTotal.WithLabelValues(string(merge.Today.Branch)).Inc()

	created := family == nil
	if created {
		family = storage.NewFamily()
		ps := storage.DefaultParentSettings(storage.DefaultFamilyName, storage.DefaultSyncPassword, now)
		family.ParentSettings = &ps
		ss := storage.DefaultSystemSettings()
		family.SystemSettings = &ss
	}
	family.Children[s.cfg.Child] = merge.Record

	result := &Result{
		Decision:       merge.Today,
		HistoryChanged: merge.HistoryChanged,
		Status:         StatusConnected,
	}

	if merge.Push() {
		if err := s.remote.SetAllData(rctx, family); err != nil {
			if errors.Is(err, storage.ErrRemoteUnavailable) {
				return nil, s.degrade(ctx, "push_failed", err)
			}
			s.setStatus(StatusError)
			metrics.SyncAttempts.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to push family: %w", err)
		}
		result.Pushed = true
	}
	if created {
		if err := s.limits.Store(ctx, family); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache new family settings")
		}
	}

	s.saveSnapshot(ctx, family)

	s.mu.Lock()
	s.status = StatusConnected
	s.lastSync = now
	s.mu.Unlock()

	label := "success"
	if result.Pushed {
		label = "pushed"
	}
	metrics.SyncAttempts.WithLabelValues(label).Inc()

	s.logger.Debug().
		Str("branch", string(merge.Today.Branch)).
		Int("reapplied", merge.Today.Reapplied).
		Int("corrected", merge.Today.Corrected).
		Bool("history_changed", merge.HistoryChanged).
		Bool("pushed", result.Pushed).
		Msg("Sync complete")

	return result, nil
}

// degrade records a sync that could not reach the remote store. The
// status reflects where limits are now coming from.
func (s *Syncer) degrade(ctx context.Context, result string, err error) error {
	status := StatusCached
	if s.limits.Today(ctx).Source == ledger.SourceFallback {
		status = StatusFallback
	}
	s.setStatus(status)
	metrics.SyncAttempts.WithLabelValues(result).Inc()
	return err
}

func (s *Syncer) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// saveSnapshot keeps the last known family blob on the device.
func (s *Syncer) saveSnapshot(ctx context.Context, family *storage.Family) {
	data, err := json.Marshal(family)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode family snapshot")
		return
	}
	if err := s.local.Set(ctx, storage.KeyAllAppData, string(data)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save family snapshot")
	}
	if err := s.local.Set(ctx, storage.KeyUserName, s.cfg.Child); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save user name")
	}
}
