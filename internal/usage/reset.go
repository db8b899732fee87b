package usage

import (
	"context"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/metrics"
	"github.com/rs/zerolog"
)

// ResetScheduler rolls the ledger over at the daily boundary and prunes
// archived days past the retention period.
type ResetScheduler struct {
	days          *DayStore
	limits        LimitsSource
	boundary      ledger.Boundary
	retentionDays int
	logger        zerolog.Logger
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewResetScheduler creates a new reset scheduler. retentionDays of zero
// keeps history forever.
func NewResetScheduler(days *DayStore, limits LimitsSource, boundary ledger.Boundary, retentionDays int, logger zerolog.Logger) *ResetScheduler {
	return &ResetScheduler{
		days:          days,
		limits:        limits,
		boundary:      boundary,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "reset-scheduler").Logger(),
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the reset scheduler
func (rs *ResetScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("reset_time", rs.boundary.String()).
		Int("retention_days", rs.retentionDays).
		Msg("Daily reset scheduler started")
}

// Stop stops the reset scheduler and waits for it to exit
func (rs *ResetScheduler) Stop() {
	close(rs.stopChan)
	<-rs.doneChan
	rs.logger.Info().Msg("Daily reset scheduler stopped")
}

// run is the main scheduler loop
func (rs *ResetScheduler) run() {
	defer close(rs.doneChan)

	for {
		nextReset := rs.calculateNextReset(time.Now())
		waitDuration := time.Until(nextReset)

		rs.logger.Info().
			Time("next_reset", nextReset).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily reset")

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			rs.PerformReset(context.Background(), time.Now())
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// calculateNextReset calculates the next reset time
func (rs *ResetScheduler) calculateNextReset(now time.Time) time.Time {
	return rs.boundary.Next(now)
}

// PerformReset archives a stale ledger by loading today's, then removes
// archived days older than the retention period.
func (rs *ResetScheduler) PerformReset(ctx context.Context, now time.Time) {
	rs.logger.Info().Msg("Performing daily reset")

	l, err := rs.days.GetToday(ctx, rs.limits.Today(ctx))
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to roll over ledger")
		return
	}

	if rs.retentionDays <= 0 {
		return
	}

	cutoffDate := rs.boundary.Day(now).AddDate(0, 0, -rs.retentionDays).Format(ledger.DateLayout)
	removed, err := rs.days.PruneHistory(ctx, cutoffDate)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune history")
		return
	}
	metrics.HistoryDaysPruned.Add(float64(removed))

	rs.logger.Info().
		Str("today", l.Date).
		Int("days_removed", removed).
		Str("cutoff_date", cutoffDate).
		Msg("Daily reset complete, old history cleaned up")
}
