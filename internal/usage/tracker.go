package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tracker runs the session state machine and bonus accrual against the
// current day's ledger.
type Tracker struct {
	days   *DayStore
	limits LimitsSource
	syncer Syncer
	clock  ledger.Clock
	logger zerolog.Logger
}

// NewTracker creates a new usage tracker. syncer may be nil, in which
// case nothing is pushed to the remote store.
func NewTracker(days *DayStore, limits LimitsSource, syncer Syncer, clock ledger.Clock, logger zerolog.Logger) *Tracker {
	if clock == nil {
		clock = ledger.RealClock{}
	}
	return &Tracker{
		days:   days,
		limits: limits,
		syncer: syncer,
		clock:  clock,
		logger: logger.With().Str("component", "usage-tracker").Logger(),
	}
}

// Start begins a device session. It is refused while another session is
// active and when the estimate exceeds the remaining time.
func (t *Tracker) Start(ctx context.Context, category string, estimatedMinutes int) (*ledger.Session, error) {
	if estimatedMinutes <= 0 {
		return nil, ledger.ErrInvalidMinutes
	}
	limits := t.limits.Today(ctx)
	if _, ok := limits.Device(category); !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownCategory, category)
	}

	now := t.clock.Now()
	var session ledger.Session
	_, err := t.days.Update(ctx, limits, func(l *ledger.Ledger) error {
		if l.ActiveSession != nil {
			return ledger.ErrSessionAlreadyActive
		}
		remaining := ledger.Project(l, limits).Totals.Remaining
		if estimatedMinutes > remaining {
			return &ledger.InsufficientTimeError{
				Requested: estimatedMinutes,
				Available: max(0, remaining),
				Message:   limits.LockoutMessage,
			}
		}

		session = ledger.Session{
			ID:               uuid.NewString(),
			Category:         category,
			StartTime:        now,
			EstimatedMinutes: estimatedMinutes,
			EstimatedEndTime: now.Add(time.Duration(estimatedMinutes) * time.Minute),
		}
		l.ActiveSession = &session
		return nil
	})
	if err != nil {
		t.logger.Debug().Err(err).Str("category", category).Msg("Session start refused")
		metrics.SessionsRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	metrics.SessionsStarted.WithLabelValues(category).Inc()
	t.logger.Info().
		Str("session_id", session.ID).
		Str("category", category).
		Int("estimated_minutes", estimatedMinutes).
		Msg("Started session")

	t.submit("session-start")
	return &session, nil
}

// End finishes the active session. actualMinutes nil means the elapsed
// time rounded to whole minutes. Ending is never refused for lack of
// time; overage is reported in the result.
func (t *Tracker) End(ctx context.Context, actualMinutes *int) (*SessionResult, error) {
	if actualMinutes != nil && *actualMinutes < 0 {
		return nil, ledger.ErrInvalidMinutes
	}
	limits := t.limits.Today(ctx)
	now := t.clock.Now()

	var result *SessionResult
	_, err := t.days.Update(ctx, limits, func(l *ledger.Ledger) error {
		s := l.ActiveSession
		if s == nil {
			return ledger.ErrNoActiveSession
		}

		minutes := elapsedMinutes(s.StartTime, now)
		if actualMinutes != nil {
			minutes = *actualMinutes
		}

		result = consume(l, limits, ledger.Activity{
			Type:             ledger.KindElectronic,
			Category:         s.Category,
			StartTime:        s.StartTime,
			EndTime:          now,
			EstimatedMinutes: s.EstimatedMinutes,
			ActualMinutes:    minutes,
			Timestamp:        now,
		})
		l.ActiveSession = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.recordConsumption(result, "session")
	result.SyncedToRemote = t.syncNow(ctx)
	return result, nil
}

// Cancel discards the active session without deducting time.
func (t *Tracker) Cancel(ctx context.Context) (*ledger.Session, error) {
	limits := t.limits.Today(ctx)

	var cancelled ledger.Session
	_, err := t.days.Update(ctx, limits, func(l *ledger.Ledger) error {
		if l.ActiveSession == nil {
			return ledger.ErrNoActiveSession
		}
		cancelled = *l.ActiveSession
		l.ActiveSession = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsCancelled.Inc()
	t.logger.Info().Str("session_id", cancelled.ID).Msg("Cancelled session")

	t.submit("session-cancel")
	return &cancelled, nil
}

// QuickAdd logs a completed session retroactively, as if it started
// minutes ago. It does not touch an active session.
func (t *Tracker) QuickAdd(ctx context.Context, category string, minutes int) (*SessionResult, error) {
	if minutes <= 0 {
		return nil, ledger.ErrInvalidMinutes
	}
	limits := t.limits.Today(ctx)
	if _, ok := limits.Device(category); !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownCategory, category)
	}
	now := t.clock.Now()

	var result *SessionResult
	_, err := t.days.Update(ctx, limits, func(l *ledger.Ledger) error {
		result = consume(l, limits, ledger.Activity{
			Type:             ledger.KindElectronic,
			Category:         category,
			StartTime:        now.Add(-time.Duration(minutes) * time.Minute),
			EndTime:          now,
			EstimatedMinutes: minutes,
			ActualMinutes:    minutes,
			QuickAdd:         true,
			Timestamp:        now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.recordConsumption(result, "quick_add")
	result.SyncedToRemote = t.syncNow(ctx)
	return result, nil
}

// LogActivity records minutes of a bonus activity.
func (t *Tracker) LogActivity(ctx context.Context, key string, minutes int) (*ledger.AccrualResult, error) {
	if minutes <= 0 {
		return nil, ledger.ErrInvalidMinutes
	}
	limits := t.limits.Today(ctx)
	activity, ok := limits.Activity(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownActivity, key)
	}
	now := t.clock.Now()

	var result ledger.AccrualResult
	_, err := t.days.Update(ctx, limits, func(l *ledger.Ledger) error {
		result = ledger.Accrue(l, limits, activity, minutes, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ActivityMinutesLogged.WithLabelValues(key).Add(float64(minutes))
	metrics.BonusMinutesEarned.WithLabelValues(key).Add(float64(result.BonusEarnedThisSession))
	t.logger.Info().
		Str("activity", key).
		Int("minutes", minutes).
		Int("earned_today", result.EarnedToday).
		Bool("cap_reached", result.BonusCapReached).
		Msg("Logged bonus activity")

	t.submit("bonus-activity")
	return &result, nil
}

// EditSession changes the actual minutes of a logged device session.
// The difference is applied to base time and device usage, neither
// going below zero.
func (t *Tracker) EditSession(ctx context.Context, timestamp time.Time, minutes int) (*ledger.Activity, error) {
	if minutes < 0 {
		return nil, ledger.ErrInvalidMinutes
	}
	limits := t.limits.Today(ctx)

	var edited ledger.Activity
	_, err := t.days.Update(ctx, limits, func(l *ledger.Ledger) error {
		i := l.Find(timestamp)
		if i < 0 || l.Activities[i].Type != ledger.KindElectronic {
			return fmt.Errorf("%w: %s", ledger.ErrActivityNotFound, timestamp.Format(time.RFC3339Nano))
		}

		a := &l.Activities[i]
		delta := minutes - a.ActualMinutes
		l.BaseTimeUsed = max(0, l.BaseTimeUsed+delta)
		l.DeviceUsage[a.Category] = max(0, l.DeviceUsage[a.Category]+delta)
		a.ActualMinutes = minutes
		edited = *a
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info().
		Time("timestamp", timestamp).
		Int("minutes", minutes).
		Msg("Edited session")

	t.submit("session-edit")
	return &edited, nil
}

// Summary projects today's ledger.
func (t *Tracker) Summary(ctx context.Context) (ledger.Summary, error) {
	limits := t.limits.Today(ctx)
	l, err := t.days.GetToday(ctx, limits)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Project(l, limits), nil
}

// ActiveSession returns the active session, or nil when idle.
func (t *Tracker) ActiveSession(ctx context.Context) (*ledger.Session, error) {
	l, err := t.days.GetToday(ctx, t.limits.Today(ctx))
	if err != nil {
		return nil, err
	}
	return l.ActiveSession, nil
}

// consume deducts a completed session and appends its entry.
func consume(l *ledger.Ledger, limits ledger.Limits, entry ledger.Activity) *SessionResult {
	before := ledger.Project(l, limits).Totals.Remaining
	minutes := entry.ActualMinutes

	d := ledger.Deduct(l, limits, minutes)
	l.DeviceUsage[entry.Category] += minutes
	l.Append(entry)

	return &SessionResult{
		Category:         entry.Category,
		ActualMinutes:    minutes,
		EstimatedMinutes: entry.EstimatedMinutes,
		Difference:       minutes - entry.EstimatedMinutes,
		NewTimeRemaining: ledger.Project(l, limits).Totals.Remaining,
		WentOverLimit:    minutes > before,
		OverageMinutes:   max(0, minutes-max(0, before)),
		Deduction:        d,
		Completed:        entry,
	}
}

func (t *Tracker) recordConsumption(result *SessionResult, kind string) {
	metrics.SessionsEnded.WithLabelValues(result.Category, kind).Inc()
	metrics.DeviceMinutesConsumed.WithLabelValues(result.Category).Add(float64(result.ActualMinutes))
	if result.OverageMinutes > 0 {
		metrics.OverageMinutes.Add(float64(result.OverageMinutes))
	}

	event := t.logger.Info()
	if result.WentOverLimit {
		event = t.logger.Warn()
	}
	event.
		Str("category", result.Category).
		Str("kind", kind).
		Int("minutes", result.ActualMinutes).
		Int("remaining", result.NewTimeRemaining).
		Int("overage", result.OverageMinutes).
		Msg("Logged session")
}

func (t *Tracker) syncNow(ctx context.Context) bool {
	if t.syncer == nil {
		return false
	}
	if err := t.syncer.SyncNow(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("Session saved locally but not synced")
		return false
	}
	return true
}

func (t *Tracker) submit(reason string) {
	if t.syncer != nil {
		t.syncer.Submit(reason)
	}
}

func elapsedMinutes(start, now time.Time) int {
	return max(0, int(math.Round(now.Sub(start).Minutes())))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrSessionAlreadyActive):
		return "already_active"
	case errors.Is(err, ledger.ErrInsufficientTime):
		return "insufficient_time"
	default:
		return "error"
	}
}
