package usage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/storage/bolt"
	"github.com/rs/zerolog"
)

type fixedLimits struct {
	limits ledger.Limits
}

func (f *fixedLimits) Today(ctx context.Context) ledger.Limits {
	return f.limits
}

type recordingSyncer struct {
	mu        sync.Mutex
	syncNow   int
	submitted []string
	err       error
}

func (s *recordingSyncer) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncNow++
	return s.err
}

func (s *recordingSyncer) Submit(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, reason)
}

func testLimits() ledger.Limits {
	return ledger.Limits{
		Date:          "2024-03-04",
		DailyBase:     120,
		MaxDailyTotal: 150,
		Activities: []ledger.BonusActivity{
			{Key: "soccer", Label: "Soccer Practice", MaxBonusMinutes: 30, Ratio: 0.5},
			{Key: "fitness", Label: "Physical Activity", MaxBonusMinutes: 30, Ratio: 1.0},
			{Key: "reading", Label: "Reading Time", MaxBonusMinutes: 60, Ratio: 0.25},
		},
		Devices: []ledger.Device{
			{Key: "tablet", Label: "Tablet"},
			{Key: "phone", Label: "Phone"},
		},
		LockoutMessage: "Time's up!",
		Source:         ledger.SourceFallback,
	}
}

type trackerFixture struct {
	tracker *Tracker
	days    *DayStore
	clock   *ledger.TestClock
	limits  *fixedLimits
	syncer  *recordingSyncer
}

func setupTracker(t *testing.T) *trackerFixture {
	t.Helper()

	local, err := bolt.Open(filepath.Join(t.TempDir(), "local.bolt"))
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	clock := &ledger.TestClock{CurrentTime: time.Date(2024, 3, 4, 15, 0, 0, 0, time.Local)}
	limits := &fixedLimits{limits: testLimits()}
	syncer := &recordingSyncer{}
	days := NewDayStore(local, ledger.Boundary{}, clock, zerolog.Nop())

	return &trackerFixture{
		tracker: NewTracker(days, limits, syncer, clock, zerolog.Nop()),
		days:    days,
		clock:   clock,
		limits:  limits,
		syncer:  syncer,
	}
}

func intPtr(v int) *int { return &v }

func TestTracker_BonusThenSessionScenario(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	accrual, err := f.tracker.LogActivity(ctx, "fitness", 40)
	if err != nil {
		t.Fatalf("log activity: %v", err)
	}
	if accrual.EarnedToday != 30 || accrual.ActivityMinutes != 40 {
		t.Errorf("expected earned 30 from 40 minutes, got %d from %d", accrual.EarnedToday, accrual.ActivityMinutes)
	}
	if !accrual.BonusCapReached || accrual.BonusEarnedThisSession != 30 {
		t.Errorf("expected cap reached with 30 earned this session, got %+v", accrual)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.tracker.Start(ctx, "tablet", 50); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(50 * time.Minute)
	result, err := f.tracker.End(ctx, intPtr(50))
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	l, err := f.days.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.BaseTimeUsed != 50 {
		t.Errorf("expected baseTimeUsed 50, got %d", l.BaseTimeUsed)
	}
	if l.DeviceUsage["tablet"] != 50 {
		t.Errorf("expected tablet usage 50, got %d", l.DeviceUsage["tablet"])
	}
	if result.NewTimeRemaining != 100 || result.WentOverLimit {
		t.Errorf("expected 100 remaining without overage, got %+v", result)
	}
	if l.ActiveSession != nil {
		t.Error("expected session cleared")
	}
	if len(l.Activities) != 2 || l.Activities[1].Type != ledger.KindElectronic {
		t.Errorf("expected bonus then electronic entries, got %+v", l.Activities)
	}

	summary, err := f.tracker.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Totals.Remaining != 100 {
		t.Errorf("expected summary remaining 100, got %d", summary.Totals.Remaining)
	}
}

func TestTracker_QuickAddOverLimit(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	if _, err := f.tracker.QuickAdd(ctx, "tablet", 120); err != nil {
		t.Fatalf("quick add: %v", err)
	}
	f.clock.Advance(time.Minute)

	result, err := f.tracker.QuickAdd(ctx, "phone", 20)
	if err != nil {
		t.Fatalf("quick add over limit should succeed: %v", err)
	}
	if !result.WentOverLimit || result.OverageMinutes != 20 {
		t.Errorf("expected 20 minutes overage, got %+v", result)
	}
	if result.NewTimeRemaining != -20 {
		t.Errorf("expected remaining -20, got %d", result.NewTimeRemaining)
	}

	summary, err := f.tracker.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Totals.Remaining != -20 {
		t.Errorf("expected totals.remaining -20, got %d", summary.Totals.Remaining)
	}
	if summary.BaseTime.Remaining != 0 {
		t.Errorf("expected base remaining clamped to 0, got %d", summary.BaseTime.Remaining)
	}
	if !result.Completed.QuickAdd || !result.Completed.StartTime.Equal(f.clock.Now().Add(-20*time.Minute)) {
		t.Errorf("expected quick add entry starting 20 minutes ago, got %+v", result.Completed)
	}

	// Already over: only this session's minutes count as overage.
	f.clock.Advance(time.Minute)
	result, err = f.tracker.QuickAdd(ctx, "phone", 10)
	if err != nil {
		t.Fatalf("quick add: %v", err)
	}
	if result.OverageMinutes != 10 || result.NewTimeRemaining != -30 {
		t.Errorf("expected 10 overage and -30 remaining, got %d and %d", result.OverageMinutes, result.NewTimeRemaining)
	}
}

func TestTracker_SessionExclusivity(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	if _, err := f.tracker.End(ctx, nil); !errors.Is(err, ledger.ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession on end, got %v", err)
	}
	if _, err := f.tracker.Cancel(ctx); !errors.Is(err, ledger.ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession on cancel, got %v", err)
	}

	if _, err := f.tracker.Start(ctx, "tablet", 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.tracker.Start(ctx, "phone", 10); !errors.Is(err, ledger.ErrSessionAlreadyActive) {
		t.Errorf("expected ErrSessionAlreadyActive, got %v", err)
	}

	active, err := f.tracker.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if active == nil || active.Category != "tablet" || active.ID == "" {
		t.Fatalf("expected active tablet session, got %+v", active)
	}
	if !active.EstimatedEndTime.Equal(active.StartTime.Add(30 * time.Minute)) {
		t.Errorf("expected estimated end 30 minutes after start, got %v", active.EstimatedEndTime)
	}
}

func TestTracker_StartRefusedEndPermitted(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	_, err := f.tracker.Start(ctx, "tablet", 200)
	if !errors.Is(err, ledger.ErrInsufficientTime) {
		t.Fatalf("expected ErrInsufficientTime, got %v", err)
	}
	var insufficient *ledger.InsufficientTimeError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected *InsufficientTimeError, got %T", err)
	}
	if insufficient.Requested != 200 || insufficient.Available != 120 || insufficient.Message != "Time's up!" {
		t.Errorf("unexpected error details %+v", insufficient)
	}

	if _, err := f.tracker.Start(ctx, "tablet", 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := f.tracker.End(ctx, intPtr(200))
	if err != nil {
		t.Fatalf("end over limit should succeed: %v", err)
	}
	if !result.WentOverLimit || result.OverageMinutes != 80 {
		t.Errorf("expected 80 minutes overage, got %+v", result)
	}
	if result.Difference != 140 {
		t.Errorf("expected difference 140, got %d", result.Difference)
	}
}

func TestTracker_EndDerivesElapsedMinutes(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	if _, err := f.tracker.Start(ctx, "phone", 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(29*time.Minute + 40*time.Second)

	result, err := f.tracker.End(ctx, nil)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if result.ActualMinutes != 30 {
		t.Errorf("expected rounded 30 minutes, got %d", result.ActualMinutes)
	}
}

func TestTracker_CancelDeductsNothing(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	if _, err := f.tracker.Start(ctx, "tablet", 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.clock.Advance(20 * time.Minute)
	if _, err := f.tracker.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	l, err := f.days.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.BaseTimeUsed != 0 || len(l.Activities) != 0 || l.ActiveSession != nil {
		t.Errorf("expected untouched ledger after cancel, got %+v", l)
	}
}

func TestTracker_Validation(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "unknown category",
			call: func() error { _, err := f.tracker.Start(ctx, "laptop", 10); return err },
			want: ledger.ErrUnknownCategory,
		},
		{
			name: "unknown quick add category",
			call: func() error { _, err := f.tracker.QuickAdd(ctx, "laptop", 10); return err },
			want: ledger.ErrUnknownCategory,
		},
		{
			name: "unknown activity",
			call: func() error { _, err := f.tracker.LogActivity(ctx, "chess", 10); return err },
			want: ledger.ErrUnknownActivity,
		},
		{
			name: "zero estimate",
			call: func() error { _, err := f.tracker.Start(ctx, "tablet", 0); return err },
			want: ledger.ErrInvalidMinutes,
		},
		{
			name: "negative activity minutes",
			call: func() error { _, err := f.tracker.LogActivity(ctx, "reading", -5); return err },
			want: ledger.ErrInvalidMinutes,
		},
		{
			name: "edit missing entry",
			call: func() error { _, err := f.tracker.EditSession(ctx, time.Unix(0, 0), 10); return err },
			want: ledger.ErrActivityNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTracker_EditSession(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	result, err := f.tracker.QuickAdd(ctx, "tablet", 40)
	if err != nil {
		t.Fatalf("quick add: %v", err)
	}

	edited, err := f.tracker.EditSession(ctx, result.Completed.Timestamp, 25)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.ActualMinutes != 25 {
		t.Errorf("expected edited minutes 25, got %d", edited.ActualMinutes)
	}

	l, err := f.days.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.BaseTimeUsed != 25 || l.DeviceUsage["tablet"] != 25 {
		t.Errorf("expected 25 used after edit, got base=%d tablet=%d", l.BaseTimeUsed, l.DeviceUsage["tablet"])
	}
}

func TestTracker_ConservationAcrossOperations(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := f.tracker.LogActivity(ctx, "reading", 100); return err },
		func() error { _, err := f.tracker.QuickAdd(ctx, "tablet", 90); return err },
		func() error { _, err := f.tracker.LogActivity(ctx, "soccer", 30); return err },
		func() error { _, err := f.tracker.QuickAdd(ctx, "phone", 60); return err },
		func() error { _, err := f.tracker.LogActivity(ctx, "fitness", 50); return err },
		func() error { _, err := f.tracker.QuickAdd(ctx, "phone", 15); return err },
	}

	for i, step := range steps {
		f.clock.Advance(time.Minute)
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		l, err := f.days.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		s := ledger.Project(l, f.limits.limits)

		earned, used := 0, 0
		for _, b := range l.BonusTime {
			earned += b.Earned
			used += b.Used
			if b.Used > b.Earned {
				t.Errorf("step %d: used %d exceeds earned %d", i, b.Used, b.Earned)
			}
		}
		want := 120 + min(earned, 30) - (l.BaseTimeUsed + used)
		if s.Totals.Remaining != want {
			t.Errorf("step %d: expected remaining %d, got %d", i, want, s.Totals.Remaining)
		}
	}
}

func TestTracker_SyncBehaviour(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	if _, err := f.tracker.Start(ctx, "tablet", 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := f.tracker.End(ctx, intPtr(10))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !result.SyncedToRemote {
		t.Error("expected synced result")
	}

	f.syncer.err = errors.New("remote down")
	result, err = f.tracker.QuickAdd(ctx, "phone", 5)
	if err != nil {
		t.Fatalf("quick add must succeed when sync fails: %v", err)
	}
	if result.SyncedToRemote {
		t.Error("expected unsynced result")
	}

	l, err := f.days.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.BaseTimeUsed != 15 {
		t.Errorf("expected local write to survive sync failure, got %d", l.BaseTimeUsed)
	}

	if f.syncer.syncNow != 2 {
		t.Errorf("expected 2 synchronous syncs, got %d", f.syncer.syncNow)
	}
	if len(f.syncer.submitted) != 1 || f.syncer.submitted[0] != "session-start" {
		t.Errorf("expected background sync on start only, got %v", f.syncer.submitted)
	}
}
