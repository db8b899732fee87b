package parent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/limits"
	"github.com/goodtune/timeledger/internal/metrics"
	"github.com/goodtune/timeledger/internal/reconcile"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/goodtune/timeledger/internal/transfer"
	"github.com/rs/zerolog"
)

// Kind is the type of a parent action.
type Kind string

const (
	KindSession    Kind = "session"
	KindPunishment Kind = "punishment"
	KindBonus      Kind = "bonus"
	KindReset      Kind = "reset"
)

// ErrInvalidSettings is returned for limits or bonus settings out of range.
var ErrInvalidSettings = errors.New("invalid settings")

// Action is an adjustment a parent makes to a child's current day.
type Action struct {
	Kind Kind
	// Device is the category of a session added by the parent.
	Device  string
	Minutes int
	// Note is the session note or the punishment/bonus reason.
	Note string
}

func (a Action) validate() error {
	switch a.Kind {
	case KindReset:
		return nil
	case KindSession:
		if a.Device == "" {
			return fmt.Errorf("session needs a device: %w", ledger.ErrUnknownCategory)
		}
	case KindPunishment, KindBonus:
	default:
		return fmt.Errorf("unknown parent action %q", a.Kind)
	}
	if a.Minutes <= 0 {
		return fmt.Errorf("%s of %d minutes: %w", a.Kind, a.Minutes, ledger.ErrInvalidMinutes)
	}
	return nil
}

// Settings is a change to one child's limits. Nil fields are unchanged.
type Settings struct {
	Limits        *storage.ChildLimits
	BonusSettings storage.BonusSettings
}

func (s Settings) validate() error {
	if l := s.Limits; l != nil {
		if l.Weekday <= 0 || l.Weekend <= 0 {
			return fmt.Errorf("%w: daily limits must be positive", ErrInvalidSettings)
		}
		if l.MaxDailyTotal < 0 {
			return fmt.Errorf("%w: max daily total cannot be negative", ErrInvalidSettings)
		}
	}
	for _, b := range s.BonusSettings {
		if b.Key == "" {
			return fmt.Errorf("%w: bonus activity without a key", ErrInvalidSettings)
		}
		if b.Ratio <= 0 || b.Ratio > 1 {
			return fmt.Errorf("%w: %s ratio %.2f outside (0, 1]", ErrInvalidSettings, b.Key, b.Ratio)
		}
		if b.MaxBonusMinutes < 0 {
			return fmt.Errorf("%w: %s max bonus cannot be negative", ErrInvalidSettings, b.Key)
		}
	}
	return nil
}

// Service applies parent changes directly to the remote family blob.
// Child devices pick them up on their next sync.
type Service struct {
	remote   storage.RemoteStore
	boundary ledger.Boundary
	clock    ledger.Clock
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewService creates a parent service over the remote store.
func NewService(remote storage.RemoteStore, boundary ledger.Boundary, clock ledger.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = ledger.RealClock{}
	}
	return &Service{
		remote:   remote,
		boundary: boundary,
		clock:    clock,
		logger:   logger.With().Str("component", "parent").Logger(),
	}
}

// Apply performs action on the child's current day and returns the
// updated ledger. A missing or stale day is replaced by a fresh one
// first, archiving the stale day into history.
func (s *Service) Apply(ctx context.Context, password, child string, action Action) (*ledger.Ledger, error) {
	if err := action.validate(); err != nil {
		return nil, err
	}

	var out *ledger.Ledger
	err := s.update(ctx, password, func(family *storage.Family, now time.Time) error {
		rec := family.Child(child)
		if rec == nil {
			return fmt.Errorf("%q: %w", child, ErrChildNotFound)
		}

		day := s.boundary.Day(now)
		date := day.Format(ledger.DateLayout)
		lim := limits.Build(rec.Limits, rec.BonusSettings, family.ParentSettings, date, ledger.IsWeekend(day), ledger.SourceRemote)
		today := currentDay(rec, lim, now)

		switch action.Kind {
		case KindSession:
			if _, ok := lim.Device(action.Device); !ok {
				return fmt.Errorf("%q: %w", action.Device, ledger.ErrUnknownCategory)
			}
			today.Append(ledger.Activity{
				Type:             ledger.KindElectronic,
				Category:         action.Device,
				StartTime:        now.Add(-time.Duration(action.Minutes) * time.Minute),
				EndTime:          now,
				EstimatedMinutes: action.Minutes,
				ActualMinutes:    action.Minutes,
				AddedByParent:    true,
				ParentNote:       action.Note,
				Timestamp:        now,
			})
			today.BaseTimeUsed += action.Minutes
			today.DeviceUsage[action.Device] += action.Minutes

		case KindPunishment:
			today.BaseTimeUsed += action.Minutes
			today.Append(parentEntry(ledger.ActionPunishment, action.Minutes, action.Note, now))

		case KindBonus:
			today.BaseTimeUsed = max(0, today.BaseTimeUsed-action.Minutes)
			today.Append(parentEntry(ledger.ActionBonus, -action.Minutes, action.Note, now))

		case KindReset:
			today = ledger.New(date, lim, now)
			today.ResetAt = now
			delete(rec.HistoricalData, date)
		}

		today.UpdatedAt = now
		rec.TodayData = today
		rec.UpdatedAt = now
		out = today.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ParentActions.WithLabelValues(string(action.Kind)).Inc()
	s.logger.Info().
		Str("child", child).
		Str("action", string(action.Kind)).
		Int("minutes", action.Minutes).
		Int("base_used", out.BaseTimeUsed).
		Msg("Parent action applied")

	return out, nil
}

// UpdateSettings changes a child's limits and bonus settings.
func (s *Service) UpdateSettings(ctx context.Context, password, child string, settings Settings) error {
	if err := settings.validate(); err != nil {
		return err
	}

	err := s.update(ctx, password, func(family *storage.Family, now time.Time) error {
		rec := family.Child(child)
		if rec == nil {
			return fmt.Errorf("%q: %w", child, ErrChildNotFound)
		}
		if settings.Limits != nil {
			rec.Limits = *settings.Limits
		}
		if settings.BonusSettings != nil {
			rec.BonusSettings = settings.BonusSettings
		}
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ParentActions.WithLabelValues("settings").Inc()
	s.logger.Info().Str("child", child).Msg("Child settings updated")
	return nil
}

// SetPassword replaces the family sync password with a bcrypt hash of
// newPassword.
func (s *Service) SetPassword(ctx context.Context, password, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: empty password", ErrInvalidSettings)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.update(ctx, password, func(family *storage.Family, now time.Time) error {
		ensureParentSettings(family, now)
		family.ParentSettings.SyncPassword = hash
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ParentActions.WithLabelValues("password").Inc()
	s.logger.Info().Msg("Sync password changed")
	return nil
}

// Import merges a child's export document into the child's remote
// record and returns what changed.
func (s *Service) Import(ctx context.Context, password string, raw []byte) (*transfer.ImportReport, error) {
	exp, err := transfer.Parse(raw)
	if err != nil {
		return nil, err
	}

	var report transfer.ImportReport
	err = s.update(ctx, password, func(family *storage.Family, now time.Time) error {
		rec := family.Child(exp.ExportInfo.ChildName)
		if rec == nil {
			return fmt.Errorf("%q: %w", exp.ExportInfo.ChildName, ErrChildNotFound)
		}
		rec.TodayData, rec.HistoricalData, report = transfer.Merge(rec.TodayData, rec.HistoricalData, exp)
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ParentActions.WithLabelValues("import").Inc()
	s.logger.Info().
		Str("child", report.Child).
		Int("new_days", report.NewDays).
		Int("merged_days", report.MergedDays).
		Msg("Export imported")

	return &report, nil
}

// Family returns the current family blob after checking the password.
func (s *Service) Family(ctx context.Context, password string) (*storage.Family, error) {
	family, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := CheckPassword(family.ParentSettings, password); err != nil {
		return nil, err
	}
	return family, nil
}

// Seed writes the initial family document with default settings and one
// record per child. It refuses to overwrite an existing family.
func (s *Service) Seed(ctx context.Context, familyName, password string, children []string) (*storage.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.remote.GetAllData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch family: %w", err)
	}
	if existing != nil {
		return nil, ErrFamilyExists
	}

	if familyName == "" {
		familyName = storage.DefaultFamilyName
	}
	if password == "" {
		password = storage.DefaultSyncPassword
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	family := storage.NewFamily()
	ps := storage.DefaultParentSettings(familyName, hash, now)
	family.ParentSettings = &ps
	ss := storage.DefaultSystemSettings()
	ss.DailyActivityResetTime = s.boundary.String()
	family.SystemSettings = &ss
	for _, name := range children {
		family.Children[name] = storage.NewChildRecord(name, now)
	}

	if err := s.remote.SetAllData(ctx, family); err != nil {
		return nil, fmt.Errorf("failed to save family: %w", err)
	}

	metrics.ParentActions.WithLabelValues("seed").Inc()
	s.logger.Info().Str("family", familyName).Strs("children", children).Msg("Family seeded")
	return family, nil
}

// update runs fn against the fetched family after the password check and
// writes the whole blob back. Nothing is written when fn fails.
func (s *Service) update(ctx context.Context, password string, fn func(family *storage.Family, now time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	family, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	if err := CheckPassword(family.ParentSettings, password); err != nil {
		return err
	}

	now := s.clock.Now()
	if err := fn(family, now); err != nil {
		return err
	}

	ensureParentSettings(family, now)
	family.ParentSettings.LastParentUpdate = now

	if err := s.remote.SetAllData(ctx, family); err != nil {
		return fmt.Errorf("failed to save family: %w", err)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context) (*storage.Family, error) {
	family, err := s.remote.GetAllData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch family: %w", err)
	}
	if family == nil {
		return nil, ErrNoFamily
	}
	return family, nil
}

// currentDay returns a working copy of the child's ledger for the day in
// lim, archiving a stale ledger into history.
func currentDay(rec *storage.ChildRecord, lim ledger.Limits, now time.Time) *ledger.Ledger {
	if rec.HistoricalData == nil {
		rec.HistoricalData = make(map[string]*ledger.Ledger)
	}

	cur := rec.TodayData
	if cur != nil && cur.Date == lim.Date {
		today := cur.Clone()
		today.Normalize()
		return today
	}
	if cur != nil && cur.Date != "" {
		rec.HistoricalData[cur.Date] = reconcile.MergeSafely(rec.HistoricalData[cur.Date], cur)
	}
	return ledger.New(lim.Date, lim, now)
}

func parentEntry(action ledger.ParentAction, minutes int, reason string, now time.Time) ledger.Activity {
	return ledger.Activity{
		Type:      ledger.KindParentAction,
		Action:    action,
		Minutes:   minutes,
		Reason:    reason,
		AppliedBy: ledger.AppliedByParent,
		Timestamp: now,
	}
}

func ensureParentSettings(family *storage.Family, now time.Time) {
	if family.ParentSettings == nil {
		ps := storage.DefaultParentSettings(storage.DefaultFamilyName, storage.DefaultSyncPassword, now)
		family.ParentSettings = &ps
	}
}
