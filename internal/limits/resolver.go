package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/metrics"
	"github.com/goodtune/timeledger/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultMemoSize is the number of resolved (child, date) entries kept in memory.
const DefaultMemoSize = 32

// Config holds resolver configuration
type Config struct {
	Child    string
	Boundary ledger.Boundary
	Clock    ledger.Clock
	MemoSize int
}

// Resolver produces today's effective limits. Resolution order is the
// local cache, then the remote family blob, then the static fallback.
type Resolver struct {
	local    storage.LocalStore
	remote   storage.RemoteStore
	child    string
	boundary ledger.Boundary
	clock    ledger.Clock
	memo     *lru.Cache[string, ledger.Limits]
	logger   zerolog.Logger
}

// NewResolver creates a resolver. remote may be nil when the device runs
// without a remote store.
func NewResolver(local storage.LocalStore, remote storage.RemoteStore, cfg Config, logger zerolog.Logger) (*Resolver, error) {
	if cfg.Child == "" {
		return nil, errors.New("child name is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = ledger.RealClock{}
	}
	if cfg.MemoSize <= 0 {
		cfg.MemoSize = DefaultMemoSize
	}

	memo, err := lru.New[string, ledger.Limits](cfg.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create limits memo: %w", err)
	}

	return &Resolver{
		local:    local,
		remote:   remote,
		child:    cfg.Child,
		boundary: cfg.Boundary,
		clock:    cfg.Clock,
		memo:     memo,
		logger:   logger.With().Str("component", "limits").Logger(),
	}, nil
}

// Today returns the limits for the current ledger day. It never fails;
// the Source field records where the values came from.
func (r *Resolver) Today(ctx context.Context) ledger.Limits {
	day := r.boundary.Day(r.clock.Now())
	date := day.Format(ledger.DateLayout)
	weekend := ledger.IsWeekend(day)

	memoKey := r.child + "|" + date
	if l, ok := r.memo.Get(memoKey); ok {
		return l
	}

	l, ok := r.fromCache(ctx, date, weekend)
	if !ok {
		l, ok = r.fromRemote(ctx, date, weekend)
	}
	if ok {
		r.memo.Add(memoKey, l)
	} else {
		r.logger.Warn().Str("date", date).Msg("Using fallback limits")
		l = r.fallback(ctx, date, weekend)
	}

	metrics.LimitsResolved.WithLabelValues(string(l.Source)).Inc()
	return l
}

// Invalidate drops the cached settings so the next resolution goes to
// the remote store.
func (r *Resolver) Invalidate(ctx context.Context) error {
	r.memo.Purge()
	if err := r.local.MultiRemove(ctx, storage.SettingsKeys...); err != nil {
		return fmt.Errorf("failed to clear cached settings: %w", err)
	}
	r.logger.Info().Msg("Cleared cached settings")
	return nil
}

// Store caches the settings carried by a family blob that was already
// fetched, such as during a sync.
func (r *Resolver) Store(ctx context.Context, family *storage.Family) error {
	if family == nil {
		return nil
	}
	defer r.memo.Purge()

	values := make(map[string]any)
	if child := family.Child(r.child); child != nil {
		values[storage.KeyLimits] = child.Limits
		values[storage.KeyBonusSettings] = child.BonusSettings
	}
	if family.ParentSettings != nil {
		values[storage.KeyParentSettings] = family.ParentSettings
	}
	if family.SystemSettings != nil {
		values[storage.KeySystemSettings] = family.SystemSettings
	}

	for key, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if err := r.local.Set(ctx, key, string(data)); err != nil {
			return fmt.Errorf("failed to cache %s: %w", key, err)
		}
	}
	return nil
}

func (r *Resolver) fromCache(ctx context.Context, date string, weekend bool) (ledger.Limits, bool) {
	var cl storage.ChildLimits
	var bs storage.BonusSettings
	if !r.readCached(ctx, storage.KeyLimits, &cl) || !r.readCached(ctx, storage.KeyBonusSettings, &bs) {
		return ledger.Limits{}, false
	}

	var ps *storage.ParentSettings
	var cached storage.ParentSettings
	if r.readCached(ctx, storage.KeyParentSettings, &cached) {
		ps = &cached
	}

	return r.build(cl, bs, ps, date, weekend, ledger.SourceCache), true
}

func (r *Resolver) fromRemote(ctx context.Context, date string, weekend bool) (ledger.Limits, bool) {
	if r.remote == nil {
		return ledger.Limits{}, false
	}

	family, err := r.remote.GetAllData(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to fetch limits from remote store")
		return ledger.Limits{}, false
	}
	child := family.Child(r.child)
	if child == nil {
		r.logger.Debug().Str("child", r.child).Msg("Child not present in remote store")
		return ledger.Limits{}, false
	}

	if err := r.Store(ctx, family); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to cache remote settings")
	}

	return r.build(child.Limits, child.BonusSettings, family.ParentSettings, date, weekend, ledger.SourceRemote), true
}

func (r *Resolver) fallback(ctx context.Context, date string, weekend bool) ledger.Limits {
	ss := storage.DefaultSystemSettings()
	var cached storage.SystemSettings
	if r.readCached(ctx, storage.KeySystemSettings, &cached) && cached.DefaultWeekdayTotal > 0 {
		ss = cached
	}

	cl := storage.ChildLimits{
		Weekday:       ss.DefaultWeekdayTotal,
		Weekend:       ss.DefaultWeekendTotal,
		MaxDailyTotal: ss.DefaultMaxDailyTotal,
	}
	return r.build(cl, storage.DefaultBonusSettings(), nil, date, weekend, ledger.SourceFallback)
}

func (r *Resolver) build(cl storage.ChildLimits, bs storage.BonusSettings, ps *storage.ParentSettings, date string, weekend bool, source ledger.Source) ledger.Limits {
	l := Build(cl, bs, ps, date, weekend, source)
	if l.MaxDailyTotal != cl.MaxDailyTotal {
		r.logger.Warn().
			Int("daily_base", l.DailyBase).
			Int("max_daily_total", cl.MaxDailyTotal).
			Msg("Max daily total below daily base, clamping")
	}
	return l
}

func (r *Resolver) readCached(ctx context.Context, key string, v any) bool {
	raw, err := r.local.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn().Err(err).Str("key", key).Msg("Failed to read cached settings")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Ignoring corrupt cached settings")
		return false
	}
	return true
}
