package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/rs/zerolog"
)

// DayStore persists the current day's ledger and the date-keyed history
// in the local store. All read-modify-write sequences run under one
// mutex, so a device never interleaves two ledger mutations.
type DayStore struct {
	local    storage.LocalStore
	boundary ledger.Boundary
	clock    ledger.Clock
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewDayStore creates a day store over local.
func NewDayStore(local storage.LocalStore, boundary ledger.Boundary, clock ledger.Clock, logger zerolog.Logger) *DayStore {
	if clock == nil {
		clock = ledger.RealClock{}
	}
	return &DayStore{
		local:    local,
		boundary: boundary,
		clock:    clock,
		logger:   logger.With().Str("component", "day-store").Logger(),
	}
}

// Load returns the stored current-day ledger as is, or nil when none
// has been written.
func (d *DayStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load(ctx)
}

// GetToday returns the ledger for the current day. A ledger left over
// from an earlier day is archived and replaced by a fresh, persisted
// ledger seeded from limits.
func (d *DayStore) GetToday(ctx context.Context, limits ledger.Limits) (*ledger.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getToday(ctx, limits)
}

// Save persists l as the current day, stamping UpdatedAt.
func (d *DayStore) Save(ctx context.Context, l *ledger.Ledger) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save(ctx, l)
}

// Archive writes l into the history under its date, replacing any
// existing entry.
func (d *DayStore) Archive(ctx context.Context, l *ledger.Ledger) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.archive(ctx, l)
}

// Update applies fn to a copy of today's ledger and persists the result.
// Nothing is written when fn fails.
func (d *DayStore) Update(ctx context.Context, limits ledger.Limits, fn func(l *ledger.Ledger) error) (*ledger.Ledger, error) {
	return d.Transform(ctx, limits, func(cur *ledger.Ledger) (*ledger.Ledger, error) {
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// Transform replaces today's ledger with the one fn returns.
func (d *DayStore) Transform(ctx context.Context, limits ledger.Limits, fn func(cur *ledger.Ledger) (*ledger.Ledger, error)) (*ledger.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, err := d.getToday(ctx, limits)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if err := d.save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Reconcile replaces today's ledger and the history with what fn returns,
// holding the lock across both. A nil history is left unchanged.
func (d *DayStore) Reconcile(ctx context.Context, limits ledger.Limits, fn func(today *ledger.Ledger, history map[string]*ledger.Ledger) (*ledger.Ledger, map[string]*ledger.Ledger, error)) (*ledger.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	today, err := d.getToday(ctx, limits)
	if err != nil {
		return nil, err
	}
	history, err := d.history(ctx)
	if err != nil {
		return nil, err
	}

	nextToday, nextHistory, err := fn(today, history)
	if err != nil {
		return nil, err
	}
	if nextHistory != nil {
		if err := d.writeHistory(ctx, nextHistory); err != nil {
			return nil, err
		}
	}
	if err := d.save(ctx, nextToday); err != nil {
		return nil, err
	}
	return nextToday, nil
}

// History returns the archived ledgers keyed by date.
func (d *DayStore) History(ctx context.Context) (map[string]*ledger.Ledger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history(ctx)
}

// HistoricalDay returns the archived ledger for date.
func (d *DayStore) HistoricalDay(ctx context.Context, date string) (*ledger.Ledger, error) {
	history, err := d.History(ctx)
	if err != nil {
		return nil, err
	}
	l, ok := history[date]
	if !ok || l == nil {
		return nil, fmt.Errorf("day %s: %w", date, storage.ErrNotFound)
	}
	return l, nil
}

// ReplaceHistory overwrites the whole history.
func (d *DayStore) ReplaceHistory(ctx context.Context, history map[string]*ledger.Ledger) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeHistory(ctx, history)
}

// PruneHistory removes archived days dated before the given date and
// returns how many were removed.
func (d *DayStore) PruneHistory(ctx context.Context, before string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	history, err := d.history(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for date := range history {
		if date < before {
			delete(history, date)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := d.writeHistory(ctx, history); err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear removes all ledger data and cached settings from the device.
func (d *DayStore) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := append([]string{storage.KeyCurrentDay, storage.KeyHistory, storage.KeyAllAppData}, storage.SettingsKeys...)
	if err := d.local.MultiRemove(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	d.logger.Info().Msg("Cleared local ledger data")
	return nil
}

func (d *DayStore) load(ctx context.Context) (*ledger.Ledger, error) {
	raw, err := d.local.Get(ctx, storage.KeyCurrentDay)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current day: %w", err)
	}

	var l ledger.Ledger
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("failed to decode current day: %w", err)
	}
	l.Normalize()
	return &l, nil
}

func (d *DayStore) getToday(ctx context.Context, limits ledger.Limits) (*ledger.Ledger, error) {
	now := d.clock.Now()
	date := limits.Date
	if date == "" {
		date = d.boundary.Date(now)
	}

	cur, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.Date == date {
		return cur, nil
	}

	if cur != nil {
		if err := d.archive(ctx, cur); err != nil {
			return nil, err
		}
		d.logger.Info().
			Str("archived", cur.Date).
			Str("today", date).
			Msg("Archived previous day")
	}

	fresh := ledger.New(date, limits, now)
	if err := d.write(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (d *DayStore) save(ctx context.Context, l *ledger.Ledger) error {
	l.UpdatedAt = d.clock.Now()
	return d.write(ctx, l)
}

func (d *DayStore) write(ctx context.Context, l *ledger.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode current day: %w", err)
	}
	if err := d.local.Set(ctx, storage.KeyCurrentDay, string(data)); err != nil {
		return fmt.Errorf("failed to save current day: %w", err)
	}
	return nil
}

func (d *DayStore) archive(ctx context.Context, l *ledger.Ledger) error {
	history, err := d.history(ctx)
	if err != nil {
		return err
	}
	history[l.Date] = l
	return d.writeHistory(ctx, history)
}

func (d *DayStore) history(ctx context.Context) (map[string]*ledger.Ledger, error) {
	history := make(map[string]*ledger.Ledger)

	raw, err := d.local.Get(ctx, storage.KeyHistory)
	if errors.Is(err, storage.ErrNotFound) {
		return history, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	if history == nil {
		history = make(map[string]*ledger.Ledger)
	}
	for date, l := range history {
		if l == nil {
			delete(history, date)
			continue
		}
		l.Normalize()
	}
	return history, nil
}

func (d *DayStore) writeHistory(ctx context.Context, history map[string]*ledger.Ledger) error {
	if history == nil {
		history = make(map[string]*ledger.Ledger)
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := d.local.Set(ctx, storage.KeyHistory, string(data)); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}
