package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrRemoteUnavailable is returned when the remote store cannot be reached.
var ErrRemoteUnavailable = errors.New("storage: remote store unavailable")

// Local store keys.
const (
	KeyCurrentDay     = "currentDayData"
	KeyHistory        = "historicalTimeData"
	KeyUserName       = "userName"
	KeyLimits         = "limits"
	KeyBonusSettings  = "bonusSettings"
	KeySystemSettings = "systemSettings"
	KeyParentSettings = "parentSettings"
	KeyAllAppData     = "allAppData"
)

// SettingsKeys are the cached copies of remote configuration.
var SettingsKeys = []string{KeyLimits, KeyBonusSettings, KeySystemSettings, KeyParentSettings}

// LocalStore is the device-local key-value store. Get returns ErrNotFound
// for a missing key.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	MultiRemove(ctx context.Context, keys ...string) error
	Close() error
}

// RemoteStore holds the single family blob shared between devices.
// GetAllData returns nil, nil when no blob exists yet. SetAllData
// replaces the whole blob.
type RemoteStore interface {
	GetAllData(ctx context.Context) (*Family, error)
	SetAllData(ctx context.Context, family *Family) error
	Close() error
}
