package storage

import (
	"strings"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
)

// Fallback values used when neither the cache nor the remote store can
// provide configuration.
const (
	DefaultDailyBase      = 120
	DefaultMaxDailyTotal  = 150
	DefaultAppVersion     = "1.0.0"
	DefaultLockoutMessage = "Time's up! Please ask a parent for more time."
	DefaultResetTime      = "00:00"
	DefaultFamilyName     = "TimeLedger Family"
	DefaultSyncPassword   = "P@rent"
)

// DefaultDevices returns the fallback device categories.
func DefaultDevices() Catalog {
	return Catalog{
		{Key: "tablet", Label: "Tablet"},
		{Key: "phone", Label: "Phone"},
		{Key: "playstation", Label: "PlayStation"},
		{Key: "switch", Label: "Switch"},
		{Key: "tv_movie", Label: "TV/Movies"},
		{Key: "computer", Label: "Computer"},
	}
}

// DefaultActivityLabels returns the fallback bonus activity labels.
func DefaultActivityLabels() Catalog {
	return Catalog{
		{Key: "soccer", Label: "Soccer Practice"},
		{Key: "fitness", Label: "Physical Activity"},
		{Key: "reading", Label: "Reading Time"},
	}
}

// DefaultBonusSettings returns the fallback bonus activity settings.
func DefaultBonusSettings() BonusSettings {
	return BonusSettings{
		{Key: "soccer", MaxBonusMinutes: 30, Ratio: 0.5},
		{Key: "fitness", MaxBonusMinutes: 30, Ratio: 1.0},
		{Key: "reading", MaxBonusMinutes: 60, Ratio: 0.25},
	}
}

// DefaultSystemSettings returns the fallback system settings.
func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		DefaultWeekdayTotal:    DefaultDailyBase,
		DefaultWeekendTotal:    DefaultDailyBase,
		DefaultMaxDailyTotal:   DefaultMaxDailyTotal,
		EnableNotifications:    true,
		DailyActivityResetTime: DefaultResetTime,
		AppVersion:             DefaultAppVersion,
	}
}

// DefaultParentSettings returns parent settings for a new family.
func DefaultParentSettings(familyName, password string, now time.Time) ParentSettings {
	return ParentSettings{
		SyncPassword:         password,
		LastParentUpdate:     now,
		FamilyName:           familyName,
		ElectronicCategories: DefaultDevices(),
		BonusActivityTypes:   DefaultActivityLabels(),
		AppLockoutMessage:    DefaultLockoutMessage,
	}
}

// NewChildRecord returns a record for a child with default limits.
func NewChildRecord(name string, now time.Time) *ChildRecord {
	return &ChildRecord{
		Profile: Profile{
			Name:     name,
			DeviceID: strings.ToLower(strings.ReplaceAll(name, " ", "_")) + "_device_001",
		},
		Limits: ChildLimits{
			Weekday:       DefaultDailyBase,
			Weekend:       DefaultDailyBase,
			MaxDailyTotal: DefaultMaxDailyTotal,
		},
		BonusSettings:  DefaultBonusSettings(),
		HistoricalData: make(map[string]*ledger.Ledger),
		CreatedAt:      now,
	}
}
