package limits

import (
	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/storage"
)

// Build assembles the limits for one day from stored settings. ps may be
// nil, in which case the default catalogs are used.
//
// Activities follow the parent's bonusActivityTypes order, followed by any
// configured activity the catalog does not list. Activities with a ratio
// outside (0, 1] are not offered. MaxDailyTotal is raised to the daily
// base when stored below it.
func Build(cl storage.ChildLimits, bs storage.BonusSettings, ps *storage.ParentSettings, date string, weekend bool, source ledger.Source) ledger.Limits {
	base := cl.Weekday
	if weekend {
		base = cl.Weekend
	}

	labels := storage.DefaultActivityLabels()
	devices := storage.DefaultDevices()
	lockout := storage.DefaultLockoutMessage
	if ps != nil {
		if len(ps.BonusActivityTypes) > 0 {
			labels = ps.BonusActivityTypes
		}
		if len(ps.ElectronicCategories) > 0 {
			devices = ps.ElectronicCategories
		}
		if ps.AppLockoutMessage != "" {
			lockout = ps.AppLockoutMessage
		}
	}

	l := ledger.Limits{
		Date:           date,
		DailyBase:      base,
		MaxDailyTotal:  max(cl.MaxDailyTotal, base),
		IsWeekend:      weekend,
		LockoutMessage: lockout,
		Source:         source,
	}

	added := make(map[string]bool, len(bs))
	add := func(s storage.BonusSetting) {
		if added[s.Key] || s.Ratio <= 0 || s.Ratio > 1 {
			return
		}
		added[s.Key] = true
		label, ok := labels.Label(s.Key)
		if !ok {
			label = s.Key
		}
		l.Activities = append(l.Activities, ledger.BonusActivity{
			Key:             s.Key,
			Label:           label,
			MaxBonusMinutes: max(0, s.MaxBonusMinutes),
			Ratio:           s.Ratio,
		})
	}
	for _, entry := range labels {
		if s, ok := bs.Get(entry.Key); ok {
			add(s)
		}
	}
	for _, s := range bs {
		add(s)
	}

	for _, d := range devices {
		l.Devices = append(l.Devices, ledger.Device{Key: d.Key, Label: d.Label})
	}

	return l
}
