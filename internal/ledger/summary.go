package ledger

import "sort"

// BaseTime is the base allowance breakdown. Remaining is clamped at zero.
type BaseTime struct {
	Available int `json:"available"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// BonusLine is the per-activity bonus breakdown.
type BonusLine struct {
	Key             string  `json:"key"`
	Label           string  `json:"label"`
	Earned          int     `json:"earned"`
	Used            int     `json:"used"`
	Available       int     `json:"available"`
	MaxPossible     int     `json:"maxPossible"`
	ActivityMinutes int     `json:"activityMinutes"`
	Ratio           float64 `json:"ratio"`
}

// BonusTotals aggregates bonus time. TotalEarned carries the
// cross-activity cap.
type BonusTotals struct {
	TotalEarned      int `json:"totalEarned"`
	TotalUsed        int `json:"totalUsed"`
	TotalAvailable   int `json:"totalAvailable"`
	MaxTotalPossible int `json:"maxTotalPossible"`
}

// DeviceLine is usage for one device category.
type DeviceLine struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Minutes int    `json:"minutes"`
}

// Totals is the overall budget. Remaining may be negative.
type Totals struct {
	Available int `json:"available"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// Summary is a read-only view over a ledger and its limits.
type Summary struct {
	Date          string       `json:"date"`
	BaseTime      BaseTime     `json:"baseTime"`
	Bonus         []BonusLine  `json:"bonusTime"`
	BonusTotals   BonusTotals  `json:"bonusTotals"`
	Devices       []DeviceLine `json:"electronicUsage"`
	DeviceTotal   int          `json:"electronicTotal"`
	Totals        Totals       `json:"totals"`
	ActiveSession *Session     `json:"activeSession,omitempty"`
	Limits        Limits       `json:"limits"`
}

// Project derives the summary for l under limits. It never mutates l.
func Project(l *Ledger, limits Limits) Summary {
	s := Summary{
		Date:   l.Date,
		Limits: limits,
		BaseTime: BaseTime{
			Available: limits.DailyBase,
			Used:      l.BaseTimeUsed,
			Remaining: max(0, limits.DailyBase-l.BaseTimeUsed),
		},
		ActiveSession: l.ActiveSession,
	}

	seen := make(map[string]bool, len(limits.Activities))
	for _, a := range limits.Activities {
		seen[a.Key] = true
		b := l.Bonus(a.Key)
		s.Bonus = append(s.Bonus, BonusLine{
			Key:             a.Key,
			Label:           a.Label,
			Earned:          b.Earned,
			Used:            b.Used,
			Available:       b.Available(),
			MaxPossible:     a.MaxBonusMinutes,
			ActivityMinutes: b.ActivityMinutes,
			Ratio:           a.Ratio,
		})
	}
	// Keys dropped from the configuration still hold earned/used minutes.
	for _, key := range sortedKeys(l.BonusTime) {
		if seen[key] {
			continue
		}
		b := l.BonusTime[key]
		s.Bonus = append(s.Bonus, BonusLine{
			Key:             key,
			Label:           key,
			Earned:          b.Earned,
			Used:            b.Used,
			Available:       b.Available(),
			ActivityMinutes: b.ActivityMinutes,
		})
	}

	earned, used := 0, 0
	for _, b := range l.BonusTime {
		earned += b.Earned
		used += b.Used
	}
	capped := min(earned, limits.MaxBonusTotal())
	s.BonusTotals = BonusTotals{
		TotalEarned:      capped,
		TotalUsed:        used,
		TotalAvailable:   max(0, capped-used),
		MaxTotalPossible: limits.MaxBonusTotal(),
	}

	seenDevice := make(map[string]bool, len(limits.Devices))
	for _, d := range limits.Devices {
		seenDevice[d.Key] = true
		s.Devices = append(s.Devices, DeviceLine{Key: d.Key, Label: d.Label, Minutes: l.DeviceUsage[d.Key]})
	}
	for _, key := range sortedKeys(l.DeviceUsage) {
		if !seenDevice[key] {
			s.Devices = append(s.Devices, DeviceLine{Key: key, Label: key, Minutes: l.DeviceUsage[key]})
		}
	}
	s.DeviceTotal = l.TotalDeviceUsage()

	available := limits.DailyBase + capped
	totalUsed := l.BaseTimeUsed + used
	s.Totals = Totals{
		Available: available,
		Used:      totalUsed,
		Remaining: available - totalUsed,
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
