package ledger

import (
	"math"
	"time"
)

// Deduction reports where deducted minutes were taken from.
type Deduction struct {
	FromBase  int
	FromBonus map[string]int
	// Overage is the part no source had headroom for. It is charged to
	// base time so that the summary shows negative remaining time.
	Overage int
}

// Deduct consumes minutes from base headroom first, then from each bonus
// activity's headroom in configuration order. Bonus used never exceeds
// earned; whatever is left is charged to base time as overage.
func Deduct(l *Ledger, limits Limits, minutes int) Deduction {
	l.Normalize()
	d := Deduction{FromBonus: make(map[string]int)}
	if minutes <= 0 {
		return d
	}
	remaining := minutes

	if headroom := limits.DailyBase - l.BaseTimeUsed; headroom > 0 {
		take := min(headroom, remaining)
		l.BaseTimeUsed += take
		d.FromBase = take
		remaining -= take
	}

	for _, a := range limits.Activities {
		if remaining == 0 {
			break
		}
		b := l.BonusTime[a.Key]
		headroom := b.Earned - b.Used
		if headroom <= 0 {
			continue
		}
		take := min(headroom, remaining)
		b.Used += take
		l.BonusTime[a.Key] = b
		d.FromBonus[a.Key] = take
		remaining -= take
	}

	if remaining > 0 {
		l.BaseTimeUsed += remaining
		d.Overage = remaining
	}
	return d
}

// AccrualResult describes one logActivity event.
type AccrualResult struct {
	Activity               string  `json:"activity"`
	ActivityMinutes        int     `json:"activityMinutes"`
	EarnedToday            int     `json:"earnedToday"`
	MaxPossible            int     `json:"maxPossible"`
	AddedThisSession       int     `json:"addedThisSession"`
	BonusEarnedThisSession int     `json:"bonusEarnedThisSession"`
	TotalBonusEarned       int     `json:"totalBonusEarned"`
	BonusCapReached        bool    `json:"bonusCapReached"`
	Ratio                  float64 `json:"ratio"`
	Source                 Source  `json:"source"`
}

// Earned converts activity minutes into capped bonus minutes.
func Earned(activityMinutes int, a BonusActivity) int {
	raw := int(math.Floor(float64(activityMinutes) * a.Ratio))
	return max(0, min(raw, a.MaxBonusMinutes))
}

// Accrue adds minutes of activity a to the ledger and recomputes its
// earned bonus. Only the per-activity cap is applied here; the
// cross-activity cap is applied by Project.
func Accrue(l *Ledger, limits Limits, a BonusActivity, minutes int, at time.Time) AccrualResult {
	l.Normalize()
	b := l.BonusTime[a.Key]
	before := b.Earned

	b.ActivityMinutes += minutes
	b.Earned = Earned(b.ActivityMinutes, a)
	l.BonusTime[a.Key] = b

	l.Append(Activity{
		Type:            KindBonus,
		Category:        a.Key,
		ActivityMinutes: minutes,
		Earned:          b.Earned,
		Timestamp:       at,
	})

	total := 0
	for _, bucket := range l.BonusTime {
		total += bucket.Earned
	}

	return AccrualResult{
		Activity:               a.Key,
		ActivityMinutes:        b.ActivityMinutes,
		EarnedToday:            b.Earned,
		MaxPossible:            a.MaxBonusMinutes,
		AddedThisSession:       minutes,
		BonusEarnedThisSession: max(0, b.Earned-before),
		TotalBonusEarned:       total,
		BonusCapReached:        b.Earned >= a.MaxBonusMinutes,
		Ratio:                  a.Ratio,
		Source:                 limits.Source,
	}
}
