package ledger

// Source tags where resolved limits came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// BonusActivity is a qualifying activity that earns bonus minutes.
type BonusActivity struct {
	Key             string  `json:"key"`
	Label           string  `json:"label"`
	MaxBonusMinutes int     `json:"maxBonusMinutes"`
	Ratio           float64 `json:"ratio"`
}

// Device is a device category sessions are logged against.
type Device struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Limits are the effective limits for one day. Activities are kept in
// the parent-defined order, which is also the deduction order.
type Limits struct {
	Date           string          `json:"date"`
	DailyBase      int             `json:"dailyBase"`
	MaxDailyTotal  int             `json:"maxDailyTotal"`
	IsWeekend      bool            `json:"isWeekend"`
	Activities     []BonusActivity `json:"activities"`
	Devices        []Device        `json:"devices"`
	LockoutMessage string          `json:"lockoutMessage,omitempty"`
	Source         Source          `json:"source"`
}

// Activity looks up a bonus activity by key.
func (l Limits) Activity(key string) (BonusActivity, bool) {
	for _, a := range l.Activities {
		if a.Key == key {
			return a, true
		}
	}
	return BonusActivity{}, false
}

// Device looks up a device category by key.
func (l Limits) Device(key string) (Device, bool) {
	for _, d := range l.Devices {
		if d.Key == key {
			return d, true
		}
	}
	return Device{}, false
}

// MaxBonusTotal is the cross-activity bonus cap.
func (l Limits) MaxBonusTotal() int {
	return max(0, l.MaxDailyTotal-l.DailyBase)
}
