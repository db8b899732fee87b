package ledger

import (
	"sort"
	"time"
)

// Kind discriminates activity log entries.
type Kind string

const (
	KindElectronic   Kind = "electronic"
	KindBonus        Kind = "bonus"
	KindParentAction Kind = "parent_action"
)

// ParentAction is the adjustment a parent applied.
type ParentAction string

const (
	ActionPunishment ParentAction = "punishment"
	ActionBonus      ParentAction = "bonus"
)

// AppliedByParent is recorded on parent-authored entries.
const AppliedByParent = "Parent"

// BonusBucket tracks one bonus activity for a day.
type BonusBucket struct {
	Earned          int `json:"earned"`
	Used            int `json:"used"`
	ActivityMinutes int `json:"activityMinutes"`
}

// Available returns earned minutes not yet used, never negative.
func (b BonusBucket) Available() int {
	return max(0, b.Earned-b.Used)
}

// Session is the single active device-usage session.
type Session struct {
	ID               string    `json:"id"`
	Category         string    `json:"category"`
	StartTime        time.Time `json:"startTime"`
	EstimatedMinutes int       `json:"estimatedMinutes"`
	EstimatedEndTime time.Time `json:"estimatedEndTime"`
}

// Activity is one entry of the day's activity log. Type selects which
// fields are meaningful.
type Activity struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// electronic and bonus
	Category string `json:"category,omitempty"`

	// electronic
	StartTime        time.Time `json:"startTime,omitzero"`
	EndTime          time.Time `json:"endTime,omitzero"`
	EstimatedMinutes int       `json:"estimatedMinutes,omitempty"`
	ActualMinutes    int       `json:"actualMinutes,omitempty"`
	QuickAdd         bool      `json:"quickAdd,omitempty"`
	AddedByParent    bool      `json:"addedByParent,omitempty"`
	ParentNote       string    `json:"parentNote,omitempty"`

	// bonus
	ActivityMinutes int `json:"activityMinutes,omitempty"`
	Earned          int `json:"earned,omitempty"`

	// parent_action
	Action    ParentAction `json:"action,omitempty"`
	Minutes   int          `json:"minutes,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	AppliedBy string       `json:"appliedBy,omitempty"`
}

// IsParent reports whether the entry was authored by a parent.
func (a Activity) IsParent() bool {
	return a.Type == KindParentAction || a.AddedByParent
}

// Key identifies an entry across devices. Entries are matched by exact
// timestamp equality.
func (a Activity) Key() int64 {
	return a.Timestamp.UnixNano()
}

// Ledger is the per-day time-accounting record for one child.
type Ledger struct {
	Date          string                 `json:"date"`
	BaseTimeUsed  int                    `json:"baseTimeUsed"`
	BonusTime     map[string]BonusBucket `json:"bonusTime"`
	DeviceUsage   map[string]int         `json:"electronicUsage"`
	ActiveSession *Session               `json:"activeSession"`
	Activities    []Activity             `json:"activities"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	// ResetAt is set when a parent reset the day. Entries logged before it
	// belong to the discarded day.
	ResetAt time.Time `json:"resetAt,omitzero"`
}

// New creates a zeroed ledger for date seeded with the configured keys.
func New(date string, limits Limits, now time.Time) *Ledger {
	l := &Ledger{
		Date:        date,
		BonusTime:   make(map[string]BonusBucket, len(limits.Activities)),
		DeviceUsage: make(map[string]int, len(limits.Devices)),
		Activities:  []Activity{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, a := range limits.Activities {
		l.BonusTime[a.Key] = BonusBucket{}
	}
	for _, d := range limits.Devices {
		l.DeviceUsage[d.Key] = 0
	}
	return l
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	c := *l
	c.BonusTime = make(map[string]BonusBucket, len(l.BonusTime))
	for k, v := range l.BonusTime {
		c.BonusTime[k] = v
	}
	c.DeviceUsage = make(map[string]int, len(l.DeviceUsage))
	for k, v := range l.DeviceUsage {
		c.DeviceUsage[k] = v
	}
	if l.ActiveSession != nil {
		s := *l.ActiveSession
		c.ActiveSession = &s
	}
	c.Activities = make([]Activity, len(l.Activities))
	copy(c.Activities, l.Activities)
	return &c
}

// Normalize fills nil maps left by older or hand-written documents.
func (l *Ledger) Normalize() {
	if l.BonusTime == nil {
		l.BonusTime = make(map[string]BonusBucket)
	}
	if l.DeviceUsage == nil {
		l.DeviceUsage = make(map[string]int)
	}
	if l.Activities == nil {
		l.Activities = []Activity{}
	}
}

// Bonus returns the bucket for key; a missing key reads as zero.
func (l *Ledger) Bonus(key string) BonusBucket {
	return l.BonusTime[key]
}

// Append adds an entry to the activity log keeping timestamp order.
func (l *Ledger) Append(a Activity) {
	l.Activities = append(l.Activities, a)
	l.SortActivities()
}

// SortActivities orders the log by timestamp ascending.
func (l *Ledger) SortActivities() {
	sort.SliceStable(l.Activities, func(i, j int) bool {
		return l.Activities[i].Timestamp.Before(l.Activities[j].Timestamp)
	})
}

// Find returns the index of the entry with the given timestamp, or -1.
func (l *Ledger) Find(ts time.Time) int {
	for i, a := range l.Activities {
		if a.Timestamp.Equal(ts) {
			return i
		}
	}
	return -1
}

// TotalDeviceUsage sums device minutes.
func (l *Ledger) TotalDeviceUsage() int {
	total := 0
	for _, v := range l.DeviceUsage {
		total += v
	}
	return total
}
