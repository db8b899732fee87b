package reconcile

import (
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
)

// Branch names the path Merge took.
type Branch string

const (
	BranchRemoteAbsent   Branch = "remote_absent"
	BranchLocalAbsent    Branch = "local_absent"
	BranchNewerDay       Branch = "newer_day"
	BranchParentOverride Branch = "parent_override"
	BranchLocalWins      Branch = "local_wins"
)

// Decision reports how a merge was resolved.
type Decision struct {
	Branch Branch `json:"branch"`
	// Reapplied counts local device sessions appended on top of the
	// remote ledger under a parent override.
	Reapplied int `json:"reapplied"`
	// Corrected counts device sessions whose minutes were edited on the
	// device and carried over a parent override.
	Corrected int `json:"corrected"`
	// Push is set when the merged ledger carries changes the remote
	// store has not seen.
	Push bool `json:"push"`
}

// Merge reconciles the device's ledger with the remote copy of the same
// day. Either side wins wholesale: the remote ledger when it carries a
// parent change the device has not seen, otherwise the local one. Local
// device sessions missing from the remote are re-applied on top of a
// remote win. The inputs are not modified.
func Merge(local, remote *ledger.Ledger, now time.Time) (*ledger.Ledger, Decision) {
	switch {
	case local == nil && remote == nil:
		return nil, Decision{Branch: BranchRemoteAbsent}
	case remote == nil:
		merged := local.Clone()
		merged.UpdatedAt = now
		return merged, Decision{Branch: BranchRemoteAbsent, Push: true}
	case local == nil:
		merged := remote.Clone()
		merged.UpdatedAt = now
		return merged, Decision{Branch: BranchLocalAbsent}
	case local.Date != remote.Date:
		if remote.Date > local.Date {
			merged := remote.Clone()
			merged.UpdatedAt = now
			return merged, Decision{Branch: BranchNewerDay}
		}
		merged := local.Clone()
		merged.UpdatedAt = now
		return merged, Decision{Branch: BranchNewerDay, Push: true}
	}

	var merged *ledger.Ledger
	decision := Decision{Branch: BranchLocalWins}

	if parentOverride(local, remote) {
		decision.Branch = BranchParentOverride
		merged, decision.Reapplied, decision.Corrected = reapplyLocal(local, remote)
	} else {
		merged = local.Clone()
	}

	merged.Normalize()
	merged.UpdatedAt = now
	decision.Push = ShouldPush(merged, remote)
	return merged, decision
}

// ShouldPush reports whether local carries any entry, of any kind, whose
// timestamp the remote ledger lacks, a device session whose minutes
// differ from the remote copy, or whether the remote has no ledger.
func ShouldPush(local, remote *ledger.Ledger) bool {
	if local == nil {
		return false
	}
	if remote == nil {
		return true
	}
	byKey := index(remote.Activities)
	for _, a := range local.Activities {
		r, ok := byKey[a.Key()]
		if !ok || edited(a, r) {
			return true
		}
	}
	return false
}

// edited reports whether local is a device session the device changed
// after remote recorded it.
func edited(local, remote ledger.Activity) bool {
	return local.Type == ledger.KindElectronic && !local.IsParent() &&
		remote.Type == ledger.KindElectronic && local.ActualMinutes != remote.ActualMinutes
}

// parentOverride reports whether the remote ledger holds a parent change
// the local ledger has not seen.
func parentOverride(local, remote *ledger.Ledger) bool {
	lc, llatest := parentEntries(local)
	rc, rlatest := parentEntries(remote)

	switch {
	case rc > lc:
		return true
	case rc == lc && rc > 0 && rlatest.After(llatest):
		return true
	case remote.ResetAt.After(local.ResetAt):
		return true
	case local.BaseTimeUsed != remote.BaseTimeUsed:
		return true
	}
	return false
}

func parentEntries(l *ledger.Ledger) (int, time.Time) {
	count := 0
	var latest time.Time
	for _, a := range l.Activities {
		if !a.IsParent() {
			continue
		}
		count++
		if a.Timestamp.After(latest) {
			latest = a.Timestamp
		}
	}
	return count, latest
}

// reapplyLocal copies remote, appends the local device sessions it is
// missing and carries over minutes edited on the device. When a parent
// reset the day after the local ledger last saw a reset, sessions logged
// before the reset stay dropped.
func reapplyLocal(local, remote *ledger.Ledger) (*ledger.Ledger, int, int) {
	merged := remote.Clone()
	merged.Normalize()

	var cutoff time.Time
	if remote.ResetAt.After(local.ResetAt) {
		cutoff = remote.ResetAt
	}

	byKey := make(map[int64]int, len(merged.Activities))
	for i, a := range merged.Activities {
		byKey[a.Key()] = i
	}

	reapplied, corrected := 0, 0
	for _, a := range local.Activities {
		if a.Type != ledger.KindElectronic || a.IsParent() {
			continue
		}
		if i, ok := byKey[a.Key()]; ok {
			r := &merged.Activities[i]
			if edited(a, *r) {
				delta := a.ActualMinutes - r.ActualMinutes
				merged.BaseTimeUsed = max(0, merged.BaseTimeUsed+delta)
				merged.DeviceUsage[a.Category] = max(0, merged.DeviceUsage[a.Category]+delta)
				r.ActualMinutes = a.ActualMinutes
				corrected++
			}
			continue
		}
		if !cutoff.IsZero() && a.Timestamp.Before(cutoff) {
			continue
		}
		merged.Activities = append(merged.Activities, a)
		merged.BaseTimeUsed += a.ActualMinutes
		merged.DeviceUsage[a.Category] += a.ActualMinutes
		reapplied++
	}
	merged.SortActivities()

	// The session state machine runs on the device.
	merged.ActiveSession = nil
	if s := local.ActiveSession; s != nil && (cutoff.IsZero() || !s.StartTime.Before(cutoff)) {
		c := *s
		merged.ActiveSession = &c
	}

	return merged, reapplied, corrected
}

// MergeSafely is the conservative merge used for imported data: the union
// of both activity logs by timestamp, and the element-wise maximum of
// every counter. It never loses an entry or lowers a counter.
func MergeSafely(existing, incoming *ledger.Ledger) *ledger.Ledger {
	if existing == nil {
		return incoming.Clone()
	}
	if incoming == nil {
		return existing.Clone()
	}

	merged := existing.Clone()
	merged.Normalize()
	if merged.Date == "" {
		merged.Date = incoming.Date
	}

	seen := keys(merged.Activities)
	for _, a := range incoming.Activities {
		if seen[a.Key()] {
			continue
		}
		seen[a.Key()] = true
		merged.Activities = append(merged.Activities, a)
	}
	merged.SortActivities()

	merged.BaseTimeUsed = max(merged.BaseTimeUsed, incoming.BaseTimeUsed)
	for k, v := range incoming.DeviceUsage {
		merged.DeviceUsage[k] = max(merged.DeviceUsage[k], v)
	}
	for k, in := range incoming.BonusTime {
		cur := merged.BonusTime[k]
		merged.BonusTime[k] = ledger.BonusBucket{
			Earned:          max(cur.Earned, in.Earned),
			Used:            max(cur.Used, in.Used),
			ActivityMinutes: max(cur.ActivityMinutes, in.ActivityMinutes),
		}
	}

	if incoming.ActiveSession != nil {
		s := *incoming.ActiveSession
		merged.ActiveSession = &s
	}
	if !incoming.CreatedAt.IsZero() && (merged.CreatedAt.IsZero() || incoming.CreatedAt.Before(merged.CreatedAt)) {
		merged.CreatedAt = incoming.CreatedAt
	}
	if incoming.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	if incoming.ResetAt.After(merged.ResetAt) {
		merged.ResetAt = incoming.ResetAt
	}
	return merged
}

// covers reports whether have already holds everything in want.
func covers(have, want *ledger.Ledger) bool {
	if want == nil {
		return true
	}
	if have == nil {
		return false
	}
	seen := keys(have.Activities)
	for _, a := range want.Activities {
		if !seen[a.Key()] {
			return false
		}
	}
	if want.BaseTimeUsed > have.BaseTimeUsed {
		return false
	}
	for k, v := range want.DeviceUsage {
		if v > have.DeviceUsage[k] {
			return false
		}
	}
	for k, w := range want.BonusTime {
		h := have.BonusTime[k]
		if w.Earned > h.Earned || w.Used > h.Used || w.ActivityMinutes > h.ActivityMinutes {
			return false
		}
	}
	return true
}

func index(activities []ledger.Activity) map[int64]ledger.Activity {
	byKey := make(map[int64]ledger.Activity, len(activities))
	for _, a := range activities {
		byKey[a.Key()] = a
	}
	return byKey
}

func keys(activities []ledger.Activity) map[int64]bool {
	seen := make(map[int64]bool, len(activities))
	for _, a := range activities {
		seen[a.Key()] = true
	}
	return seen
}
