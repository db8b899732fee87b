package reconcile

import (
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/storage"
)

// ChildMerge is the result of reconciling a device's records with the
// child's remote record.
type ChildMerge struct {
	Record *storage.ChildRecord
	Today  Decision
	// HistoryChanged is set when the merged history holds days or entries
	// the remote record lacks.
	HistoryChanged bool
}

// Push reports whether the merged record should be written back.
func (m ChildMerge) Push() bool {
	return m.Today.Push || m.HistoryChanged
}

// MergeChild reconciles local with remote. Settings and profile come from
// remote; today's ledger goes through Merge and history days are combined
// with MergeSafely. A remote ledger for a different day than the local
// one is treated as history. remote may be nil.
func MergeChild(local, remote *storage.ChildRecord, now time.Time) ChildMerge {
	var record *storage.ChildRecord
	if remote != nil {
		c := *remote
		record = &c
	} else {
		record = storage.NewChildRecord(local.Profile.Name, now)
		if local.Profile.DeviceID != "" {
			record.Profile.DeviceID = local.Profile.DeviceID
		}
	}

	var remoteToday *ledger.Ledger
	remoteHistory := make(map[string]*ledger.Ledger)
	if remote != nil {
		remoteToday = remote.TodayData
		for date, l := range remote.HistoricalData {
			if l != nil {
				remoteHistory[date] = l
			}
		}
	}

	// Yesterday's remote ledger belongs to history once the device has
	// rolled over.
	incomingHistory := remoteHistory
	if remoteToday != nil && local.TodayData != nil && remoteToday.Date != local.TodayData.Date {
		incomingHistory = make(map[string]*ledger.Ledger, len(remoteHistory)+1)
		for date, l := range remoteHistory {
			incomingHistory[date] = l
		}
		incomingHistory[remoteToday.Date] = MergeSafely(incomingHistory[remoteToday.Date], remoteToday)
		remoteToday = nil
	}

	today, decision := Merge(local.TodayData, remoteToday, now)
	if remote != nil && remote.TodayData != nil && remoteToday == nil && today != nil {
		// Remote still shows an older day; the device's day replaces it.
		decision.Push = true
	}

	history := make(map[string]*ledger.Ledger, len(local.HistoricalData)+len(incomingHistory))
	for date, l := range local.HistoricalData {
		if l != nil {
			history[date] = l.Clone()
		}
	}
	for date, l := range incomingHistory {
		history[date] = MergeSafely(history[date], l)
	}
	if today != nil {
		delete(history, today.Date)
	}

	changed := false
	for date, l := range history {
		if !covers(remoteHistory[date], l) {
			changed = true
			break
		}
	}

	record.TodayData = today
	record.HistoricalData = history
	record.UpdatedAt = now

	return ChildMerge{
		Record:         record,
		Today:          decision,
		HistoryChanged: changed,
	}
}
