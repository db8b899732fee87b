package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/reconcile"
)

// ErrInvalidImportFormat is returned for documents that are not exports.
var ErrInvalidImportFormat = errors.New("invalid import format")

// ImportReport summarizes a completed import.
type ImportReport struct {
	Child      string `json:"child"`
	NewDays    int    `json:"newDays"`
	MergedDays int    `json:"mergedDays"`
	TotalDays  int    `json:"totalDays"`
}

// Parse decodes and validates an export document.
func Parse(raw []byte) (*Export, error) {
	var exp Export
	if err := json.Unmarshal(raw, &exp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportFormat, err)
	}
	if strings.TrimSpace(exp.ExportInfo.ChildName) == "" {
		return nil, fmt.Errorf("%w: missing exportInfo.childName", ErrInvalidImportFormat)
	}
	for date, l := range exp.HistoricalData {
		if l == nil {
			delete(exp.HistoricalData, date)
			continue
		}
		l.Normalize()
		if l.Date == "" {
			l.Date = date
		}
	}
	if exp.TodayData != nil {
		exp.TodayData.Normalize()
		if exp.TodayData.Date == "" {
			return nil, fmt.Errorf("%w: todayData has no date", ErrInvalidImportFormat)
		}
	}
	return &exp, nil
}

// Merge folds an export into today's ledger and the history with
// reconcile.MergeSafely, so no entry is lost and no counter goes down.
// The inputs are not modified. today may be nil, in which case every
// imported day goes into history.
func Merge(today *ledger.Ledger, history map[string]*ledger.Ledger, exp *Export) (*ledger.Ledger, map[string]*ledger.Ledger, ImportReport) {
	incoming := make(map[string]*ledger.Ledger, len(exp.HistoricalData)+1)
	for date, l := range exp.HistoricalData {
		incoming[date] = l
	}
	if exp.TodayData != nil {
		incoming[exp.TodayData.Date] = reconcile.MergeSafely(incoming[exp.TodayData.Date], exp.TodayData)
	}

	merged := make(map[string]*ledger.Ledger, len(history)+len(incoming))
	for date, l := range history {
		if l != nil {
			merged[date] = l
		}
	}

	report := ImportReport{Child: exp.ExportInfo.ChildName}
	today = today.Clone()
	for date, l := range incoming {
		if today != nil && date == today.Date {
			today = reconcile.MergeSafely(today, l)
			report.MergedDays++
			continue
		}
		if merged[date] == nil {
			report.NewDays++
		} else {
			report.MergedDays++
		}
		merged[date] = reconcile.MergeSafely(merged[date], l)
	}

	report.TotalDays = len(merged)
	if today != nil {
		report.TotalDays++
	}
	return today, merged, report
}

// Import parses raw and merges every day it carries into existing.
func Import(existing map[string]*ledger.Ledger, raw []byte) (map[string]*ledger.Ledger, *ImportReport, error) {
	exp, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	_, merged, report := Merge(nil, existing, exp)
	return merged, &report, nil
}
