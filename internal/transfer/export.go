package transfer

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/goodtune/timeledger/internal/usage"
	"github.com/rs/zerolog"
)

// Period selects how much history an export covers.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name. An empty name means today.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodToday:
		return PeriodToday, nil
	case PeriodWeek, PeriodMonth:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown export period %q (want today, week or month)", s)
}

// DateRange is the inclusive span of ledger dates an export covers.
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Label     string `json:"label"`
}

// Info describes an export document.
type Info struct {
	ChildName  string    `json:"childName"`
	ExportDate time.Time `json:"exportDate"`
	Period     Period    `json:"period"`
	DateRange  DateRange `json:"dateRange"`
	AppVersion string    `json:"appVersion"`
}

// Summary is the human-oriented footer of an export.
type Summary struct {
	TotalDays int    `json:"totalDays"`
	DateRange string `json:"dateRange"`
}

// Export is the document shared from a child device to a parent.
type Export struct {
	ExportInfo     Info                      `json:"exportInfo"`
	TodayData      *ledger.Ledger            `json:"todayData"`
	HistoricalData map[string]*ledger.Ledger `json:"historicalData"`
	Summary        Summary                   `json:"summary"`
}

// Range returns the dates covered by period for the ledger day. Weeks run
// Monday to Sunday.
func Range(period Period, day time.Time) DateRange {
	switch period {
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return DateRange{
			StartDate: start.Format(ledger.DateLayout),
			EndDate:   start.AddDate(0, 0, 6).Format(ledger.DateLayout),
			Label:     "Week",
		}
	case PeriodMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return DateRange{
			StartDate: start.Format(ledger.DateLayout),
			EndDate:   start.AddDate(0, 1, -1).Format(ledger.DateLayout),
			Label:     "Month",
		}
	default:
		date := day.Format(ledger.DateLayout)
		return DateRange{StartDate: date, EndDate: date, Label: "Today"}
	}
}

// Build assembles an export. History is filtered to the period's range;
// today's ledger is always included when present.
func Build(child string, period Period, day, now time.Time, today *ledger.Ledger, history map[string]*ledger.Ledger) *Export {
	dr := Range(period, day)

	filtered := make(map[string]*ledger.Ledger)
	for date, l := range history {
		if l != nil && date >= dr.StartDate && date <= dr.EndDate {
			filtered[date] = l
		}
	}

	total := len(filtered)
	if today != nil {
		total++
	}

	return &Export{
		ExportInfo: Info{
			ChildName:  child,
			ExportDate: now,
			Period:     period,
			DateRange:  dr,
			AppVersion: storage.DefaultAppVersion,
		},
		TodayData:      today,
		HistoricalData: filtered,
		Summary: Summary{
			TotalDays: total,
			DateRange: dr.StartDate + " to " + dr.EndDate,
		},
	}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Filename returns the suggested file name for an export.
func Filename(child string, period Period, now time.Time) string {
	name := unsafeName.ReplaceAllString(child, "")
	switch period {
	case PeriodWeek:
		return fmt.Sprintf("%s_TimeTracker_Week_%s.json", name, now.Format("20060102"))
	case PeriodMonth:
		return fmt.Sprintf("%s_TimeTracker_%s.json", name, now.Format("200601"))
	default:
		return fmt.Sprintf("%s_TimeTracker_%s.json", name, now.Format("20060102"))
	}
}

// Exporter moves ledgers between this device and export documents.
type Exporter struct {
	days     *usage.DayStore
	limits   usage.LimitsSource
	child    string
	boundary ledger.Boundary
	clock    ledger.Clock
	logger   zerolog.Logger
}

// NewExporter creates an exporter for the device's child.
func NewExporter(days *usage.DayStore, limits usage.LimitsSource, child string, boundary ledger.Boundary, clock ledger.Clock, logger zerolog.Logger) *Exporter {
	if clock == nil {
		clock = ledger.RealClock{}
	}
	return &Exporter{
		days:     days,
		limits:   limits,
		child:    child,
		boundary: boundary,
		clock:    clock,
		logger:   logger.With().Str("component", "transfer").Logger(),
	}
}

// Export builds an export of the device's ledgers. It does not roll the
// current day over.
func (e *Exporter) Export(ctx context.Context, period Period) (*Export, error) {
	today, err := e.days.Load(ctx)
	if err != nil {
		return nil, err
	}
	history, err := e.days.History(ctx)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	exp := Build(e.child, period, e.boundary.Day(now), now, today, history)

	e.logger.Info().
		Str("period", string(period)).
		Int("days", exp.Summary.TotalDays).
		Msg("Export built")

	return exp, nil
}

// Import merges an export document into the device's ledgers. A day
// matching the current ledger is merged into it; every other day goes
// into history.
func (e *Exporter) Import(ctx context.Context, raw []byte) (*ImportReport, error) {
	exp, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	var report ImportReport
	_, err = e.days.Reconcile(ctx, e.limits.Today(ctx), func(today *ledger.Ledger, history map[string]*ledger.Ledger) (*ledger.Ledger, map[string]*ledger.Ledger, error) {
		var merged map[string]*ledger.Ledger
		today, merged, report = Merge(today, history, exp)
		return today, merged, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save imported ledgers: %w", err)
	}

	if report.Child != e.child {
		e.logger.Warn().Str("export_child", report.Child).Msg("Imported data exported by a different child")
	}
	e.logger.Info().
		Int("new_days", report.NewDays).
		Int("merged_days", report.MergedDays).
		Int("total_days", report.TotalDays).
		Msg("Import complete")

	return &report, nil
}
