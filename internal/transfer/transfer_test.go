package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/storage/bolt"
	"github.com/goodtune/timeledger/internal/usage"
	"github.com/rs/zerolog"
)

type fixedLimits struct {
	limits ledger.Limits
}

func (f *fixedLimits) Today(ctx context.Context) ledger.Limits {
	return f.limits
}

var wednesday = time.Date(2024, 3, 6, 15, 0, 0, 0, time.Local)

func testLimits() ledger.Limits {
	return ledger.Limits{
		Date:          "2024-03-06",
		DailyBase:     120,
		MaxDailyTotal: 150,
		Activities: []ledger.BonusActivity{
			{Key: "reading", Label: "Reading Time", MaxBonusMinutes: 60, Ratio: 0.25},
		},
		Devices: []ledger.Device{{Key: "tablet", Label: "Tablet"}},
		Source:  ledger.SourceFallback,
	}
}

func dayLedger(date string, base int, stamps ...time.Time) *ledger.Ledger {
	l := ledger.New(date, testLimits(), stamps[0])
	l.BaseTimeUsed = base
	for _, ts := range stamps {
		l.Append(ledger.Activity{
			Type:          ledger.KindElectronic,
			Category:      "tablet",
			Timestamp:     ts,
			ActualMinutes: 10,
		})
	}
	return l
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"", PeriodToday, false},
		{"today", PeriodToday, false},
		{"week", PeriodWeek, false},
		{"month", PeriodMonth, false},
		{"year", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePeriod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePeriod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRange(t *testing.T) {
	day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.Local)
	sunday := time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name   string
		period Period
		day    time.Time
		want   DateRange
	}{
		{"today", PeriodToday, day, DateRange{"2024-03-06", "2024-03-06", "Today"}},
		{"week from wednesday", PeriodWeek, day, DateRange{"2024-03-04", "2024-03-10", "Week"}},
		{"week from sunday", PeriodWeek, sunday, DateRange{"2024-03-04", "2024-03-10", "Week"}},
		{"month", PeriodMonth, day, DateRange{"2024-03-01", "2024-03-31", "Month"}},
		{"leap february", PeriodMonth, time.Date(2024, 2, 10, 0, 0, 0, 0, time.Local), DateRange{"2024-02-01", "2024-02-29", "Month"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Range(tt.period, tt.day); got != tt.want {
				t.Errorf("Range() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		period Period
		want   string
	}{
		{PeriodToday, "EmmaSmith_TimeTracker_20240306.json"},
		{PeriodWeek, "EmmaSmith_TimeTracker_Week_20240306.json"},
		{PeriodMonth, "EmmaSmith_TimeTracker_202403.json"},
	}

	for _, tt := range tests {
		if got := Filename("Emma Smith!", tt.period, wednesday); got != tt.want {
			t.Errorf("Filename(%s) = %q, want %q", tt.period, got, tt.want)
		}
	}
}

func TestBuild_FiltersHistory(t *testing.T) {
	history := map[string]*ledger.Ledger{
		"2024-02-28": dayLedger("2024-02-28", 10, wednesday.AddDate(0, 0, -7)),
		"2024-03-04": dayLedger("2024-03-04", 20, wednesday.AddDate(0, 0, -2)),
		"2024-03-05": dayLedger("2024-03-05", 30, wednesday.AddDate(0, 0, -1)),
	}
	today := dayLedger("2024-03-06", 40, wednesday)
	day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.Local)

	exp := Build("Emma", PeriodWeek, day, wednesday, today, history)

	if len(exp.HistoricalData) != 2 {
		t.Errorf("expected 2 days in range, got %d", len(exp.HistoricalData))
	}
	if _, ok := exp.HistoricalData["2024-02-28"]; ok {
		t.Error("expected day outside the week to be filtered")
	}
	if exp.Summary.TotalDays != 3 {
		t.Errorf("expected 3 total days, got %d", exp.Summary.TotalDays)
	}
	if exp.Summary.DateRange != "2024-03-04 to 2024-03-10" {
		t.Errorf("unexpected summary range %q", exp.Summary.DateRange)
	}
	if exp.ExportInfo.AppVersion != "1.0.0" || exp.ExportInfo.ChildName != "Emma" {
		t.Errorf("unexpected export info %+v", exp.ExportInfo)
	}

	exp = Build("Emma", PeriodToday, day, wednesday, nil, history)
	if exp.Summary.TotalDays != 0 {
		t.Errorf("expected no days without today's ledger, got %d", exp.Summary.TotalDays)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed", `{broken`},
		{"not an object", `[1,2,3]`},
		{"missing child", `{"exportInfo":{}}`},
		{"blank child", `{"exportInfo":{"childName":"  "}}`},
		{"today without date", `{"exportInfo":{"childName":"Emma"},"todayData":{"baseTimeUsed":3}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); !errors.Is(err, ErrInvalidImportFormat) {
				t.Errorf("expected ErrInvalidImportFormat, got %v", err)
			}
		})
	}
}

func TestImport_MergesDays(t *testing.T) {
	existing := map[string]*ledger.Ledger{
		"2024-03-04": dayLedger("2024-03-04", 30, wednesday.AddDate(0, 0, -2)),
	}

	exp := &Export{
		ExportInfo: Info{ChildName: "Emma"},
		TodayData:  dayLedger("2024-03-05", 15, wednesday.AddDate(0, 0, -1)),
		HistoricalData: map[string]*ledger.Ledger{
			"2024-03-03": dayLedger("2024-03-03", 5, wednesday.AddDate(0, 0, -3)),
			"2024-03-04": dayLedger("2024-03-04", 20, wednesday.AddDate(0, 0, -2).Add(time.Hour)),
		},
	}
	raw, err := json.Marshal(exp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	merged, report, err := Import(existing, raw)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	want := ImportReport{Child: "Emma", NewDays: 2, MergedDays: 1, TotalDays: 3}
	if *report != want {
		t.Errorf("report = %+v, want %+v", *report, want)
	}

	day := merged["2024-03-04"]
	if len(day.Activities) != 2 || day.BaseTimeUsed != 30 {
		t.Errorf("expected union of entries with max counters, got %d entries and %d used", len(day.Activities), day.BaseTimeUsed)
	}
	if len(existing["2024-03-04"].Activities) != 1 {
		t.Error("existing history must not be modified")
	}

	// Importing the same document again changes nothing.
	again, report, err := Import(merged, raw)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if report.NewDays != 0 || len(again["2024-03-04"].Activities) != 2 {
		t.Errorf("expected idempotent import, got %+v", report)
	}
}

func TestExporter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := &ledger.TestClock{CurrentTime: wednesday}
	limits := &fixedLimits{limits: testLimits()}

	newExporter := func(name string) (*Exporter, *usage.DayStore) {
		local, err := bolt.Open(filepath.Join(t.TempDir(), name))
		if err != nil {
			t.Fatalf("open local store: %v", err)
		}
		t.Cleanup(func() { _ = local.Close() })
		days := usage.NewDayStore(local, ledger.Boundary{}, clock, zerolog.Nop())
		return NewExporter(days, limits, "Emma", ledger.Boundary{}, clock, zerolog.Nop()), days
	}

	child, childDays := newExporter("child.bolt")
	if _, err := childDays.Update(ctx, limits.limits, func(l *ledger.Ledger) error {
		l.BaseTimeUsed = 25
		l.DeviceUsage["tablet"] = 25
		l.Append(ledger.Activity{Type: ledger.KindElectronic, Category: "tablet", Timestamp: wednesday, ActualMinutes: 25})
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := childDays.Archive(ctx, dayLedger("2024-03-05", 40, wednesday.AddDate(0, 0, -1))); err != nil {
		t.Fatalf("archive: %v", err)
	}

	exp, err := child.Export(ctx, PeriodWeek)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := json.Marshal(exp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	other, otherDays := newExporter("other.bolt")
	report, err := other.Import(ctx, raw)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.NewDays != 1 || report.MergedDays != 1 || report.TotalDays != 2 {
		t.Errorf("unexpected report %+v", report)
	}

	today, err := otherDays.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if today.BaseTimeUsed != 25 || len(today.Activities) != 1 {
		t.Errorf("expected today's session imported, got %+v", today)
	}
	if _, err := otherDays.HistoricalDay(ctx, "2024-03-05"); err != nil {
		t.Errorf("expected imported history day: %v", err)
	}

	if _, err := other.Import(ctx, []byte(`{"todayData":{}}`)); !errors.Is(err, ErrInvalidImportFormat) {
		t.Errorf("expected ErrInvalidImportFormat, got %v", err)
	}
}
