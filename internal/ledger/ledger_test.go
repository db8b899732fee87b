package ledger

import (
	"errors"
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{
		Date:          "2024-03-04",
		DailyBase:     120,
		MaxDailyTotal: 150,
		Activities: []BonusActivity{
			{Key: "soccer", Label: "Soccer Practice", MaxBonusMinutes: 30, Ratio: 0.5},
			{Key: "fitness", Label: "Physical Activity", MaxBonusMinutes: 30, Ratio: 1.0},
			{Key: "reading", Label: "Reading Time", MaxBonusMinutes: 60, Ratio: 0.25},
		},
		Devices: []Device{
			{Key: "tablet", Label: "Tablet"},
			{Key: "phone", Label: "Phone"},
		},
		Source: SourceFallback,
	}
}

var testNow = time.Date(2024, 3, 4, 15, 0, 0, 0, time.Local)

func TestNewSeedsConfiguredKeys(t *testing.T) {
	l := New("2024-03-04", testLimits(), testNow)

	if len(l.BonusTime) != 3 {
		t.Fatalf("expected 3 bonus buckets, got %d", len(l.BonusTime))
	}
	if len(l.DeviceUsage) != 2 {
		t.Fatalf("expected 2 device counters, got %d", len(l.DeviceUsage))
	}
	if l.BaseTimeUsed != 0 || l.ActiveSession != nil || len(l.Activities) != 0 {
		t.Errorf("expected zeroed ledger, got %+v", l)
	}
	if !l.CreatedAt.Equal(testNow) {
		t.Errorf("expected createdAt %v, got %v", testNow, l.CreatedAt)
	}
}

func TestCloneIsDeep(t *testing.T) {
	l := New("2024-03-04", testLimits(), testNow)
	l.ActiveSession = &Session{ID: "s1", Category: "tablet"}
	l.Append(Activity{Type: KindElectronic, Category: "tablet", Timestamp: testNow})

	c := l.Clone()
	c.BonusTime["soccer"] = BonusBucket{Earned: 10}
	c.DeviceUsage["tablet"] = 99
	c.ActiveSession.Category = "phone"
	c.Activities[0].Category = "phone"

	if l.BonusTime["soccer"].Earned != 0 {
		t.Error("bonus map shared between clones")
	}
	if l.DeviceUsage["tablet"] != 0 {
		t.Error("device map shared between clones")
	}
	if l.ActiveSession.Category != "tablet" {
		t.Error("active session shared between clones")
	}
	if l.Activities[0].Category != "tablet" {
		t.Error("activities shared between clones")
	}
}

func TestDeduct(t *testing.T) {
	tests := []struct {
		name         string
		baseUsed     int
		bonus        map[string]BonusBucket
		minutes      int
		wantBase     int
		wantUsed     map[string]int
		wantOverage  int
		wantFromBase int
	}{
		{
			name:         "base only",
			minutes:      50,
			wantBase:     50,
			wantFromBase: 50,
		},
		{
			name:         "spills into bonus in configured order",
			baseUsed:     110,
			bonus:        map[string]BonusBucket{"soccer": {Earned: 5}, "fitness": {Earned: 30}},
			minutes:      25,
			wantBase:     120,
			wantUsed:     map[string]int{"soccer": 5, "fitness": 10},
			wantFromBase: 10,
		},
		{
			name:         "skips exhausted bonus",
			baseUsed:     120,
			bonus:        map[string]BonusBucket{"soccer": {Earned: 5, Used: 5}, "reading": {Earned: 10}},
			minutes:      8,
			wantBase:     120,
			wantUsed:     map[string]int{"soccer": 5, "reading": 8},
			wantFromBase: 0,
		},
		{
			name:        "remainder charged to base as overage",
			baseUsed:    120,
			minutes:     20,
			wantBase:    140,
			wantOverage: 20,
		},
		{
			name:     "non-positive is a no-op",
			baseUsed: 30,
			minutes:  0,
			wantBase: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New("2024-03-04", testLimits(), testNow)
			l.BaseTimeUsed = tt.baseUsed
			for k, v := range tt.bonus {
				l.BonusTime[k] = v
			}

			d := Deduct(l, testLimits(), tt.minutes)

			if l.BaseTimeUsed != tt.wantBase {
				t.Errorf("baseTimeUsed = %d, want %d", l.BaseTimeUsed, tt.wantBase)
			}
			if d.Overage != tt.wantOverage {
				t.Errorf("overage = %d, want %d", d.Overage, tt.wantOverage)
			}
			if d.FromBase != tt.wantFromBase {
				t.Errorf("fromBase = %d, want %d", d.FromBase, tt.wantFromBase)
			}
			for k, want := range tt.wantUsed {
				if got := l.BonusTime[k].Used; got != want {
					t.Errorf("bonus %s used = %d, want %d", k, got, want)
				}
			}
			for k, b := range l.BonusTime {
				if b.Used > b.Earned {
					t.Errorf("bonus %s used %d exceeds earned %d", k, b.Used, b.Earned)
				}
			}
		})
	}
}

func TestAccrueCapsPerActivity(t *testing.T) {
	limits := testLimits()
	fitness, _ := limits.Activity("fitness")
	l := New("2024-03-04", limits, testNow)

	res := Accrue(l, limits, fitness, 40, testNow)

	if res.EarnedToday != 30 {
		t.Errorf("expected earned capped at 30, got %d", res.EarnedToday)
	}
	if res.ActivityMinutes != 40 {
		t.Errorf("expected 40 activity minutes retained, got %d", res.ActivityMinutes)
	}
	if !res.BonusCapReached {
		t.Error("expected bonus cap reached")
	}
	if res.BonusEarnedThisSession != 30 {
		t.Errorf("expected 30 earned this session, got %d", res.BonusEarnedThisSession)
	}

	again := Accrue(l, limits, fitness, 10, testNow.Add(time.Minute))
	if again.BonusEarnedThisSession != 0 {
		t.Errorf("expected nothing earned past cap, got %d", again.BonusEarnedThisSession)
	}
	if again.ActivityMinutes != 50 {
		t.Errorf("expected 50 activity minutes, got %d", again.ActivityMinutes)
	}
	if len(l.Activities) != 2 || l.Activities[1].Type != KindBonus || l.Activities[1].Earned != 30 {
		t.Errorf("expected two bonus log entries, got %+v", l.Activities)
	}
}

func TestEarnedMonotonic(t *testing.T) {
	for _, a := range testLimits().Activities {
		prev := 0
		for minutes := 0; minutes <= 300; minutes++ {
			got := Earned(minutes, a)
			if got < prev {
				t.Fatalf("%s: earned decreased from %d to %d at %d minutes", a.Key, prev, got, minutes)
			}
			if got > a.MaxBonusMinutes {
				t.Fatalf("%s: earned %d exceeds cap %d", a.Key, got, a.MaxBonusMinutes)
			}
			prev = got
		}
	}
}

func TestEarnedFloorsFractions(t *testing.T) {
	reading, _ := testLimits().Activity("reading")
	if got := Earned(7, reading); got != 1 {
		t.Errorf("expected floor(7*0.25)=1, got %d", got)
	}
}

func TestProjectScenario(t *testing.T) {
	limits := testLimits()
	fitness, _ := limits.Activity("fitness")
	l := New("2024-03-04", limits, testNow)

	Accrue(l, limits, fitness, 40, testNow)
	Deduct(l, limits, 50)

	s := Project(l, limits)
	if l.BaseTimeUsed != 50 {
		t.Errorf("expected baseTimeUsed 50, got %d", l.BaseTimeUsed)
	}
	if s.Totals.Remaining != 100 {
		t.Errorf("expected remaining 100, got %d", s.Totals.Remaining)
	}
	if s.Totals.Available != 150 {
		t.Errorf("expected available 150, got %d", s.Totals.Available)
	}
}

func TestProjectNegativeRemaining(t *testing.T) {
	limits := testLimits()
	l := New("2024-03-04", limits, testNow)
	l.BaseTimeUsed = 120
	Deduct(l, limits, 20)

	s := Project(l, limits)
	if s.Totals.Remaining != -20 {
		t.Errorf("expected totals.remaining -20, got %d", s.Totals.Remaining)
	}
	if s.BaseTime.Remaining != 0 {
		t.Errorf("expected baseTime.remaining clamped to 0, got %d", s.BaseTime.Remaining)
	}
}

func TestProjectClampsCrossActivityBonus(t *testing.T) {
	limits := testLimits()
	l := New("2024-03-04", limits, testNow)
	l.BonusTime["soccer"] = BonusBucket{Earned: 30, ActivityMinutes: 60}
	l.BonusTime["reading"] = BonusBucket{Earned: 20, ActivityMinutes: 80}

	s := Project(l, limits)
	if s.BonusTotals.TotalEarned != 30 {
		t.Errorf("expected capped bonus 30, got %d", s.BonusTotals.TotalEarned)
	}
	// per-activity values are reported as stored
	if s.Bonus[0].Earned != 30 || s.Bonus[2].Earned != 20 {
		t.Errorf("expected stored per-activity earned values, got %+v", s.Bonus)
	}
	if s.Totals.Available != 150 {
		t.Errorf("expected available 150, got %d", s.Totals.Available)
	}
}

func TestProjectConservation(t *testing.T) {
	limits := testLimits()
	l := New("2024-03-04", limits, testNow)
	soccer, _ := limits.Activity("soccer")
	reading, _ := limits.Activity("reading")

	ops := []func(){
		func() { Accrue(l, limits, soccer, 20, testNow) },
		func() { Deduct(l, limits, 45) },
		func() { Accrue(l, limits, reading, 30, testNow) },
		func() { Deduct(l, limits, 90) },
		func() { Accrue(l, limits, soccer, 100, testNow) },
		func() { Deduct(l, limits, 60) },
	}

	for i, op := range ops {
		op()
		s := Project(l, limits)

		earned, used := 0, 0
		for _, b := range l.BonusTime {
			earned += b.Earned
			used += b.Used
		}
		available := limits.DailyBase + min(earned, limits.MaxBonusTotal())
		want := available - (l.BaseTimeUsed + used)
		if s.Totals.Remaining != want {
			t.Fatalf("step %d: remaining %d, recomputed %d", i, s.Totals.Remaining, want)
		}
		if s.Totals.Remaining != s.Totals.Available-s.Totals.Used {
			t.Fatalf("step %d: totals inconsistent: %+v", i, s.Totals)
		}
	}
}

func TestProjectToleratesMissingKeys(t *testing.T) {
	limits := testLimits()
	l := &Ledger{Date: "2024-03-04"}

	s := Project(l, limits)
	if s.Totals.Remaining != 120 {
		t.Errorf("expected 120 remaining, got %d", s.Totals.Remaining)
	}
	if len(s.Bonus) != 3 {
		t.Errorf("expected 3 bonus lines, got %d", len(s.Bonus))
	}
}

func TestInsufficientTimeError(t *testing.T) {
	var err error = &InsufficientTimeError{Requested: 30, Available: 10}
	if !errors.Is(err, ErrInsufficientTime) {
		t.Error("expected errors.Is to match ErrInsufficientTime")
	}
	var ite *InsufficientTimeError
	if !errors.As(err, &ite) || ite.Available != 10 {
		t.Errorf("expected errors.As to expose amounts, got %v", ite)
	}
}

func TestBoundary(t *testing.T) {
	tests := []struct {
		name     string
		reset    string
		now      time.Time
		wantDate string
		wantNext time.Time
	}{
		{
			name:     "midnight",
			reset:    "00:00",
			now:      time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
			wantDate: "2024-03-04",
			wantNext: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "before early-morning boundary",
			reset:    "04:30",
			now:      time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC),
			wantDate: "2024-03-03",
			wantNext: time.Date(2024, 3, 4, 4, 30, 0, 0, time.UTC),
		},
		{
			name:     "after early-morning boundary",
			reset:    "04:30",
			now:      time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC),
			wantDate: "2024-03-04",
			wantNext: time.Date(2024, 3, 5, 4, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBoundary(tt.reset)
			if err != nil {
				t.Fatalf("parse boundary: %v", err)
			}
			if got := b.Date(tt.now); got != tt.wantDate {
				t.Errorf("date = %s, want %s", got, tt.wantDate)
			}
			if got := b.Next(tt.now); !got.Equal(tt.wantNext) {
				t.Errorf("next = %v, want %v", got, tt.wantNext)
			}
		})
	}

	if _, err := ParseBoundary("25:99"); err == nil {
		t.Error("expected invalid reset time to fail")
	}
}

func TestIsWeekend(t *testing.T) {
	sat := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	mon := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	if !IsWeekend(sat) || !IsWeekend(sat.AddDate(0, 0, 1)) {
		t.Error("expected Saturday and Sunday to be weekend")
	}
	if IsWeekend(mon) {
		t.Error("expected Monday to be a weekday")
	}
}
