package ledger

import (
	"fmt"
	"time"
)

// DateLayout is the layout of ledger dates (local ISO date).
const DateLayout = "2006-01-02"

// Clock provides time information for ledger operations.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock provides fixed time for testing.
type TestClock struct {
	CurrentTime time.Time
}

// Now returns the test time.
func (t *TestClock) Now() time.Time {
	return t.CurrentTime
}

// Advance moves the test time forward.
func (t *TestClock) Advance(d time.Duration) {
	t.CurrentTime = t.CurrentTime.Add(d)
}

// Boundary is the local time of day at which a new ledger day begins.
type Boundary struct {
	Hour   int
	Minute int
}

// ParseBoundary parses a HH:MM reset time.
func ParseBoundary(s string) (Boundary, error) {
	if s == "" {
		return Boundary{}, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Boundary{}, fmt.Errorf("invalid reset time %q: %w", s, err)
	}
	return Boundary{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Day returns the start of the ledger day containing now.
// Before the boundary, yesterday is still the current day.
func (b Boundary) Day(now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), b.Hour, b.Minute, 0, 0, now.Location())
	if now.Before(today) {
		today = today.AddDate(0, 0, -1)
	}
	return time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, now.Location())
}

// Date returns the ledger date for now.
func (b Boundary) Date(now time.Time) string {
	return b.Day(now).Format(DateLayout)
}

// Next returns the next boundary strictly after now.
func (b Boundary) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), b.Hour, b.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (b Boundary) String() string {
	return fmt.Sprintf("%02d:%02d", b.Hour, b.Minute)
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
