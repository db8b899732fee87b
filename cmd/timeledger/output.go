package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/usage"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold)
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func printHeader(title string) {
	fmt.Println()
	_, _ = cyan.Println(rule)
	_, _ = cyan.Println(title)
	_, _ = cyan.Println(rule)
	fmt.Println()
}

func printFooter() {
	fmt.Println()
	_, _ = cyan.Println(rule)
	fmt.Println()
}

func printJSON(v any) error {
	return writeJSON(os.Stdout, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatMinutes renders minutes as 1h 05m, keeping the sign.
func formatMinutes(m int) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	if m < 60 {
		return fmt.Sprintf("%s%dm", sign, m)
	}
	return fmt.Sprintf("%s%dh %02dm", sign, m/60, m%60)
}

// remainingColor picks green, yellow under 15 minutes, red when out.
func remainingColor(m int) *color.Color {
	switch {
	case m <= 0:
		return red
	case m < 15:
		return yellow
	}
	return green
}

func printSummary(s ledger.Summary) {
	printHeader("TIME SUMMARY " + s.Date)

	fmt.Printf("Source:     %s\n", s.Limits.Source)
	fmt.Printf("Base:       %s of %s used\n", formatMinutes(s.BaseTime.Used), formatMinutes(s.BaseTime.Available))
	fmt.Printf("Bonus:      %s earned, %s used (max %s)\n",
		formatMinutes(s.BonusTotals.TotalEarned),
		formatMinutes(s.BonusTotals.TotalUsed),
		formatMinutes(s.BonusTotals.MaxTotalPossible))
	fmt.Print("Remaining:  ")
	_, _ = remainingColor(s.Totals.Remaining).Println(formatMinutes(s.Totals.Remaining))

	if len(s.Bonus) > 0 {
		fmt.Println()
		_, _ = cyan.Println("Bonus activities")
		for _, b := range s.Bonus {
			line := fmt.Sprintf("  %-20s %4d min logged, %s of %s earned", b.Label, b.ActivityMinutes, formatMinutes(b.Earned), formatMinutes(b.MaxPossible))
			if b.Earned >= b.MaxPossible && b.MaxPossible > 0 {
				_, _ = green.Println(line + "  (cap reached)")
			} else {
				fmt.Println(line)
			}
		}
	}

	if s.DeviceTotal > 0 {
		fmt.Println()
		_, _ = cyan.Println("Device usage")
		for _, d := range s.Devices {
			if d.Minutes > 0 {
				fmt.Printf("  %-20s %s\n", d.Label, formatMinutes(d.Minutes))
			}
		}
	}

	if s.ActiveSession != nil {
		fmt.Println()
		printSession(s.ActiveSession)
	}

	printFooter()
}

func printSession(s *ledger.Session) {
	_, _ = yellow.Printf("Active session on %s\n", s.Category)
	fmt.Printf("  Started:    %s\n", s.StartTime.Format("15:04"))
	fmt.Printf("  Estimate:   %s (until %s)\n", formatMinutes(s.EstimatedMinutes), s.EstimatedEndTime.Format("15:04"))
}

func printSessionResult(r *usage.SessionResult) {
	printHeader("SESSION LOGGED")

	fmt.Printf("Device:     %s\n", r.Category)
	fmt.Printf("Actual:     %s\n", formatMinutes(r.ActualMinutes))
	if r.EstimatedMinutes > 0 && !r.Completed.QuickAdd {
		fmt.Printf("Estimate:   %s (%+d)\n", formatMinutes(r.EstimatedMinutes), r.Difference)
	}
	fmt.Print("Remaining:  ")
	_, _ = remainingColor(r.NewTimeRemaining).Println(formatMinutes(r.NewTimeRemaining))
	if r.WentOverLimit {
		_, _ = red.Printf("Over limit by %s\n", formatMinutes(r.OverageMinutes))
	}
	printSynced(r.SyncedToRemote)

	printFooter()
}

func printAccrual(r *ledger.AccrualResult) {
	printHeader("BONUS ACTIVITY LOGGED")

	fmt.Printf("Activity:   %s\n", r.Activity)
	fmt.Printf("Logged:     %s today (+%s)\n", formatMinutes(r.ActivityMinutes), formatMinutes(r.AddedThisSession))
	fmt.Printf("Earned:     %s of %s (+%s)\n", formatMinutes(r.EarnedToday), formatMinutes(r.MaxPossible), formatMinutes(r.BonusEarnedThisSession))
	fmt.Printf("All bonus:  %s\n", formatMinutes(r.TotalBonusEarned))
	if r.BonusCapReached {
		_, _ = yellow.Println("Bonus cap reached for this activity")
	}

	printFooter()
}

func printSynced(synced bool) {
	if synced {
		_, _ = green.Println("Synced with family")
		return
	}
	_, _ = yellow.Println("Saved on this device, will sync later")
}

func printLedgerLine(l *ledger.Ledger) {
	bonus := 0
	for _, b := range l.BonusTime {
		bonus += b.Earned
	}
	fmt.Printf("  %s  base %-8s bonus %-8s devices %-8s %d entries\n",
		l.Date,
		formatMinutes(l.BaseTimeUsed),
		formatMinutes(bonus),
		formatMinutes(l.TotalDeviceUsage()),
		len(l.Activities))
}

func printActivities(l *ledger.Ledger) {
	for _, a := range l.Activities {
		ts := a.Timestamp.Format("15:04:05")
		switch a.Type {
		case ledger.KindElectronic:
			note := ""
			if a.AddedByParent {
				note = " (parent"
				if a.ParentNote != "" {
					note += ": " + a.ParentNote
				}
				note += ")"
			} else if a.QuickAdd {
				note = " (quick add)"
			}
			fmt.Printf("  %s  %-12s %-12s %s%s\n", ts, "session", a.Category, formatMinutes(a.ActualMinutes), note)
		case ledger.KindBonus:
			fmt.Printf("  %s  %-12s %-12s %s logged, +%s\n", ts, "bonus", a.Category, formatMinutes(a.ActivityMinutes), formatMinutes(a.Earned))
		case ledger.KindParentAction:
			line := fmt.Sprintf("  %s  %-12s %-12s %s", ts, "parent", string(a.Action), formatMinutes(a.Minutes))
			if a.Reason != "" {
				line += "  " + strings.TrimSpace(a.Reason)
			}
			if a.Action == ledger.ActionPunishment {
				_, _ = red.Println(line)
			} else {
				_, _ = green.Println(line)
			}
		}
	}
}
