package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/spf13/cobra"
)

var (
	sessionActual int
	sessionJSON   bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, end and correct device sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start DEVICE MINUTES",
	Short: "Start a device session with an estimated length",
	Example: `  timeledger session start tablet 30
  timeledger -c ~/.config/timeledger.yaml session start tv_movie 90`,
	Args: cobra.ExactArgs(2),
	RunE: runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active session and deduct the time used",
	Long: `End the active session. Without --actual the elapsed time since the session
started is used, rounded to whole minutes.`,
	Args: cobra.NoArgs,
	RunE: runSessionEnd,
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Discard the active session without deducting time",
	Args:  cobra.NoArgs,
	RunE:  runSessionCancel,
}

var sessionQuickAddCmd = &cobra.Command{
	Use:     "quick-add DEVICE MINUTES",
	Short:   "Log a finished session in one step",
	Example: `  timeledger session quick-add phone 15`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSessionQuickAdd,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List today's device sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionEditCmd = &cobra.Command{
	Use:     "edit TIMESTAMP MINUTES",
	Short:   "Correct the minutes of a logged session",
	Long:    `Correct the actual minutes of a session logged today. TIMESTAMP is the value shown by "session list".`,
	Example: `  timeledger session edit 2024-03-04T15:30:00.123456789+11:00 25`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSessionEdit,
}

func init() {
	sessionEndCmd.Flags().IntVar(&sessionActual, "actual", -1, "Actual minutes used (defaults to the elapsed time)")
	sessionListCmd.Flags().BoolVar(&sessionJSON, "json", false, "Print sessions as JSON")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionCancelCmd)
	sessionCmd.AddCommand(sessionQuickAddCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionEditCmd)
	rootCmd.AddCommand(sessionCmd)
}

func parseMinutes(s string) (int, error) {
	m, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid minutes %q: %w", s, ledger.ErrInvalidMinutes)
	}
	return m, nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	minutes, err := parseMinutes(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	session, err := a.tracker.Start(ctx, args[0], minutes)
	if err != nil {
		var insufficient *ledger.InsufficientTimeError
		if errors.As(err, &insufficient) {
			printHeader("SESSION REFUSED")
			_, _ = red.Println(insufficient.Message)
			fmt.Printf("Requested:  %s\n", formatMinutes(insufficient.Requested))
			fmt.Printf("Available:  %s\n", formatMinutes(insufficient.Available))
			printFooter()
		}
		return err
	}

	printHeader("SESSION STARTED")
	printSession(session)
	printFooter()

	a.flush(ctx)
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	var actual *int
	if cmd.Flags().Changed("actual") {
		actual = &sessionActual
	}

	result, err := a.tracker.End(context.Background(), actual)
	if err != nil {
		return err
	}
	printSessionResult(result)
	return nil
}

func runSessionCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	session, err := a.tracker.Cancel(ctx)
	if err != nil {
		return err
	}
	_, _ = yellow.Printf("Cancelled %s session started at %s, no time deducted\n", session.Category, session.StartTime.Format("15:04"))

	a.flush(ctx)
	return nil
}

func runSessionQuickAdd(cmd *cobra.Command, args []string) error {
	minutes, err := parseMinutes(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.tracker.QuickAdd(context.Background(), args[0], minutes)
	if err != nil {
		return err
	}
	printSessionResult(result)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	l, err := a.days.GetToday(ctx, a.resolver.Today(ctx))
	if err != nil {
		return err
	}

	sessions := []ledger.Activity{}
	for _, act := range l.Activities {
		if act.Type == ledger.KindElectronic {
			sessions = append(sessions, act)
		}
	}
	if sessionJSON {
		return printJSON(sessions)
	}

	printHeader("SESSIONS " + l.Date)
	if len(sessions) == 0 {
		fmt.Println("No sessions logged today")
	}
	for _, s := range sessions {
		fmt.Printf("  %-40s %-12s %s\n", s.Timestamp.Format(time.RFC3339Nano), s.Category, formatMinutes(s.ActualMinutes))
	}
	if l.ActiveSession != nil {
		fmt.Println()
		printSession(l.ActiveSession)
	}
	printFooter()
	return nil
}

func runSessionEdit(cmd *cobra.Command, args []string) error {
	ts, err := time.Parse(time.RFC3339Nano, args[0])
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", args[0], err)
	}
	minutes, err := parseMinutes(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	edited, err := a.tracker.EditSession(ctx, ts, minutes)
	if err != nil {
		return err
	}
	_, _ = green.Printf("Updated %s session to %s\n", edited.Category, formatMinutes(edited.ActualMinutes))

	a.flush(ctx)
	return nil
}
