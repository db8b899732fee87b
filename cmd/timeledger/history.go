package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/spf13/cobra"
)

var (
	historyJSON  bool
	historyPrune int
)

var historyCmd = &cobra.Command{
	Use:   "history [DATE]",
	Short: "List archived days, or show one day in detail",
	Example: `  timeledger history
  timeledger history 2024-03-04
  timeledger history --prune 30`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print as JSON")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "Remove archived days older than this many days")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	if historyPrune > 0 {
		day := a.boundary.Day(time.Now())
		before := day.AddDate(0, 0, -historyPrune).Format(ledger.DateLayout)
		removed, err := a.days.PruneHistory(ctx, before)
		if err != nil {
			return err
		}
		_, _ = green.Printf("Removed %d days before %s\n", removed, before)
		return nil
	}

	if len(args) == 1 {
		l, err := a.days.HistoricalDay(ctx, args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(l)
		}
		printHeader("DAY " + l.Date)
		printLedgerLine(l)
		fmt.Println()
		printActivities(l)
		printFooter()
		return nil
	}

	history, err := a.days.History(ctx)
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(history)
	}

	dates := make([]string, 0, len(history))
	for date := range history {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	printHeader("HISTORY")
	if len(dates) == 0 {
		fmt.Println("No archived days")
	}
	for _, date := range dates {
		printLedgerLine(history[date])
	}
	printFooter()
	return nil
}
