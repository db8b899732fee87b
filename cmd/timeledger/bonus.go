package main

import (
	"context"

	"github.com/spf13/cobra"
)

var bonusCmd = &cobra.Command{
	Use:   "bonus",
	Short: "Log offline activities that earn bonus time",
}

var bonusLogCmd = &cobra.Command{
	Use:   "log ACTIVITY MINUTES",
	Short: "Log minutes spent on a bonus activity",
	Example: `  timeledger bonus log reading 40
  timeledger bonus log soccer 60`,
	Args: cobra.ExactArgs(2),
	RunE: runBonusLog,
}

func init() {
	bonusCmd.AddCommand(bonusLogCmd)
	rootCmd.AddCommand(bonusCmd)
}

func runBonusLog(cmd *cobra.Command, args []string) error {
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

	result, err := a.tracker.LogActivity(ctx, args[0], minutes)
	if err != nil {
		return err
	}
	printAccrual(result)

	a.flush(ctx)
	return nil
}
