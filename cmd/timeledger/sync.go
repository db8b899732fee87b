package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/timeledger/internal/reconcile"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/spf13/cobra"
)

var syncRefresh bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile this device with the family record now",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncRefresh, "refresh", false, "Drop cached settings before syncing")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	if syncRefresh {
		if err := a.resolver.Invalidate(ctx); err != nil {
			return err
		}
	}

	result, err := a.syncer.Sync(ctx)
	status := a.syncer.Status()

	printHeader("SYNC")
	switch {
	case err == nil:
		_, _ = green.Printf("Status:     %s\n", status)
		fmt.Printf("Merge:      %s\n", result.Decision.Branch)
		if result.Decision.Reapplied > 0 {
			fmt.Printf("Re-applied: %d local sessions on top of parent changes\n", result.Decision.Reapplied)
		}
		if result.Decision.Corrected > 0 {
			fmt.Printf("Corrected:  %d sessions edited on this device\n", result.Decision.Corrected)
		}
		if result.Pushed {
			fmt.Println("Pushed:     yes")
		} else {
			fmt.Println("Pushed:     no changes to send")
		}
	case errors.Is(err, storage.ErrRemoteUnavailable):
		_, _ = yellow.Printf("Status:     %s\n", status)
		fmt.Println("The family store is unreachable, using saved settings")
	default:
		_, _ = red.Printf("Status:     %s\n", status)
		fmt.Printf("Error:      %v\n", err)
	}
	printFooter()

	if err != nil && status == reconcile.StatusError {
		return err
	}
	return nil
}
