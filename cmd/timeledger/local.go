package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/spf13/cobra"
)

var localJSON bool

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "List what this device keeps in its local store",
	Long: `Lists every key in the device's local store with its size and when it
was last written. Useful to check whether a sync or settings refresh has
reached this device.`,
	Args: cobra.NoArgs,
	RunE: runLocal,
}

func init() {
	localCmd.Flags().BoolVar(&localJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(localCmd)
}

func runLocal(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := storage.Describe(context.Background(), a.local)
	if err != nil {
		return err
	}
	if localJSON {
		return printJSON(entries)
	}

	printHeader("LOCAL STORE (" + a.cfg.Storage.Driver + ")")
	writeEntries(os.Stdout, entries, time.Now())
	printFooter()
	return nil
}

func writeEntries(w io.Writer, entries []storage.Entry, now time.Time) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "Nothing stored yet")
		return
	}
	for _, e := range entries {
		written := "unknown"
		if !e.UpdatedAt.IsZero() {
			written = humanize.RelTime(e.UpdatedAt, now, "ago", "from now")
		}
		_, _ = fmt.Fprintf(w, "  %-20s %10s  %s\n", e.Key, humanize.Bytes(uint64(e.Bytes)), written)
	}
}
