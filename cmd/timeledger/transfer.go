package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goodtune/timeledger/internal/parent"
	"github.com/goodtune/timeledger/internal/transfer"
	"github.com/spf13/cobra"
)

var (
	exportPeriod string
	exportDir    string
	exportStdout bool
	importParent bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export this device's ledgers for a parent",
	Example: `  timeledger export --period week
  timeledger export --period month --dir /tmp
  timeledger export --stdout`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge an export into this device or the family record",
	Long: `Merge an export file into this device's ledgers. With --parent the export is
merged into the child's record in the family store instead, which needs the
family sync password. Imports never remove entries or lower counters.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	exportCmd.Flags().StringVar(&exportPeriod, "period", "today", "Period to export: today, week or month")
	exportCmd.Flags().StringVar(&exportDir, "dir", ".", "Directory to write the export file to")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Write the export to stdout instead of a file")

	importCmd.Flags().BoolVar(&importParent, "parent", false, "Merge into the family record")
	importCmd.Flags().StringVar(&parentPassword, "password", os.Getenv("TIMELEDGER_PARENT_PASSWORD"), "Family sync password (with --parent)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	period, err := transfer.ParsePeriod(exportPeriod)
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	exp, err := a.exporter.Export(context.Background(), period)
	if err != nil {
		return err
	}
	if exportStdout {
		return printJSON(exp)
	}

	f, err := os.Create(filepath.Join(exportDir, transfer.Filename(a.cfg.Child.Name, period, time.Now())))
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := writeJSON(f, exp); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	_, _ = green.Printf("Exported %d days (%s) to %s\n", exp.Summary.TotalDays, exp.Summary.DateRange, f.Name())
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := context.Background()

	var report *transfer.ImportReport
	if importParent {
		remote, err := a.requireRemote()
		if err != nil {
			return err
		}
		report, err = parent.NewService(remote, a.boundary, nil, a.logger).Import(ctx, parentPassword, raw)
		if err != nil {
			return err
		}
	} else {
		report, err = a.exporter.Import(ctx, raw)
		if err != nil {
			return err
		}
		a.syncer.Submit("import")
		a.flush(ctx)
	}

	printHeader("IMPORT")
	fmt.Printf("Child:      %s\n", report.Child)
	fmt.Printf("New days:   %d\n", report.NewDays)
	fmt.Printf("Merged:     %d\n", report.MergedDays)
	fmt.Printf("Total days: %d\n", report.TotalDays)
	printFooter()
	return nil
}
