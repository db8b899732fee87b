package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/goodtune/timeledger/internal/limits"
	"github.com/goodtune/timeledger/internal/parent"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/spf13/cobra"
)

var (
	parentPassword   string
	parentReason     string
	parentFamilyName string
	parentWeekday    int
	parentWeekend    int
	parentMaxTotal   int
	parentBonus      []string
)

var parentCmd = &cobra.Command{
	Use:   "parent",
	Short: "Parent actions on the shared family record",
	Long: `Parent actions change the family record in the remote store directly. Child
devices pick the change up on their next sync. Every action needs the family
sync password, taken from --password or TIMELEDGER_PARENT_PASSWORD.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if parentPassword == "" {
			parentPassword = os.Getenv("TIMELEDGER_PARENT_PASSWORD")
		}
	},
}

var parentPunishCmd = &cobra.Command{
	Use:     "punish CHILD MINUTES",
	Short:   "Remove time from a child's day",
	Example: `  timeledger parent punish Emma 15 --reason "homework not done"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParentAction(args[0], parent.KindPunishment, "", args[1])
	},
}

var parentBonusCmd = &cobra.Command{
	Use:     "bonus CHILD MINUTES",
	Short:   "Give a child extra time today",
	Example: `  timeledger parent bonus Emma 20 --reason "helped with dinner"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParentAction(args[0], parent.KindBonus, "", args[1])
	},
}

var parentSessionCmd = &cobra.Command{
	Use:     "session CHILD DEVICE MINUTES",
	Short:   "Log a device session on a child's behalf",
	Example: `  timeledger parent session Emma tv_movie 90 --reason "family movie"`,
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParentAction(args[0], parent.KindSession, args[1], args[2])
	},
}

var parentResetCmd = &cobra.Command{
	Use:   "reset CHILD",
	Short: "Reset a child's day to a fresh ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParentAction(args[0], parent.KindReset, "", "")
	},
}

var parentSeedCmd = &cobra.Command{
	Use:     "seed CHILD...",
	Short:   "Create the family record with default settings",
	Example: `  timeledger parent seed Emma Liam --family-name Smith --password s3cret`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runParentSeed,
}

var parentSettingsCmd = &cobra.Command{
	Use:   "settings CHILD",
	Short: "Change a child's daily limits and bonus activities",
	Example: `  timeledger parent settings Emma --weekday 90 --weekend 150 --max-total 180
  timeledger parent settings Emma --bonus reading=60:0.25 --bonus soccer=30:0.5`,
	Args: cobra.ExactArgs(1),
	RunE: runParentSettings,
}

var parentPasswordCmd = &cobra.Command{
	Use:   "password NEW_PASSWORD",
	Short: "Change the family sync password",
	Args:  cobra.ExactArgs(1),
	RunE:  runParentPassword,
}

var parentStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every child's day in the family record",
	Args:  cobra.NoArgs,
	RunE:  runParentStatus,
}

func init() {
	parentCmd.PersistentFlags().StringVar(&parentPassword, "password", "", "Family sync password")

	for _, c := range []*cobra.Command{parentPunishCmd, parentBonusCmd, parentSessionCmd} {
		c.Flags().StringVar(&parentReason, "reason", "", "Reason recorded with the action")
	}

	parentSeedCmd.Flags().StringVar(&parentFamilyName, "family-name", storage.DefaultFamilyName, "Family display name")

	parentSettingsCmd.Flags().IntVar(&parentWeekday, "weekday", 0, "Weekday base minutes")
	parentSettingsCmd.Flags().IntVar(&parentWeekend, "weekend", 0, "Weekend base minutes")
	parentSettingsCmd.Flags().IntVar(&parentMaxTotal, "max-total", 0, "Maximum daily total including bonus")
	parentSettingsCmd.Flags().StringArrayVar(&parentBonus, "bonus", nil, "Bonus activity as KEY=MAX_MINUTES:RATIO (repeatable, replaces all)")

	parentCmd.AddCommand(parentPunishCmd)
	parentCmd.AddCommand(parentBonusCmd)
	parentCmd.AddCommand(parentSessionCmd)
	parentCmd.AddCommand(parentResetCmd)
	parentCmd.AddCommand(parentSeedCmd)
	parentCmd.AddCommand(parentSettingsCmd)
	parentCmd.AddCommand(parentPasswordCmd)
	parentCmd.AddCommand(parentStatusCmd)
	rootCmd.AddCommand(parentCmd)
}

// newParentService opens the app and a parent service over its remote
// store. The caller closes the app.
func newParentService() (*app, *parent.Service, error) {
	a, err := newApp(false)
	if err != nil {
		return nil, nil, err
	}
	remote, err := a.requireRemote()
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return a, parent.NewService(remote, a.boundary, nil, a.logger), nil
}

func runParentAction(child string, kind parent.Kind, device, minutes string) error {
	action := parent.Action{Kind: kind, Device: device, Note: parentReason}
	if kind != parent.KindReset {
		m, err := parseMinutes(minutes)
		if err != nil {
			return err
		}
		action.Minutes = m
	}

	a, svc, err := newParentService()
	if err != nil {
		return err
	}
	defer a.close()

	l, err := svc.Apply(context.Background(), parentPassword, child, action)
	if err != nil {
		return err
	}

	printHeader(strings.ToUpper(string(kind)) + " APPLIED")
	fmt.Printf("Child:      %s\n", child)
	if action.Minutes > 0 {
		fmt.Printf("Minutes:    %s\n", formatMinutes(action.Minutes))
	}
	fmt.Printf("Base used:  %s\n", formatMinutes(l.BaseTimeUsed))
	_, _ = green.Println("Saved to the family record")
	printFooter()
	return nil
}

func runParentSeed(cmd *cobra.Command, args []string) error {
	a, svc, err := newParentService()
	if err != nil {
		return err
	}
	defer a.close()

	family, err := svc.Seed(context.Background(), parentFamilyName, parentPassword, args)
	if err != nil {
		return err
	}

	_, _ = green.Printf("Created family %q with %d children\n", family.ParentSettings.FamilyName, len(family.Children))
	if parentPassword == "" {
		_, _ = yellow.Printf("Using the default sync password, change it with: timeledger parent password\n")
	}
	return nil
}

func runParentSettings(cmd *cobra.Command, args []string) error {
	var settings parent.Settings

	if cmd.Flags().Changed("weekday") || cmd.Flags().Changed("weekend") || cmd.Flags().Changed("max-total") {
		if parentWeekday == 0 || parentWeekend == 0 {
			return fmt.Errorf("--weekday and --weekend are both required when changing limits")
		}
		settings.Limits = &storage.ChildLimits{
			Weekday:       parentWeekday,
			Weekend:       parentWeekend,
			MaxDailyTotal: parentMaxTotal,
		}
	}

	for _, setting := range parentBonus {
		b, err := parseBonusSetting(setting)
		if err != nil {
			return err
		}
		settings.BonusSettings = append(settings.BonusSettings, b)
	}

	if settings.Limits == nil && settings.BonusSettings == nil {
		return fmt.Errorf("nothing to change")
	}

	a, svc, err := newParentService()
	if err != nil {
		return err
	}
	defer a.close()

	if err := svc.UpdateSettings(context.Background(), parentPassword, args[0], settings); err != nil {
		return err
	}
	_, _ = green.Printf("Updated settings for %s\n", args[0])
	return nil
}

// parseBonusSetting parses KEY=MAX_MINUTES:RATIO.
func parseBonusSetting(setting string) (storage.BonusSetting, error) {
	key, value, ok := strings.Cut(setting, "=")
	if !ok || key == "" {
		return storage.BonusSetting{}, fmt.Errorf("invalid bonus setting %q: want KEY=MAX_MINUTES:RATIO", setting)
	}
	maxStr, ratioStr, ok := strings.Cut(value, ":")
	if !ok {
		return storage.BonusSetting{}, fmt.Errorf("invalid bonus setting %q: want KEY=MAX_MINUTES:RATIO", setting)
	}
	maxMinutes, err := strconv.Atoi(maxStr)
	if err != nil {
		return storage.BonusSetting{}, fmt.Errorf("invalid max minutes in %q: %w", setting, err)
	}
	ratio, err := strconv.ParseFloat(ratioStr, 64)
	if err != nil {
		return storage.BonusSetting{}, fmt.Errorf("invalid ratio in %q: %w", setting, err)
	}
	return storage.BonusSetting{Key: key, MaxBonusMinutes: maxMinutes, Ratio: ratio}, nil
}

func runParentPassword(cmd *cobra.Command, args []string) error {
	a, svc, err := newParentService()
	if err != nil {
		return err
	}
	defer a.close()

	if err := svc.SetPassword(context.Background(), parentPassword, args[0]); err != nil {
		return err
	}
	_, _ = green.Println("Sync password changed")
	return nil
}

func runParentStatus(cmd *cobra.Command, args []string) error {
	a, svc, err := newParentService()
	if err != nil {
		return err
	}
	defer a.close()

	family, err := svc.Family(context.Background(), parentPassword)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(family.Children))
	for name := range family.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now()
	day := a.boundary.Day(now)
	date := day.Format(ledger.DateLayout)

	for _, name := range names {
		rec := family.Children[name]
		lim := limits.Build(rec.Limits, rec.BonusSettings, family.ParentSettings, date, ledger.IsWeekend(day), ledger.SourceRemote)

		today := rec.TodayData
		if today == nil || today.Date != date {
			today = ledger.New(date, lim, now)
		}
		s := ledger.Project(today, lim)

		printHeader(strings.ToUpper(name))
		fmt.Printf("Device:     %s\n", rec.Profile.DeviceID)
		fmt.Printf("Limits:     %s weekday, %s weekend, %s max\n",
			formatMinutes(rec.Limits.Weekday), formatMinutes(rec.Limits.Weekend), formatMinutes(rec.Limits.MaxDailyTotal))
		fmt.Printf("Used:       %s base, %s on devices\n", formatMinutes(s.BaseTime.Used), formatMinutes(s.DeviceTotal))
		fmt.Print("Remaining:  ")
		_, _ = remainingColor(s.Totals.Remaining).Println(formatMinutes(s.Totals.Remaining))
		if s.ActiveSession != nil {
			printSession(s.ActiveSession)
		}
		fmt.Println()
		printActivities(today)
		printFooter()
	}
	return nil
}
