package main

import (
	"fmt"
	"os"
	"reflect"

	"github.com/fatih/color"
	"github.com/goodtune/timeledger/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the TimeLedger configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		fmt.Println("\n" + rule)
		fmt.Println("FULL CONFIGURATION (values different from defaults are highlighted)")
		fmt.Println(rule)

		dumpConfig(cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}

// getValidKeys returns the set of keys the defaults define
func getValidKeys() map[string]bool {
	v := viper.New()
	config.SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

type dumpEntry struct {
	name       string
	value, def any
}

type dumpSection struct {
	title   string
	entries []dumpEntry
}

// configSections lays out cfg next to the defaults, section by section.
func configSections(cfg, def *config.Config) []dumpSection {
	r, dr := cfg.Storage.Redis, def.Storage.Redis
	return []dumpSection{
		{"child", []dumpEntry{
			{"name", cfg.Child.Name, def.Child.Name},
			{"family", cfg.Child.Family, def.Child.Family},
			{"device_id", cfg.Child.DeviceID, def.Child.DeviceID},
		}},
		{"server", []dumpEntry{
			{"metrics_port", cfg.Server.MetricsPort, def.Server.MetricsPort},
			{"bind_address", cfg.Server.BindAddress, def.Server.BindAddress},
		}},
		{"storage", []dumpEntry{
			{"driver", cfg.Storage.Driver, def.Storage.Driver},
			{"path", cfg.Storage.Path, def.Storage.Path},
		}},
		{"storage.redis", []dumpEntry{
			{"enabled", r.Enabled, dr.Enabled},
			{"host", r.Host, dr.Host},
			{"port", r.Port, dr.Port},
			{"password", redactPassword(r.Password), redactPassword(dr.Password)},
			{"db", r.DB, dr.DB},
			{"pool_size", r.PoolSize, dr.PoolSize},
			{"min_idle_conns", r.MinIdleConns, dr.MinIdleConns},
			{"dial_timeout", r.DialTimeout, dr.DialTimeout},
			{"read_timeout", r.ReadTimeout, dr.ReadTimeout},
			{"write_timeout", r.WriteTimeout, dr.WriteTimeout},
		}},
		{"sync", []dumpEntry{
			{"interval", cfg.Sync.Interval, def.Sync.Interval},
			{"timeout", cfg.Sync.Timeout, def.Sync.Timeout},
			{"queue_size", cfg.Sync.QueueSize, def.Sync.QueueSize},
		}},
		{"usage_tracking", []dumpEntry{
			{"daily_reset_time", cfg.Usage.DailyResetTime, def.Usage.DailyResetTime},
			{"history_retention_days", cfg.Usage.HistoryRetentionDays, def.Usage.HistoryRetentionDays},
		}},
		{"logging", []dumpEntry{
			{"level", cfg.Logging.Level, def.Logging.Level},
			{"format", cfg.Logging.Format, def.Logging.Format},
		}},
	}
}

// dumpConfig prints every setting, highlighting the ones that differ from
// the defaults.
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	modified := color.New(color.FgYellow, color.Bold)
	unchanged := color.New(color.FgGreen)

	for _, section := range configSections(cfg, defaultCfg) {
		_, _ = cyan.Printf("\n[%s]\n", section.title)
		for _, e := range section.entries {
			dumpField("  "+e.name, e.value, e.def, modified, unchanged)
		}
	}

	if len(unknownKeys) > 0 {
		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	fmt.Println("\n" + rule)
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue any, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
