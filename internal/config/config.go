package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Child   ChildConfig   `mapstructure:"child"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Usage   UsageConfig   `mapstructure:"usage_tracking"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ChildConfig identifies whose ledger this device keeps
type ChildConfig struct {
	Name     string `mapstructure:"name"`
	Family   string `mapstructure:"family"`
	DeviceID string `mapstructure:"device_id"`
}

// ServerConfig defines the daemon's listening addresses
type ServerConfig struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Driver string      `mapstructure:"driver"`
	Path   string      `mapstructure:"path"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the remote family store connection
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// SyncConfig defines reconciliation with the remote store
type SyncConfig struct {
	Interval  string `mapstructure:"interval"`
	Timeout   string `mapstructure:"timeout"`
	QueueSize int    `mapstructure:"queue_size"`
}

// UsageConfig defines ledger day handling
type UsageConfig struct {
	DailyResetTime       string `mapstructure:"daily_reset_time"`
	HistoryRetentionDays int    `mapstructure:"history_retention_days"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TIMELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration with only default values applied.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Child defaults
	v.SetDefault("child.name", "")
	v.SetDefault("child.family", "default")
	v.SetDefault("child.device_id", "")

	// Server defaults
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.bind_address", "127.0.0.1")

	// Storage defaults
	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.path", "/var/lib/timeledger/timeledger.bolt")
	v.SetDefault("storage.redis.enabled", true)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 4)
	v.SetDefault("storage.redis.min_idle_conns", 1)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Sync defaults
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.timeout", "10s")
	v.SetDefault("sync.queue_size", 8)

	// Usage tracking defaults
	v.SetDefault("usage_tracking.daily_reset_time", "00:00")
	v.SetDefault("usage_tracking.history_retention_days", 90)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Child.Name == "" {
		return fmt.Errorf("child.name is required")
	}
	if cfg.Child.Family == "" {
		return fmt.Errorf("child.family is required")
	}
	if cfg.Child.DeviceID == "" {
		cfg.Child.DeviceID = strings.ToLower(strings.ReplaceAll(cfg.Child.Name, " ", "_")) + "_device_001"
	}

	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if _, err := time.Parse("15:04", cfg.Usage.DailyResetTime); err != nil {
		return fmt.Errorf("invalid daily_reset_time %q: must be HH:MM", cfg.Usage.DailyResetTime)
	}
	if cfg.Usage.HistoryRetentionDays < 0 {
		return fmt.Errorf("history_retention_days must not be negative")
	}

	for name, value := range map[string]string{
		"sync.interval": cfg.Sync.Interval,
		"sync.timeout":  cfg.Sync.Timeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.Sync.QueueSize <= 0 {
		cfg.Sync.QueueSize = 1
	}

	switch cfg.Storage.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("invalid storage.driver %q: must be bolt or sqlite", cfg.Storage.Driver)
	}

	// Validate storage path
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	// Ensure storage directory exists
	storageDir := filepath.Dir(cfg.Storage.Path)
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
