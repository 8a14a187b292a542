// Package config handles configuration loading, validation, and management for atracker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"atracker/internal/activity"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Server configuration for the HTTP API.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// Storage configuration for the event database.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Tracking configuration for the segmentation loop.
	Tracking TrackingConfig `toml:"tracking" json:"tracking" yaml:"tracking"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Host            string `toml:"host" json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port            int    `toml:"port" json:"port" yaml:"port" validate:"min=1,max=65535"`
	ReadTimeoutSec  int    `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec" validate:"min=0"`
	WriteTimeoutSec int    `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec" validate:"min=0"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path" validate:"required"`

	// BusyTimeoutMs is the SQLite busy timeout.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms" validate:"min=0"`

	// RetentionDays bounds how long events are kept. Zero keeps them forever.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days" validate:"min=0"`
}

// TrackingConfig holds the segmentation loop timings.
type TrackingConfig struct {
	PollIntervalSecs       int `toml:"poll_interval_secs" json:"poll_interval_secs" yaml:"poll_interval_secs" validate:"min=1,max=300"`
	IdleThresholdSecs      int `toml:"idle_threshold_secs" json:"idle_threshold_secs" yaml:"idle_threshold_secs" validate:"min=10,max=86400"`
	ReloadIntervalSecs     int `toml:"reload_interval_secs" json:"reload_interval_secs" yaml:"reload_interval_secs" validate:"min=1"`
	ProbeTimeoutMs         int `toml:"probe_timeout_ms" json:"probe_timeout_ms" yaml:"probe_timeout_ms" validate:"min=1"`
	StoreTimeoutMs         int `toml:"store_timeout_ms" json:"store_timeout_ms" yaml:"store_timeout_ms" validate:"min=1"`
	ShutdownFlushTimeoutMs int `toml:"shutdown_flush_timeout_ms" json:"shutdown_flush_timeout_ms" yaml:"shutdown_flush_timeout_ms" validate:"min=1"`

	// ClockJumpFactor multiplies the poll interval to get the gap treated as a suspend.
	ClockJumpFactor int `toml:"clock_jump_factor" json:"clock_jump_factor" yaml:"clock_jump_factor" validate:"min=2"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level" validate:"loglevel"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format" validate:"oneof=text json"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output" validate:"required,oneof=stdout stderr file both"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb" validate:"min=1"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days" validate:"min=0"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: Version,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8932,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 30,
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dataDir, "atracker.db"),
			BusyTimeoutMs: 5000,
		},
		Tracking: TrackingConfig{
			PollIntervalSecs:       5,
			IdleThresholdSecs:      120,
			ReloadIntervalSecs:     60,
			ProbeTimeoutMs:         2000,
			StoreTimeoutMs:         3000,
			ShutdownFlushTimeoutMs: 5000,
			ClockJumpFactor:        4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "atracker.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DataDir returns the base atracker data directory.
// ATRACKER_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("ATRACKER_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ConfigDir returns the directory holding config.toml.
// ATRACKER_CONFIG_DIR overrides the platform default.
func ConfigDir() string {
	if envDir := os.Getenv("ATRACKER_CONFIG_DIR"); envDir != "" {
		return envDir
	}
	return PlatformConfigDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		DataDir(),
		filepath.Dir(c.Storage.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with ATRACKER_. Unparseable numbers are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ATRACKER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ATRACKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("ATRACKER_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("ATRACKER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ATRACKER_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tracking.PollIntervalSecs = n
		}
	}
	if v := os.Getenv("ATRACKER_IDLE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tracking.IdleThresholdSecs = n
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Settings returns the tracking values the segmentation machine reloads.
func (t TrackingConfig) Settings() activity.Settings {
	return activity.Settings{
		PollInterval:  time.Duration(t.PollIntervalSecs) * time.Second,
		IdleThreshold: time.Duration(t.IdleThresholdSecs) * time.Second,
	}
}

func (t TrackingConfig) ReloadInterval() time.Duration {
	return time.Duration(t.ReloadIntervalSecs) * time.Second
}

func (t TrackingConfig) ProbeTimeout() time.Duration {
	return time.Duration(t.ProbeTimeoutMs) * time.Millisecond
}

func (t TrackingConfig) StoreTimeout() time.Duration {
	return time.Duration(t.StoreTimeoutMs) * time.Millisecond
}

func (t TrackingConfig) ShutdownTimeout() time.Duration {
	return time.Duration(t.ShutdownFlushTimeoutMs) * time.Millisecond
}

// BusyTimeout returns the SQLite busy timeout.
func (s StorageConfig) BusyTimeout() time.Duration {
	return time.Duration(s.BusyTimeoutMs) * time.Millisecond
}

// Retention returns how long events are kept, or zero for forever.
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}
