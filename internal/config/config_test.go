package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ATRACKER_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("ATRACKER_CONFIG_DIR", filepath.Join(dir, "config"))
	for _, k := range []string{"ATRACKER_HOST", "ATRACKER_PORT", "ATRACKER_DB_PATH",
		"ATRACKER_LOG_LEVEL", "ATRACKER_POLL_INTERVAL", "ATRACKER_IDLE_THRESHOLD"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestDefaultConfig(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8932 {
		t.Errorf("expected 0.0.0.0:8932, got %s", cfg.Addr())
	}
	if want := filepath.Join(dir, "data", "atracker.db"); cfg.Storage.Path != want {
		t.Errorf("expected storage path %s, got %s", want, cfg.Storage.Path)
	}
	if cfg.Tracking.Settings().PollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", cfg.Tracking.Settings().PollInterval)
	}
	if cfg.Tracking.Settings().IdleThreshold != 120*time.Second {
		t.Errorf("expected idle threshold 120s, got %v", cfg.Tracking.Settings().IdleThreshold)
	}
	if cfg.Tracking.ReloadInterval() != time.Minute {
		t.Errorf("expected reload interval 1m, got %v", cfg.Tracking.ReloadInterval())
	}
	if cfg.Tracking.ProbeTimeout() != 2*time.Second || cfg.Tracking.StoreTimeout() != 3*time.Second {
		t.Errorf("unexpected timeouts: %+v", cfg.Tracking)
	}
	if cfg.Tracking.ShutdownTimeout() != 5*time.Second || cfg.Tracking.ClockJumpFactor != 4 {
		t.Errorf("unexpected shutdown settings: %+v", cfg.Tracking)
	}
	if cfg.Storage.Retention() != 0 {
		t.Errorf("expected unlimited retention, got %v", cfg.Storage.Retention())
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)
	if want := filepath.Join(dir, "config", "config.toml"); ConfigPath() != want {
		t.Errorf("expected %s, got %s", want, ConfigPath())
	}

	t.Setenv("ATRACKER_CONFIG_DIR", "")
	if !strings.HasSuffix(ConfigPath(), filepath.Join("atracker", "config.toml")) {
		t.Errorf("expected platform path ending with atracker/config.toml, got %s", ConfigPath())
	}
}

func TestLoadNonexistent(t *testing.T) {
	isolate(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8932 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadFormats(t *testing.T) {
	isolate(t)

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "config.toml", "[server]\nport = 9000\n[tracking]\npoll_interval_secs = 10\n"},
		{"json", "config.json", `{"server": {"port": 9000}, "tracking": {"poll_interval_secs": 10}}`},
		{"yaml", "config.yaml", "server:\n  port: 9000\ntracking:\n  poll_interval_secs: 10\n"},
		{"autodetect toml", "atracker.conf", "[server]\nport = 9000\n[tracking]\npoll_interval_secs = 10\n"},
		{"autodetect json", "atracker.conf", `{"server": {"port": 9000}, "tracking": {"poll_interval_secs": 10}}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Server.Port != 9000 {
				t.Errorf("expected port 9000, got %d", cfg.Server.Port)
			}
			if cfg.Tracking.PollIntervalSecs != 10 {
				t.Errorf("expected poll interval 10, got %d", cfg.Tracking.PollIntervalSecs)
			}
			// Unset keys keep their defaults.
			if cfg.Tracking.IdleThresholdSecs != 120 {
				t.Errorf("expected idle threshold 120, got %d", cfg.Tracking.IdleThresholdSecs)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\nport = "), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("ATRACKER_HOST", "127.0.0.1")
	t.Setenv("ATRACKER_PORT", "9999")
	t.Setenv("ATRACKER_DB_PATH", "/tmp/other.db")
	t.Setenv("ATRACKER_LOG_LEVEL", "debug")
	t.Setenv("ATRACKER_POLL_INTERVAL", "3")
	t.Setenv("ATRACKER_IDLE_THRESHOLD", "notanumber")

	cfg := LoadFromEnv()
	if cfg.Addr() != "127.0.0.1:9999" {
		t.Errorf("expected 127.0.0.1:9999, got %s", cfg.Addr())
	}
	if cfg.Storage.Path != "/tmp/other.db" {
		t.Errorf("expected db path override, got %s", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Tracking.PollIntervalSecs != 3 {
		t.Errorf("expected poll interval 3, got %d", cfg.Tracking.PollIntervalSecs)
	}
	if cfg.Tracking.IdleThresholdSecs != 120 {
		t.Errorf("unparseable override should be ignored, got %d", cfg.Tracking.IdleThresholdSecs)
	}
}

func TestValidate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"empty db path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"negative retention", func(c *Config) { c.Storage.RetentionDays = -1 }, "storage.retention_days"},
		{"poll too small", func(c *Config) { c.Tracking.PollIntervalSecs = 0 }, "tracking.poll_interval_secs"},
		{"poll too large", func(c *Config) { c.Tracking.PollIntervalSecs = 301 }, "tracking.poll_interval_secs"},
		{"idle too small", func(c *Config) { c.Tracking.IdleThresholdSecs = 9 }, "tracking.idle_threshold_secs"},
		{"idle too large", func(c *Config) { c.Tracking.IdleThresholdSecs = 86401 }, "tracking.idle_threshold_secs"},
		{"jump factor", func(c *Config) { c.Tracking.ClockJumpFactor = 1 }, "tracking.clock_jump_factor"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"file without path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"max size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"version", func(c *Config) { c.Version = Version + 1 }, "version"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestShortRetentionIsWarning(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Storage.RetentionDays = 3

	if err := cfg.Validate(); err != nil {
		t.Fatalf("warning should not fail validation: %v", err)
	}
	findings := Check(cfg)
	if len(findings) != 1 || !findings[0].IsWarning() {
		t.Errorf("expected one warning, got %v", findings)
	}
	if findings.HasErrors() {
		t.Error("warnings should not count as errors")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	isolate(t)
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		ext := ext
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)
			cfg := DefaultConfig()
			cfg.Server.Port = 8100
			cfg.Storage.RetentionDays = 90
			cfg.Logging.Compress = true

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("temporary file should be gone")
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if *loaded != *cfg {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected file to be created")
	}
	if cfg.Server.Port != 8932 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read created config: %v", err)
	}
	if !strings.Contains(string(data), "poll_interval_secs = 5") {
		t.Errorf("created file missing tracking section:\n%s", data)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("existing file should not be recreated")
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[tracking]\npoll_interval_secs = 0\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := NewLoader(path).Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoaderReloadKeepsPreviousOnError(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 9100\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	calls := 0
	l.OnChange(func(*Config) { calls++ })

	if err := os.WriteFile(path, []byte("[server]\nport = -1\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := l.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if l.Config().Server.Port != 9100 {
		t.Errorf("previous config should stay active, got port %d", l.Config().Server.Port)
	}
	select {
	case err := <-l.Errors():
		if err == nil {
			t.Error("expected error on channel")
		}
	default:
		t.Error("reload error should be reported on Errors")
	}

	if err := os.WriteFile(path, []byte("[server]\nport = 9200\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := l.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if calls != 1 || l.Config().Server.Port != 9200 {
		t.Errorf("expected one callback and port 9200, got %d calls, port %d", calls, l.Config().Server.Port)
	}
}

func TestLoaderWatch(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[tracking]\nidle_threshold_secs = 60\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[tracking]\nidle_threshold_secs = 300\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	select {
	case c := <-changed:
		if c.Tracking.IdleThresholdSecs != 300 {
			t.Errorf("expected idle threshold 300, got %d", c.Tracking.IdleThresholdSecs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config change")
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := isolate(t)
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0700); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(cfgDir, "config.yaml")
	if err := os.WriteFile(want, []byte("server:\n  port: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat("config.toml"); err == nil {
		t.Skip("working directory has its own config file")
	}
	if got := FindConfigFile(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "db", "nested", "atracker.db")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "atracker.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, d := range []string{filepath.Join(dir, "data"), filepath.Join(dir, "db", "nested"), filepath.Join(dir, "logs")} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", d)
		}
	}
}
