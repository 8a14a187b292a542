package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"atracker/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("LevelString(%v) does not round trip: %q", level, LevelString(level))
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected default format Text, got %v", cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "atracker" {
		t.Errorf("expected component atracker, got %s", cfg.Component)
	}
	if !strings.HasSuffix(cfg.FilePath, "atracker.log") {
		t.Errorf("unexpected default log path %s", cfg.FilePath)
	}
}

func TestFromConfig(t *testing.T) {
	lc := config.LoggingConfig{
		Level:      "debug",
		Format:     "json",
		Output:     "both",
		FilePath:   "/var/log/atracker.log",
		MaxSizeMB:  10,
		MaxBackups: 2,
		MaxAgeDays: 3,
		Compress:   true,
	}
	cfg, err := FromConfig(lc)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if cfg.Level != LevelDebug || cfg.Format != FormatJSON || cfg.Output != "both" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MaxSize != 10 || cfg.MaxBackups != 2 || cfg.MaxAge != 3 || !cfg.Compress {
		t.Errorf("rotation settings not carried over: %+v", cfg)
	}

	lc.Level = "loud"
	if _, err := FromConfig(lc); err == nil {
		t.Error("expected error for bad level")
	}
}

func newBufferLogger(t *testing.T, level Level) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     level,
		Format:    FormatJSON,
		Output:    "stdout",
		Writer:    &buf,
		Component: "test",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelInfo)

	logger.WithComponent("segment").Info("segment flushed", "app", "firefox", "auth_token", "abc")

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["msg"] != "segment flushed" || lines[0]["app"] != "firefox" {
		t.Errorf("unexpected record %v", lines[0])
	}
	if lines[0]["auth_token"] != "[REDACTED]" {
		t.Errorf("token should be redacted, got %v", lines[0]["auth_token"])
	}
	if lines[0]["component"] != "segment" {
		t.Errorf("expected component segment, got %v", lines[0]["component"])
	}
}

func TestTitleOnlyAtDebug(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelDebug)

	logger.Debug("sample", "title", "Inbox - secret project")
	logger.Info("flush", "title", "Inbox - secret project")
	logger.With("title", "bound").Debug("bound title")

	lines := decodeLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0]["title"] != "Inbox - secret project" {
		t.Errorf("debug record should keep title, got %v", lines[0]["title"])
	}
	if lines[1]["title"] != "[hidden]" {
		t.Errorf("info record should hide title, got %v", lines[1]["title"])
	}
	if lines[2]["title"] != "[hidden]" {
		t.Errorf("bound title should be hidden, got %v", lines[2]["title"])
	}
}

func TestSetLevelPropagates(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelInfo)
	child := logger.WithComponent("api")

	child.Debug("dropped")
	logger.SetLevel(LevelDebug)
	child.Debug("kept")

	if logger.Level() != LevelDebug {
		t.Errorf("expected debug level, got %v", logger.Level())
	}
	lines := decodeLines(t, buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Errorf("expected only the post-change record, got %v", lines)
	}
}

func TestLoggerWithContext(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelInfo)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	logger.WithContext(ctx).Info("handled")
	logger.WithContext(context.Background()).Info("plain")

	lines := decodeLines(t, buf)
	if lines[0]["request_id"] != "req-1" {
		t.Errorf("expected request_id req-1, got %v", lines[0]["request_id"])
	}
	if _, ok := lines[1]["request_id"]; ok {
		t.Error("plain record should carry no request_id")
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if got := RequestIDFromContext(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestNewRequestID(t *testing.T) {
	logger, _ := newBufferLogger(t, LevelInfo)

	id1 := logger.NewRequestID()
	id2 := logger.WithComponent("api").NewRequestID()

	if id1 == id2 {
		t.Error("NewRequestID returned duplicate IDs")
	}
	if !strings.HasPrefix(id1, "test-") {
		t.Errorf("NewRequestID should start with component name, got %q", id1)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"secret", true},
		{"access_token", true},
		{"credential", true},
		{"cookie", true},
		{"Authorization", true},
		{"key", false},
		{"app", false},
		{"title", false},
		{"device_id", false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "atracker.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = logPath

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("written to file")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing record: %s", data)
	}
}

func TestFileRotatorDailyRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	clock := time.Date(2026, 3, 1, 23, 0, 0, 0, time.Local)
	rotator.now = func() time.Time { return clock }
	rotator.openedAt = clock

	for day := 0; day < 4; day++ {
		if _, err := rotator.Write([]byte("line\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		clock = clock.Add(24 * time.Hour)
	}
	rotator.pending.Wait()

	files, err := rotator.LogFiles()
	if err != nil {
		t.Fatalf("LogFiles: %v", err)
	}
	// Current file plus MaxBackups rotated files.
	if len(files) != 3 {
		t.Errorf("expected 3 files, got %v", files)
	}
	if files[0] != logPath {
		t.Errorf("current file should come first, got %s", files[0])
	}
}

func TestFileRotatorSizeRotationCompresses(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 5, Compress: true})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 2; i++ {
		if _, err := rotator.Write(chunk); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	gz, _ := filepath.Glob(filepath.Join(filepath.Dir(logPath), "test-*.log.gz"))
	if len(gz) != 1 {
		t.Errorf("expected one compressed backup, got %v", gz)
	}
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("expected current file to hold one chunk, got %d bytes", info.Size())
	}
}

func TestCrashHandlerGuard(t *testing.T) {
	dir := t.TempDir()
	logger, buf := newBufferLogger(t, LevelInfo)
	h := NewCrashHandler(dir, "1.0.0", logger.Logger)

	err := h.Guard("pruner", func() error { panic("boom") })()
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Task != "pruner" {
		t.Fatalf("expected PanicError for pruner, got %v", err)
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].PanicValue != "boom" || reports[0].Version != "1.0.0" || reports[0].StackTrace == "" {
		t.Errorf("unexpected report %+v", reports[0])
	}
	if !strings.Contains(buf.String(), "task panicked") {
		t.Error("panic should be logged")
	}

	sentinel := errors.New("plain failure")
	if err := h.Guard("api", func() error { return sentinel })(); !errors.Is(err, sentinel) {
		t.Errorf("errors should pass through, got %v", err)
	}
}
