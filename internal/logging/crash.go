package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	Task         string    `json:"task"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
}

// PanicError is returned by a guarded task that panicked.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Task, e.Value)
}

// CrashHandler turns panics in long-running tasks into errors and
// writes a JSON crash report for each one.
type CrashHandler struct {
	dir     string
	version string
	logger  *slog.Logger
}

// NewCrashHandler writes reports under dir.
func NewCrashHandler(dir, version string, logger *slog.Logger) *CrashHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashHandler{dir: dir, version: version, logger: logger}
}

// Guard wraps fn so a panic is reported and returned as a *PanicError.
func (h *CrashHandler) Guard(task string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				h.handle(task, v)
				err = &PanicError{Task: task, Value: v}
			}
		}()
		return fn()
	}
}

func (h *CrashHandler) handle(task string, v any) {
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Task:         task,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", v),
		StackTrace:   string(debug.Stack()),
	}

	path, err := h.write(report)
	if err != nil {
		h.logger.Error("task panicked", "task", task, "panic", report.PanicValue, "report_error", err)
		return
	}
	h.logger.Error("task panicked", "task", task, "panic", report.PanicValue, "report", path)
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Task, report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns the stored crash reports, newest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, fmt.Errorf("list crash reports: %w", err)
	}

	reports := make([]CrashReport, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var r CrashReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})
	return reports, nil
}
