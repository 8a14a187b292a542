// Package logging provides structured logging with slog for atracker.
//
// Features:
//   - JSON and text output formats
//   - Log levels adjustable at runtime
//   - Request IDs carried through context
//   - Sensitive attribute redaction; window titles only at debug level
//   - Size and daily log rotation
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"atracker/internal/config"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// TitleKey is the attribute key carrying window titles.
const TitleKey = "title"

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or JSON).
	Format Format

	// Output is "stdout", "stderr", "file", or "both" (stderr and file).
	Output string

	// Writer replaces the stdout/stderr stream when set.
	Writer io.Writer

	// FilePath is the path to the log file when Output includes "file".
	FilePath string

	// MaxSize is the maximum size of a log file in megabytes before rotation.
	MaxSize int64

	// MaxAge is the maximum age of rotated files in days.
	MaxAge int

	// MaxBackups is the maximum number of rotated log files to keep.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool

	// AddSource adds source file and line to log entries.
	AddSource bool

	// Component is attached to every record.
	Component string
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   config.DefaultConfig().Logging.FilePath,
		MaxSize:    50,
		MaxAge:     30,
		MaxBackups: 5,
		Component:  "atracker",
	}
}

// FromConfig translates the [logging] section of the daemon config.
func FromConfig(lc config.LoggingConfig) (*Config, error) {
	level, err := ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Level = level
	if lc.Format == "json" {
		cfg.Format = FormatJSON
	}
	cfg.Output = lc.Output
	if lc.FilePath != "" {
		cfg.FilePath = lc.FilePath
	}
	cfg.MaxSize = int64(lc.MaxSizeMB)
	cfg.MaxAge = lc.MaxAgeDays
	cfg.MaxBackups = lc.MaxBackups
	cfg.Compress = lc.Compress
	return cfg, nil
}

// Logger wraps slog.Logger with rotation and a runtime-adjustable level.
type Logger struct {
	*slog.Logger
	config    *Config
	level     *slog.LevelVar
	rotator   *FileRotator
	requestID *atomic.Uint64
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the default global logger.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{
				Logger:    slog.Default(),
				config:    DefaultConfig(),
				level:     new(slog.LevelVar),
				requestID: new(atomic.Uint64),
			}
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault sets the default global logger and routes slog's default to it.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{
		config:    cfg,
		level:     new(slog.LevelVar),
		requestID: new(atomic.Uint64),
	}
	l.level.Set(cfg.Level)

	w, err := l.setupWriter()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     l.level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	handler = &titleHandler{next: handler}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("component", cfg.Component),
		})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

func (l *Logger) setupWriter() (io.Writer, error) {
	stream := l.config.Writer
	output := strings.ToLower(l.config.Output)
	if stream == nil {
		stream = os.Stderr
		if output == "stdout" {
			stream = os.Stdout
		}
	}

	switch output {
	case "file", "both":
		rotator, err := NewFileRotator(l.config)
		if err != nil {
			return nil, err
		}
		l.rotator = rotator
		if output == "file" {
			return rotator, nil
		}
		return io.MultiWriter(stream, rotator), nil
	default:
		return stream, nil
	}
}

// redactedKeys are substrings of attribute keys whose values never reach
// the log.
var redactedKeys = []string{"password", "secret", "token", "credential", "cookie", "authorization"}

func shouldRedact(key string) bool {
	key = strings.ToLower(key)
	return slices.ContainsFunc(redactedKeys, func(s string) bool {
		return strings.Contains(key, s)
	})
}

// titleHandler hides window titles from records above debug level.
// Titles bound with With are always hidden since their level is unknown.
type titleHandler struct {
	next slog.Handler
}

func (h *titleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *titleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level <= LevelDebug {
		return h.next.Handle(ctx, r)
	}
	hidden := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TitleKey {
			hidden = true
			return false
		}
		return true
	})
	if !hidden {
		return h.next.Handle(ctx, r)
	}

	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TitleKey {
			a.Value = slog.StringValue("[hidden]")
		}
		nr.AddAttrs(a)
		return true
	})
	return h.next.Handle(ctx, nr)
}

func (h *titleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		if a.Key == TitleKey {
			a.Value = slog.StringValue("[hidden]")
		}
		scrubbed[i] = a
	}
	return &titleHandler{next: h.next.WithAttrs(scrubbed)}
}

func (h *titleHandler) WithGroup(name string) slog.Handler {
	return &titleHandler{next: h.next.WithGroup(name)}
}

// SetLevel changes the minimum level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	return l.level.Level()
}

func (l *Logger) derive(sl *slog.Logger) *Logger {
	return &Logger{
		Logger:    sl,
		config:    l.config,
		level:     l.level,
		rotator:   l.rotator,
		requestID: l.requestID,
	}
}

// WithRequestID returns a new logger with a request ID.
func (l *Logger) WithRequestID(id string) *Logger {
	return l.derive(l.Logger.With(slog.String("request_id", id)))
}

// NewRequestID generates a new unique request ID.
func (l *Logger) NewRequestID() string {
	id := l.requestID.Add(1)
	return fmt.Sprintf("%s-%d-%d", l.config.Component, time.Now().UnixNano(), id)
}

// WithComponent returns a new logger with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.Logger.With(slog.String("component", name)))
}

// WithContext returns a logger with context-derived attributes.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		return l.WithRequestID(reqID)
	}
	return l
}

// Close closes any open log files.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l.rotator != nil {
		return l.rotator.Sync()
	}
	return nil
}

type contextKey int

const (
	requestIDKey contextKey = iota
)

// ContextWithRequestID returns a new context with the request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

var levelNames = []struct {
	name  string
	level Level
}{
	{"debug", LevelDebug},
	{"info", LevelInfo},
	{"warn", LevelWarn},
	{"warning", LevelWarn},
	{"error", LevelError},
}

// ParseLevel parses a level name, case-insensitively. "warning" is accepted
// for warn.
func ParseLevel(s string) (Level, error) {
	for _, n := range levelNames {
		if strings.EqualFold(s, n.name) {
			return n.level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// LevelString names level as ParseLevel accepts it. Unknown levels read as info.
func LevelString(level Level) string {
	for _, n := range levelNames {
		if n.level == level {
			return n.name
		}
	}
	return "info"
}
