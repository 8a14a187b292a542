// Package probe samples the foreground window and the user idle time from
// the operating system. A Probe tries its window and idle sources in order
// and uses the first one that answers.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"atracker/internal/activity"
)

var (
	// ErrUnavailable means no source can observe this desktop.
	ErrUnavailable = errors.New("probe unavailable on this platform")

	// ErrNoWindow means a source answered but nothing has focus.
	ErrNoWindow = errors.New("no active window")
)

// WindowSource reports the foreground window.
type WindowSource interface {
	Name() string
	ActiveWindow(ctx context.Context) (activity.Identity, error)
}

// IdleSource reports milliseconds since the last user input.
type IdleSource interface {
	Name() string
	IdleMillis(ctx context.Context) (int64, error)
}

// Probe chains window and idle sources.
type Probe struct {
	windows []WindowSource
	idle    []IdleSource
	logger  *slog.Logger

	mu   sync.Mutex
	last map[string]string
}

// Option configures a Probe.
type Option func(*Probe)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Probe) { p.logger = l }
}

// New builds a probe from explicit sources.
func New(windows []WindowSource, idle []IdleSource, opts ...Option) *Probe {
	p := &Probe{
		windows: windows,
		idle:    idle,
		logger:  slog.Default().With("component", "probe"),
		last:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sources lists the source names in the order they are tried.
func (p *Probe) Sources() (windows, idle []string) {
	for _, w := range p.windows {
		windows = append(windows, w.Name())
	}
	for _, i := range p.idle {
		idle = append(idle, i.Name())
	}
	return windows, idle
}

// Sample returns the foreground window. A source reporting ErrNoWindow ends
// the search with an empty identity. When every source fails the last error
// is returned, or ErrUnavailable if there are no sources.
func (p *Probe) Sample(ctx context.Context) (activity.Identity, error) {
	lastErr := ErrUnavailable
	for _, src := range p.windows {
		id, err := src.ActiveWindow(ctx)
		if err == nil {
			p.used("window", src.Name())
			return normalize(id), nil
		}
		if errors.Is(err, ErrNoWindow) {
			p.used("window", src.Name())
			return activity.Identity{}, nil
		}
		if ctx.Err() != nil {
			return activity.Identity{}, fmt.Errorf("sample %s: %w", src.Name(), ctx.Err())
		}
		lastErr = fmt.Errorf("sample %s: %w", src.Name(), err)
	}
	return activity.Identity{}, lastErr
}

// IdleMillis returns the idle time from the first source that answers.
// With no working source the user is treated as active.
func (p *Probe) IdleMillis(ctx context.Context) (int64, error) {
	for _, src := range p.idle {
		ms, err := src.IdleMillis(ctx)
		if err == nil {
			p.used("idle", src.Name())
			return ms, nil
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("idle %s: %w", src.Name(), ctx.Err())
		}
	}
	return 0, nil
}

// used logs when the answering source changes.
func (p *Probe) used(kind, name string) {
	p.mu.Lock()
	prev := p.last[kind]
	p.last[kind] = name
	p.mu.Unlock()
	if prev != name {
		p.logger.Info("probe source selected", "kind", kind, "source", name)
	}
}

func normalize(id activity.Identity) activity.Identity {
	id.App = strings.TrimSpace(id.App)
	id.Title = strings.TrimSpace(id.Title)
	return id
}

// exeName reduces an executable path to a lower-case name without ".exe".
func exeName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.ToLower(base)
	return strings.TrimSuffix(base, ".exe")
}

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with exec.CommandContext.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), ErrUnavailable)
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// Unavailable is a window and idle source that never answers.
type Unavailable struct{}

func (Unavailable) Name() string { return "unavailable" }

func (Unavailable) ActiveWindow(context.Context) (activity.Identity, error) {
	return activity.Identity{}, ErrUnavailable
}

func (Unavailable) IdleMillis(context.Context) (int64, error) {
	return 0, ErrUnavailable
}
