package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events an editor save produces.
const settleDelay = 100 * time.Millisecond

// Loader owns the active configuration of one file and reloads it when the
// file changes. A rejected reload keeps the previous configuration.
type Loader struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)

	watcher   *fsnotify.Watcher
	stop      chan struct{}
	closeOnce sync.Once
	errs      chan error
}

// NewLoader creates a loader for path, or for ConfigPath when path is empty.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	return &Loader{
		path:   path,
		logger: slog.Default().With("component", "config"),
		stop:   make(chan struct{}),
		errs:   make(chan error, 1),
	}
}

// Path returns the watched file.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, overrides and validates the file and makes it current.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.parse()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) parse() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to run after every accepted reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Errors delivers watch and reload failures. Only the latest unread one is
// kept.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Reload re-reads the file and notifies listeners.
func (l *Loader) Reload() error {
	cfg, err := l.parse()
	if err != nil {
		err = fmt.Errorf("reload config: %w", err)
		l.logger.Warn("config reload rejected", "path", l.path, "error", err)
		l.report(err)
		return err
	}

	l.mu.Lock()
	l.current = cfg
	listeners := append(([]func(*Config))(nil), l.listeners...)
	l.mu.Unlock()

	l.logger.Info("config reloaded", "path", l.path)
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// Watch reloads the file whenever it is written, created or renamed into
// place. The parent directory is watched since editors replace files on save.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = w
	go l.watch(w)
	return nil
}

func (l *Loader) watch(w *fsnotify.Watcher) {
	name := filepath.Base(l.path)
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-l.stop:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(settleDelay, func() { _ = l.Reload() })
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

// Close stops watching. It is safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}

// LoadFromEnv returns the defaults with environment overrides applied.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	return cfg
}

// LoadOrCreate loads the configuration from path, writing a default file
// first when none exists. The bool reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)
	if created {
		if err := SaveConfig(DefaultConfig(), path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, created, nil
}
