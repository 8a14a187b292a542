// Package daemon manages the single running tracker instance: the pid file
// and its advisory lock, the state file read by `status`, and stop/reload
// signalling from a second process.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Acquire when another instance holds the lock.
	ErrAlreadyRunning = errors.New("atracker is already running")

	// ErrNotRunning is returned when a signal is requested but no daemon runs.
	ErrNotRunning = errors.New("atracker is not running")
)

// State is written by the running daemon for `status`.
type State struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	Addr      string    `json:"addr"`
	DBPath    string    `json:"db_path"`
	DeviceID  string    `json:"device_id"`
}

// Status is the daemon status for display.
type Status struct {
	Running   bool          `json:"running"`
	PID       int           `json:"pid,omitempty"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Version   string        `json:"version,omitempty"`
	Addr      string        `json:"addr,omitempty"`
	DBPath    string        `json:"db_path,omitempty"`
}

// Manager handles daemon lifecycle files under a data directory.
type Manager struct {
	pidFile   string
	stateFile string
	lock      *os.File
	now       func() time.Time
}

// NewManager creates a manager for dataDir.
func NewManager(dataDir string) *Manager {
	return &Manager{
		pidFile:   filepath.Join(dataDir, "atracker.pid"),
		stateFile: filepath.Join(dataDir, "atracker.state"),
		now:       time.Now,
	}
}

// PIDFile returns the pid file path.
func (m *Manager) PIDFile() string { return m.pidFile }

// Acquire takes the single-instance lock, then records the pid and state.
// The lock is held until Release or process exit.
func (m *Manager) Acquire(state *State) error {
	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0700); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}

	f, err := os.OpenFile(m.pidFile, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("open pid file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, errLocked) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("lock pid file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		unlockFile(f)
		f.Close()
		return fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		unlockFile(f)
		f.Close()
		return fmt.Errorf("write pid file: %w", err)
	}
	m.lock = f

	if state != nil {
		state.PID = os.Getpid()
		if state.StartedAt.IsZero() {
			state.StartedAt = m.now()
		}
		if err := m.WriteState(state); err != nil {
			return err
		}
	}
	return nil
}

// Release drops the lock and removes the lifecycle files.
func (m *Manager) Release() error {
	if m.lock == nil {
		return nil
	}
	m.Cleanup()
	unlockFile(m.lock)
	err := m.lock.Close()
	m.lock = nil
	return err
}

// ReadPID reads the daemon's PID from the PID file.
func (m *Manager) ReadPID() (int, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// WriteState writes the daemon state.
func (m *Manager) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(m.stateFile, data, 0600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// ReadState reads the daemon state.
func (m *Manager) ReadState() (*State, error) {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// IsRunning reports whether the pid file names a live process.
func (m *Manager) IsRunning() bool {
	pid, err := m.ReadPID()
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// Status returns the current daemon status. A stale pid file reads as not running.
func (m *Manager) Status() (*Status, error) {
	status := &Status{}

	if pid, err := m.ReadPID(); err == nil && processAlive(pid) {
		status.Running = true
		status.PID = pid
	}

	if !status.Running {
		return status, nil
	}

	state, err := m.ReadState()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return status, nil
		}
		return status, err
	}
	status.StartedAt = state.StartedAt
	status.Version = state.Version
	status.Addr = state.Addr
	status.DBPath = state.DBPath
	status.Uptime = m.now().Sub(state.StartedAt).Round(time.Second)
	return status, nil
}

// SignalStop asks the running daemon to shut down gracefully.
func (m *Manager) SignalStop() error {
	pid, err := m.runningPID()
	if err != nil {
		return err
	}
	return signalStop(pid)
}

// SignalReload asks the running daemon to reload its configuration.
func (m *Manager) SignalReload() error {
	pid, err := m.runningPID()
	if err != nil {
		return err
	}
	return signalReload(pid)
}

func (m *Manager) runningPID() (int, error) {
	pid, err := m.ReadPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("read PID: %w", err)
	}
	if !processAlive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// WaitForStop waits for the daemon to exit.
func (m *Manager) WaitForStop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !m.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %v", timeout)
}

// Cleanup removes the PID and state files.
func (m *Manager) Cleanup() {
	os.Remove(m.pidFile)
	os.Remove(m.stateFile)
}
