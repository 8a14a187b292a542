package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"atracker/internal/activity"
)

// D-Bus names of the GNOME Shell extension and the Mutter idle monitor.
const (
	TrackerBusName  = "org.atracker.WindowTracker"
	TrackerPath     = dbus.ObjectPath("/org/atracker/WindowTracker")
	trackerMethod   = TrackerBusName + ".GetActiveWindow"
	IdleMonitorName = "org.gnome.Mutter.IdleMonitor"
	IdleMonitorPath = dbus.ObjectPath("/org/gnome/Mutter/IdleMonitor/Core")
	idleMonitorCall = IdleMonitorName + ".GetIdletime"
)

// Bus lazily connects to the session bus and reconnects after a failure.
type Bus struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (b *Bus) object(dest string, path dbus.ObjectPath) (dbus.BusObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || !b.conn.Connected() {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, fmt.Errorf("connect session bus: %w", err)
		}
		b.conn = conn
	}
	return b.conn.Object(dest, path), nil
}

// Close releases the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// ShellExtension asks the atracker GNOME Shell extension for the focused
// window. It works on Wayland sessions where X11 tools see nothing.
type ShellExtension struct {
	bus *Bus
}

// NewShellExtension returns a window source over bus.
func NewShellExtension(bus *Bus) *ShellExtension {
	return &ShellExtension{bus: bus}
}

func (s *ShellExtension) Name() string { return "gnome-extension" }

func (s *ShellExtension) ActiveWindow(ctx context.Context) (activity.Identity, error) {
	obj, err := s.bus.object(TrackerBusName, TrackerPath)
	if err != nil {
		return activity.Identity{}, err
	}
	var reply string
	if err := obj.CallWithContext(ctx, trackerMethod, 0).Store(&reply); err != nil {
		return activity.Identity{}, fmt.Errorf("call %s: %w", trackerMethod, err)
	}
	return parseTrackerReply(reply)
}

type trackerReply struct {
	WMClass string `json:"wm_class"`
	Title   string `json:"title"`
	PID     int    `json:"pid"`
}

// parseTrackerReply decodes the extension's {wm_class,title,pid} JSON.
func parseTrackerReply(reply string) (activity.Identity, error) {
	var r trackerReply
	if err := json.Unmarshal([]byte(reply), &r); err != nil {
		return activity.Identity{}, fmt.Errorf("decode window reply: %w", err)
	}
	if r.WMClass == "" && r.Title == "" {
		return activity.Identity{}, ErrNoWindow
	}
	return activity.Identity{App: r.WMClass, Title: r.Title, PID: r.PID}, nil
}

// MutterIdle reads the idle time from the GNOME Mutter idle monitor.
type MutterIdle struct {
	bus *Bus
}

// NewMutterIdle returns an idle source over bus.
func NewMutterIdle(bus *Bus) *MutterIdle {
	return &MutterIdle{bus: bus}
}

func (m *MutterIdle) Name() string { return "mutter-idle" }

func (m *MutterIdle) IdleMillis(ctx context.Context) (int64, error) {
	obj, err := m.bus.object(IdleMonitorName, IdleMonitorPath)
	if err != nil {
		return 0, err
	}
	var ms uint64
	if err := obj.CallWithContext(ctx, idleMonitorCall, 0).Store(&ms); err != nil {
		return 0, fmt.Errorf("call %s: %w", idleMonitorCall, err)
	}
	return int64(ms), nil
}
