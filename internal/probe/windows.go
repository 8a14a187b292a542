//go:build windows

package probe

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"

	"atracker/internal/activity"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetLastInputInfo     = user32.NewProc("GetLastInputInfo")
	procGetTickCount64       = kernel32.NewProc("GetTickCount64")
)

// lastInputInfo mirrors LASTINPUTINFO.
type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

// Win32 reads the foreground window and idle time through user32.
type Win32 struct{}

func (Win32) Name() string { return "win32" }

func (Win32) ActiveWindow(ctx context.Context) (activity.Identity, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return activity.Identity{}, ErrNoWindow
	}

	var id activity.Identity
	id.Title = windowText(hwnd)

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err == nil && pid != 0 {
		id.PID = int(pid)
		id.App = processName(pid)
	}

	if id.App == "" && id.Title == "" {
		return activity.Identity{}, ErrNoWindow
	}
	return id, nil
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func processName(pid uint32) string {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return exeName(windows.UTF16ToString(buf[:size]))
}

func (Win32) IdleMillis(ctx context.Context) (int64, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	ok, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if ok == 0 {
		return 0, fmt.Errorf("GetLastInputInfo: %w", err)
	}
	now, _, _ := procGetTickCount64.Call()
	// dwTime is the low 32 bits of the tick count.
	idle := uint32(uint64(now)) - info.dwTime
	return int64(idle), nil
}

// Default builds the Windows probe.
func Default(logger *slog.Logger) (*Probe, func() error) {
	p := New([]WindowSource{Win32{}}, []IdleSource{Win32{}}, WithLogger(logger))
	return p, func() error { return nil }
}
