package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"atracker/internal/activity"
)

// XTools reads the active X11 window (including XWayland clients) through
// xdotool and xprop.
type XTools struct {
	run Runner
}

// NewXTools returns an X11 window source. A nil runner uses ExecRunner.
func NewXTools(run Runner) *XTools {
	if run == nil {
		run = ExecRunner
	}
	return &XTools{run: run}
}

func (x *XTools) Name() string { return "xdotool" }

// ActiveWindow resolves the focused window id with xdotool, then reads its
// title and pid with xdotool and its class with xprop. Missing title, pid or
// class leave the field empty.
func (x *XTools) ActiveWindow(ctx context.Context) (activity.Identity, error) {
	out, err := x.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return activity.Identity{}, fmt.Errorf("xdotool getactivewindow: %w", err)
	}
	wid := strings.TrimSpace(string(out))
	if wid == "" {
		return activity.Identity{}, ErrNoWindow
	}

	var id activity.Identity
	if out, err := x.run(ctx, "xdotool", "getwindowname", wid); err == nil {
		id.Title = strings.TrimSpace(string(out))
	}
	if out, err := x.run(ctx, "xdotool", "getwindowpid", wid); err == nil {
		id.PID, _ = strconv.Atoi(strings.TrimSpace(string(out)))
	}
	if out, err := x.run(ctx, "xprop", "-id", wid, "WM_CLASS"); err == nil {
		id.App = parseWMClass(string(out))
	}

	if id.App == "" && id.Title == "" {
		return activity.Identity{}, ErrNoWindow
	}
	return id, nil
}

// parseWMClass extracts the class from `WM_CLASS(STRING) = "instance", "class"`.
// The second quoted value wins; a single value is used as is.
func parseWMClass(line string) string {
	parts := strings.Split(line, `"`)
	switch {
	case len(parts) > 3:
		return parts[3]
	case len(parts) > 1:
		return parts[1]
	default:
		return ""
	}
}

// XPrintIdle reads the X11 idle time through xprintidle.
type XPrintIdle struct {
	run Runner
}

// NewXPrintIdle returns an idle source. A nil runner uses ExecRunner.
func NewXPrintIdle(run Runner) *XPrintIdle {
	if run == nil {
		run = ExecRunner
	}
	return &XPrintIdle{run: run}
}

func (x *XPrintIdle) Name() string { return "xprintidle" }

func (x *XPrintIdle) IdleMillis(ctx context.Context) (int64, error) {
	out, err := x.run(ctx, "xprintidle")
	if err != nil {
		return 0, fmt.Errorf("xprintidle: %w", err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse xprintidle output: %w", err)
	}
	return ms, nil
}
