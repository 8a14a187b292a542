//go:build linux

package probe

import "log/slog"

// Default builds the Linux probe: the GNOME Shell extension first, then the
// X11 tools; Mutter for idle time, then xprintidle.
func Default(logger *slog.Logger) (*Probe, func() error) {
	bus := &Bus{}
	p := New(
		[]WindowSource{NewShellExtension(bus), NewXTools(nil)},
		[]IdleSource{NewMutterIdle(bus), NewXPrintIdle(nil)},
		WithLogger(logger),
	)
	return p, bus.Close
}
