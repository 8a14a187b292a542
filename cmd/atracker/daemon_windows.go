//go:build windows

package main

import (
	"os"
	"syscall"
)

// daemonSysProcAttr runs the daemon without a console window.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow: true,
	}
}

// reloadSignals is empty; the config file watcher covers reloads on Windows.
func reloadSignals() []os.Signal {
	return nil
}
