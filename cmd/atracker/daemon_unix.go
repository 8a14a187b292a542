//go:build !windows

package main

import (
	"os"
	"syscall"
)

// daemonSysProcAttr makes the detached daemon its own session leader so it
// survives the terminal closing.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}

// reloadSignals re-read the config file.
func reloadSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP}
}
