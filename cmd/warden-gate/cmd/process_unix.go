//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// shutdownSignals lists the signals that trigger a graceful stop:
// SIGINT (Ctrl+C) and SIGTERM (kill) on Unix.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// processAlive reports whether the process still runs, via Signal(0).
func processAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// requestStop asks the process to shut down gracefully with SIGTERM.
func requestStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
