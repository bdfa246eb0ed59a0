//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// stillActive is the Windows exit code of a process that has not exited.
const stillActive = 259

// shutdownSignals lists the signals that trigger a graceful stop. Only
// os.Interrupt (Ctrl+C) is reliably delivered on Windows; SIGTERM does
// not exist there.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processAlive reports whether the process still runs by opening a
// limited-information handle and reading its exit code.
func processAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == stillActive
}

// requestStop terminates the process. Windows has no SIGTERM, so Kill
// (TerminateProcess) is the closest available.
func requestStop(proc *os.Process) error {
	return proc.Kill()
}
