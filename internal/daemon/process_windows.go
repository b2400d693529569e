//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

// IsProcessRunning checks if a process with the given PID is running
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	process.Release()
	return true
}

func detach(cmd *exec.Cmd) {}

// Windows has no SIGTERM; the daemon is stopped outright.
func terminate(process *os.Process) error {
	return process.Kill()
}
