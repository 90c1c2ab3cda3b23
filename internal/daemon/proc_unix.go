//go:build unix

package daemon

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessRunning checks if a process with the given PID is running.
// EPERM means it exists but belongs to someone else.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func isConnRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}
