//go:build !unix

package daemon

import "os"

// isProcessRunning only knows whether the PID can be looked up here.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

func isConnRefused(error) bool { return false }
