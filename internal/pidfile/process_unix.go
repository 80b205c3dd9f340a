//go:build !windows

package pidfile

import (
	"errors"
	"os"
	"syscall"
)

// processAlive probes pid with signal 0. EPERM means it exists but belongs
// to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
