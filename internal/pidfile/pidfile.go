// Package pidfile records the server's PID so init scripts can signal it.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRunning is returned by Create when the file names a live process.
var ErrRunning = errors.New("another instance is running")

// Pidfile is a PID file owned by this process.
type Pidfile struct {
	path string
	pid  int
}

// Create writes the current PID to path. A stale file left by a dead
// process is replaced; a file naming a live process other than this one
// yields ErrRunning.
func Create(path string) (*Pidfile, error) {
	pid := os.Getpid()

	if existing, err := Read(path); err == nil && existing != pid && processAlive(existing) {
		return nil, fmt.Errorf("%w: pid %d in %s", ErrRunning, existing, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to write pidfile: %w", err)
	}

	return &Pidfile{path: path, pid: pid}, nil
}

// Read returns the PID stored at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}
	return pid, nil
}

// Remove deletes the file if it still holds this process's PID.
func (p *Pidfile) Remove() error {
	if pid, err := Read(p.path); err == nil && pid != p.pid {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Path returns the PID file path
func (p *Pidfile) Path() string {
	return p.path
}
