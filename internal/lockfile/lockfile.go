// Package lockfile guards a state directory with an exclusive flock so two
// relay processes never write the same SQLite database.
//
// The lock is held on an open file descriptor and the kernel drops it when
// the process exits, cleanly or not.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "leadrelay.lock"

// ErrLocked is matched by the error returned when another process holds the lock.
var ErrLocked = errors.New("state directory locked by another process")

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// HeldError describes the process currently holding a lock.
type HeldError struct {
	Path   string
	Holder string // contents summary of the existing lock file
	Cause  error
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("another LeadRelay instance is using this state directory (lock file %s", e.Path)
	if e.Holder != "" {
		msg += ", " + e.Holder
	}
	return msg + "); stop it or remove the lock file if the holder is gone"
}

func (e *HeldError) Unwrap() []error { return []error{ErrLocked, e.Cause} }

// Acquire takes the lock for stateDir, creating the directory if needed.
// database is recorded in the lock file for diagnostics.
func Acquire(stateDir, database string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(path)
		slog.Error("Lockfile acquire failed", "path", path, "holder", holder, "error", err)
		return nil, &HeldError{Path: path, Holder: holder, Cause: err}
	}

	content := fmt.Sprintf("pid=%d\ndb=%s\n", os.Getpid(), database)
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte(content), 0)
		if err != nil {
			slog.Warn("Lockfile write failed", "path", path, "error", err)
		}
	}

	slog.Info("Lockfile acquired", "path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a waiting process never sees our stale content.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile remove failed", "path", l.path, "error", err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lockfile unlock failed", "path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lockfile released", "path", l.path)
	return err
}

// describeHolder summarises an existing lock file.
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return strings.TrimSpace(string(data))
	}
	if processAlive(pid) {
		return fmt.Sprintf("held by PID %d", pid)
	}
	return fmt.Sprintf("PID %d is not running", pid)
}

// parsePID reads the pid= line of a lock file.
func parsePID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "pid="); ok {
			if pid, err := strconv.Atoi(v); err == nil {
				return pid
			}
		}
	}
	return 0
}

// processAlive sends signal 0 to pid.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
