// Package lockfile keeps two OrderPipe processes from sharing one SQLite state directory.
//
// The lock is an flock(2) on a file inside the directory, so the kernel drops it when the
// holder exits, cleanly or not. The file body records who holds it for error messages.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "orderpipe.lock"

// Owner describes the process holding a lock.
type Owner struct {
	PID       int
	Addr      string
	StartedAt time.Time
}

func (o Owner) encode() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pid=%d\n", o.PID)
	if o.Addr != "" {
		fmt.Fprintf(&sb, "addr=%s\n", o.Addr)
	}
	fmt.Fprintf(&sb, "started=%s\n", o.StartedAt.UTC().Format(time.RFC3339))
	return sb.String()
}

// parseOwner reads the key=value lines written by encode. Unknown keys are ignored.
func parseOwner(content string) (Owner, bool) {
	var o Owner
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil {
				o.PID = pid
			}
		case "addr":
			o.Addr = value
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				o.StartedAt = t
			}
		}
	}
	return o, o.PID > 0
}

// Lock is a held state directory lock.
type Lock struct {
	file  *os.File
	path  string
	owner Owner
}

// AcquireLock takes the exclusive lock on stateDir, creating the directory if needed.
// addr is recorded for diagnostics and may be empty. A held lock yields a *LockError.
func AcquireLock(stateDir, addr string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Lockfile.AcquireLock: acquiring", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the holder's details before we know whether we win the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("Lockfile.AcquireLock: state directory is locked by another OrderPipe instance", "lock_path", lockPath, "holder", holder, "error", err)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	owner := Owner{PID: os.Getpid(), Addr: addr, StartedAt: time.Now()}
	if err := writeOwner(file, owner); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Lockfile.AcquireLock: state directory locked", "lock_path", lockPath, "pid", owner.PID)
	return &Lock{file: file, path: lockPath, owner: owner}, nil
}

func writeOwner(file *os.File, owner Owner) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(owner.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Lockfile.writeOwner: failed to sync lock file", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Owner returns the details recorded for this process.
func (l *Lock) Owner() Owner { return l.owner }

// Release unlocks and removes the lock file. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove: %w", err))
	}
	l.file = nil

	if err := errors.Join(errs...); err != nil {
		slog.Error("Lockfile.Release: release incomplete", "lock_path", l.path, "error", err)
		return err
	}
	slog.Info("Lockfile.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// LockError is returned when another process holds the lock.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := "another OrderPipe instance is using this state directory (lock file " + e.LockPath + ")"
	if e.Holder != "" {
		msg += ": " + e.Holder
	}
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder summarizes the lock file body for LockError.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "holder unknown"
	}
	owner, ok := parseOwner(string(data))
	if !ok {
		return "holder unknown"
	}
	state := "running"
	if !processRunning(owner.PID) {
		state = "not running, stale lock file"
	}
	desc := fmt.Sprintf("pid %d (%s)", owner.PID, state)
	if owner.Addr != "" {
		desc += " serving " + owner.Addr
	}
	if !owner.StartedAt.IsZero() {
		desc += " since " + owner.StartedAt.Format(time.RFC3339)
	}
	return desc
}

// processRunning sends signal 0, which only checks that pid exists.
func processRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
