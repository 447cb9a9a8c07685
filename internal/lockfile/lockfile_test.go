package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestAcquireLockRecordsOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := AcquireLock(dir, ":3000")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("Path = %q", lock.Path())
	}
	data, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	owner, ok := parseOwner(string(data))
	if !ok {
		t.Fatalf("lock file not parseable: %q", data)
	}
	if owner.PID != os.Getpid() || owner.Addr != ":3000" || owner.StartedAt.IsZero() {
		t.Errorf("unexpected owner %+v", owner)
	}
}

func TestAcquireLockConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir, "127.0.0.1:8080")
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir, "")
	if err == nil {
		second.Release()
		t.Fatal("second AcquireLock succeeded while the first is held")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T: %v", err, err)
	}
	if !errors.Is(err, syscall.EWOULDBLOCK) {
		t.Errorf("expected EWOULDBLOCK cause, got %v", lockErr.Cause)
	}
	if !strings.Contains(lockErr.Holder, "(running)") || !strings.Contains(lockErr.Holder, "127.0.0.1:8080") {
		t.Errorf("holder description = %q", lockErr.Holder)
	}

	// The failed attempt must not clobber the holder's details.
	data, _ := os.ReadFile(first.Path())
	if owner, ok := parseOwner(string(data)); !ok || owner.Addr != "127.0.0.1:8080" {
		t.Errorf("lock file overwritten by loser: %q", data)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, "")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Errorf("lock file not removed: %v", err)
	}

	again, err := AcquireLock(dir, "")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again.Release()
}

func TestParseOwner(t *testing.T) {
	started := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	encoded := Owner{PID: 4242, Addr: ":3000", StartedAt: started}.encode()

	owner, ok := parseOwner(encoded)
	if !ok || owner.PID != 4242 || owner.Addr != ":3000" || !owner.StartedAt.Equal(started) {
		t.Errorf("round trip mismatch: %+v", owner)
	}

	// A pid line alone identifies the holder.
	if owner, ok := parseOwner("pid=17\n"); !ok || owner.PID != 17 {
		t.Errorf("pid-only file: %+v ok=%v", owner, ok)
	}
	for _, content := range []string{"", "garbage", "pid=abc\n"} {
		if _, ok := parseOwner(content); ok {
			t.Errorf("parseOwner(%q) should fail", content)
		}
	}
}

func TestDescribeHolderStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	// PIDs above the kernel maximum can never be running.
	if err := os.WriteFile(path, []byte("pid=999999999\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got := describeHolder(path); !strings.Contains(got, "stale lock file") {
		t.Errorf("describeHolder = %q", got)
	}
	if got := describeHolder(filepath.Join(t.TempDir(), "missing")); got != "holder unknown" {
		t.Errorf("missing file: %q", got)
	}
}
