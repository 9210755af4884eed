package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// lockFileName is the advisory lock file inside a session directory.
const lockFileName = "LOCK"

// LockHeldError is returned when another daemon process already owns the
// session. PID is read from the lock file and is diagnostic only; the actual
// exclusion comes from the kernel flock, not the file contents.
type LockHeldError struct {
	PID  int
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("session already in use by PID %d (%s)", e.PID, e.Path)
}

// Lock is an acquired exclusive session lock. A session directory holds one
// SQLite-backed pipeline; two daemons writing it concurrently would corrupt
// ordering guarantees, so exactly one may hold the lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive flock on the session directory's lock file,
// creating the directory if needed. Returns LockHeldError when a live process
// holds it; the flock is non-blocking, so a contended acquire fails fast.
func Acquire(sessionDir string) (*Lock, error) {
	lockPath := filepath.Join(sessionDir, lockFileName)

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		return nil, &LockHeldError{PID: holderPID(string(data)), Path: lockPath}
	}

	// Record who holds it, for the error message of the next contender.
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	stamp := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(stamp); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Release drops the flock and removes the lock file. Safe on a nil receiver
// and safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// holderPID extracts the pid= line a previous holder wrote. Zero means the
// file was empty or unparseable.
func holderPID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ := strconv.Atoi(after)
			return pid
		}
	}
	return 0
}
