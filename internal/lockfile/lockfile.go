// Package lockfile keeps two VisitDesk processes from sharing a state directory.
//
// The lock is an flock on a file in the directory, so the kernel drops it
// when the holder exits, however it exits.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "visitdesk.lock"

const pidPrefix = "pid="

// Lock is a held state directory lock.
type Lock struct {
	file   *os.File
	path   string
	logger *zap.Logger
}

// AcquireLock takes an exclusive, non-blocking lock on stateDir, creating the
// directory if needed. When another process holds the lock the error is a
// *LockError describing it.
func AcquireLock(stateDir string, logger *zap.Logger) (*Lock, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("lockfile")
	lockPath := filepath.Join(stateDir, LockFileName)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create state directory %s", stateDir)
	}
	// No O_TRUNC: a losing contender must not wipe the holder's pid.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock file %s", lockPath)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		holder := describeHolder(lockPath)
		logger.Error("AcquireLock failed, state directory in use", zap.String("lock_path", lockPath), zap.String("holder", holder), zap.Error(err))
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if err := writePID(file); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
		return nil, errors.Wrapf(err, "write lock file %s", lockPath)
	}

	logger.Info("AcquireLock succeeded", zap.String("lock_path", lockPath), zap.Int("pid", os.Getpid()))
	return &Lock{file: file, path: lockPath, logger: logger}, nil
}

func writePID(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(fmt.Sprintf("%s%d\n", pidPrefix, os.Getpid())), 0); err != nil {
		return err
	}
	return file.Sync()
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a new holder never has its file deleted.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("Release could not remove lock file", zap.String("lock_path", l.path), zap.Error(err))
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.logger.Warn("Release flock unlock failed", zap.String("lock_path", l.path), zap.Error(err))
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return errors.Wrapf(err, "close lock file %s", l.path)
	}
	l.logger.Info("Release succeeded", zap.String("lock_path", l.path))
	return nil
}

// LockError reports a state directory already locked by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another VisitDesk instance is already running with this state directory (lock file %s", e.LockPath)
	if e.Holder != "" {
		fmt.Fprintf(&b, ", held by %s", e.Holder)
	}
	fmt.Fprintf(&b, "); if no other instance is running, remove %s and retry", e.LockPath)
	return b.String()
}

func (e *LockError) Unwrap() error { return e.Cause }

// describeHolder reads the pid in an existing lock file and reports whether
// that process is alive.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unknown process"
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return "unknown process"
	}
	if processRunning(pid) {
		return fmt.Sprintf("PID %d (running)", pid)
	}
	return fmt.Sprintf("PID %d (not running, stale lock)", pid)
}

// parsePID extracts N from a "pid=N" line, or returns 0.
func parsePID(content string) int {
	idx := strings.Index(content, pidPrefix)
	if idx < 0 {
		return 0
	}
	rest := content[idx+len(pidPrefix):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(rest)
	}
	pid, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return pid
}

// processRunning sends signal 0, which checks existence without delivering anything.
func processRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
