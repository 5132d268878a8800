package gitrepos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var (
	// ErrLockTimeout indicates the lock acquisition timed out
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrLockWouldBlock indicates the lock is held by another process
	ErrLockWouldBlock = errors.New("lock is held by another process")
)

const (
	minLockPoll = 10 * time.Millisecond
	maxLockPoll = 500 * time.Millisecond
)

// FileLock is an exclusive flock(2) on a file in the workspace. Jobs hold one per
// repository and the file status store holds one per write, so processes sharing a
// workspace never clone the same repository or overwrite each other's records.
// The kernel drops the lock when the holder exits.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns an unheld lock on path. The file and its parent directories
// are created on first acquisition.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock takes the lock without blocking. It reports false when another holder
// has it; errors are reserved for unexpected failures.
func (l *FileLock) TryLock() (bool, error) {
	if l.file != nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file: %w", err)
	}

	err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	switch {
	case err == nil:
		l.file = file
		return true, nil
	case errors.Is(err, syscall.EWOULDBLOCK):
		_ = file.Close()
		return false, nil
	default:
		_ = file.Close()
		return false, fmt.Errorf("flock failed: %w", err)
	}
}

// LockWithContext polls for the lock with backoff until it is taken, timeout
// expires (ErrLockTimeout) or ctx is done.
func (l *FileLock) LockWithContext(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	poll := minLockPoll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		acquired, err := l.TryLock()
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrLockTimeout
		case <-time.After(poll):
			poll = min(poll*2, maxLockPoll)
		}
	}
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	err := syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	closeErr := file.Close()
	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// WithFileLock runs fn while holding the lock at path, waiting up to wait for it.
func WithFileLock(ctx context.Context, path string, wait time.Duration, fn func() error) (err error) {
	lock := NewFileLock(path)
	if err := lock.LockWithContext(ctx, wait); err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}()
	return fn()
}

// AcquireRepositoryLock takes the lock for repo under baseDir. With wait <= 0 it
// does not block and returns ErrLockWouldBlock when another holder exists;
// otherwise it waits up to wait and returns ErrLockTimeout.
func AcquireRepositoryLock(ctx context.Context, baseDir string, repo Repository, wait time.Duration) (*FileLock, error) {
	lock := NewFileLock(LockPath(baseDir, repo))

	if wait <= 0 {
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrLockWouldBlock
		}
		return lock, nil
	}

	if err := lock.LockWithContext(ctx, wait); err != nil {
		return nil, err
	}
	return lock, nil
}
