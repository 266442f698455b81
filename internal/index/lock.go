package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

// FileLock is the cross-process writer lock of a data directory.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock on path. The file is created on first lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. If another process holds it,
// TryLock returns a BuildLocked error.
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return awerrors.New(awerrors.ErrCodeBuildLocked, "another build is in progress", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Wait for the running build to finish, or remove the lock file if no build is running")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked reports whether this FileLock holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.locked
}
