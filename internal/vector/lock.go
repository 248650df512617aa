package vector

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// IndexLock serializes index builds across processes with gofrs/flock.
// Only one writer may rebuild the vector index at a time; readers load
// the persisted snapshot and never take the lock.
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIndexLock creates a lock scoped to the data directory.
// The lock file lives at <dir>/.index.lock.
func NewIndexLock(dir string) *IndexLock {
	lockPath := filepath.Join(dir, ".index.lock")
	return &IndexLock{path: lockPath, flock: flock.New(lockPath)}
}

// Lock blocks until the exclusive lock is acquired.
func (l *IndexLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("cannot create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("cannot acquire index lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock without blocking. Returns false when
// another process holds it.
func (l *IndexLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("cannot create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("cannot acquire index lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *IndexLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("cannot release index lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *IndexLock) Path() string { return l.path }
