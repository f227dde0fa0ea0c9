package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
)

// DirLock is a cross-process exclusive lock on a data directory, so two
// processes never write the same snapshot.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock returns a lock backed by <dir>/.lock.
func NewDirLock(dir string) *DirLock {
	path := filepath.Join(dir, ".lock")
	return &DirLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. A lock held by another
// process yields ErrCodeDataDirLocked.
func (l *DirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return sferrors.Newf(sferrors.ErrCodeDataDirLocked, "data directory %s is in use by another process", filepath.Dir(l.path)).
			WithSuggestion("stop the running server or use a different data_dir")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not locked.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}
