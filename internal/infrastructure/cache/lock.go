package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultLockPollInterval is how often a waiting caller retries the lock
const DefaultLockPollInterval = 100 * time.Millisecond

// errLocked is returned by tryLock when another process holds the lock
var errLocked = errors.New("lock is held by another process")

// Locker provides cross-process mutual exclusion on lock files. The lock is an
// OS advisory lock, so it is released by the kernel when the holding process
// exits, however it exits.
type Locker struct {
	PollInterval time.Duration
}

// NewLocker creates a locker with the given poll interval
func NewLocker(pollInterval time.Duration) *Locker {
	if pollInterval <= 0 {
		pollInterval = DefaultLockPollInterval
	}
	return &Locker{PollInterval: pollInterval}
}

// WithLock acquires an exclusive lock on path, runs body and releases the lock
// on every exit path. Waiting honours ctx.
func (l *Locker) WithLock(ctx context.Context, path string, body func() error) error {
	unlock, err := l.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	return body()
}

// Acquire blocks until the lock on path is held or ctx is done
func (l *Locker) Acquire(ctx context.Context, path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	interval := l.PollInterval
	if interval <= 0 {
		interval = DefaultLockPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := tryLock(f)
		if err == nil {
			return func() {
				_ = unlock(f)
				_ = f.Close()
			}, nil
		}
		if !errors.Is(err, errLocked) {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("waiting for lock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}
