package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_ReleasesAfterBodyError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.lock")
	locker := NewLocker(5 * time.Millisecond)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), path, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ran := false
	require.NoError(t, locker.WithLock(ctx, path, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestLocker_WaitHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "key.lock")
	holder := NewLocker(5 * time.Millisecond)

	unlock, err := holder.Acquire(context.Background(), path)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = NewLocker(5*time.Millisecond).WithLock(ctx, path, func() error {
		t.Fatal("body must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_MutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.lock")

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := NewLocker(time.Millisecond).WithLock(context.Background(), path, func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}
