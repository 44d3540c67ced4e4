package cache

import (
	"context"
	"strconv"
	"sync"

	"runserver.dev/cli/internal/application/ports"
)

// flight is the shared state of one in-process download. The download runs on
// ctx, which is cancelled only when the last waiter leaves, and reports
// progress to every waiter.
type flight struct {
	key    string // singleflight key, unique per flight
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	waiters   int
	nextID    int
	listeners map[int]ports.ProgressFunc
}

// report fans progress out to the current waiters
func (f *flight) report(done, total int64) {
	f.mu.Lock()
	listeners := make([]ports.ProgressFunc, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(done, total)
	}
}

// join registers a waiter on key, starting a flight if none is running. The
// returned function must be called once the waiter stops waiting.
func (c *ArtifactCache) join(ctx context.Context, key string, progress ports.ProgressFunc) (*flight, func()) {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	f, ok := c.flights[key]
	if !ok {
		c.flightSeq++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{
			key:       key + "#" + strconv.FormatUint(c.flightSeq, 10),
			ctx:       fctx,
			cancel:    cancel,
			listeners: make(map[int]ports.ProgressFunc),
		}
		c.flights[key] = f
	}

	f.mu.Lock()
	f.waiters++
	id := f.nextID
	f.nextID++
	if progress != nil {
		f.listeners[id] = progress
	}
	f.mu.Unlock()

	return f, func() {
		c.flightsMu.Lock()
		defer c.flightsMu.Unlock()

		f.mu.Lock()
		delete(f.listeners, id)
		f.waiters--
		last := f.waiters == 0
		f.mu.Unlock()

		if last {
			f.cancel()
			if c.flights[key] == f {
				delete(c.flights, key)
			}
		}
	}
}
