package fromdisk

import (
	"context"
	"sync"
)

type scopeLock struct {
	ch   chan struct{}
	refs int // holders plus waiters
}

// scopeLocks hands out one lock per scope key. Waiting respects ctx. A key's
// entry is dropped once nobody holds or waits for it.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*scopeLock)}
}

func (l *scopeLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &scopeLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		return func() {
			<-lock.ch
			l.done(key, lock)
		}, nil
	case <-ctx.Done():
		l.done(key, lock)
		return nil, ctx.Err()
	}
}

func (l *scopeLocks) done(key string, lock *scopeLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *scopeLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
