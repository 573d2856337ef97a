package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired means another holder owns the lock
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes planning on one line across processes
type Locker interface {
	// Acquire takes the lock for key and returns a function releasing it
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// LocalLocker serializes holders inside one process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}

// LineKey is the lock key for a production line
func LineKey(lineID string) string {
	return "lineplan:line:" + lineID
}
