package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the wait budget runs out while another
// holder keeps the key.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held key. Calling it more than once is a no-op.
type Unlock func() error

// Locker serializes work on a key across concurrent requests.
type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// LocalLocker serializes within one process. Used when no Redis is configured
// and in tests.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker waits up to wait for a busy key; wait <= 0 waits until ctx ends.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		t := time.NewTimer(l.wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() error {
			once.Do(func() {
				<-s.ch
				l.release(key, s)
			})
			return nil
		}, nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	case <-timeout:
		l.release(key, s)
		return nil, ErrNotAcquired
	}
}

func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
