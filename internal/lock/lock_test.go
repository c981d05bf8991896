package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements RedisClient with an in-memory key space.
type fakeRedis struct {
	mu      sync.Mutex
	keys    map[string]string
	setErr  error
	evals   int
	setnxes int
}

func newFakeRedis() *fakeRedis { return &fakeRedis{keys: make(map[string]string)} }

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setnxes++
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	f := newFakeRedis()
	l := NewRedisLocker(f, time.Second, 100*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "task:1")
	require.NoError(t, err)
	assert.Contains(t, f.keys, "lock:task:1")

	_, err = l.Acquire(ctx, "task:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, unlock())
	require.NoError(t, unlock())
	assert.Equal(t, 1, f.evals)
	assert.NotContains(t, f.keys, "lock:task:1")

	unlock2, err := l.Acquire(ctx, "task:1")
	require.NoError(t, err)
	require.NoError(t, unlock2())
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	f := newFakeRedis()
	l := NewRedisLocker(f, time.Second, 0)

	unlock, err := l.Acquire(context.Background(), "task:1")
	require.NoError(t, err)
	// Lock expired and someone else took it.
	f.keys["lock:task:1"] = "someone-else"
	require.NoError(t, unlock())
	assert.Equal(t, "someone-else", f.keys["lock:task:1"])
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	f := newFakeRedis()
	l := NewRedisLocker(f, time.Second, 2*time.Second)
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "task:1")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = unlock()
	}()

	unlock2, err := l.Acquire(ctx, "task:1")
	require.NoError(t, err)
	require.NoError(t, unlock2())
}

func TestRedisLocker_PropagatesClientError(t *testing.T) {
	f := newFakeRedis()
	f.setErr = errors.New("connection refused")
	l := NewRedisLocker(f, time.Second, time.Second)

	_, err := l.Acquire(context.Background(), "task:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
}

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	l := NewLocalLocker(0)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(ctx, "task:1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots)
}

func TestLocalLocker_TimeoutAndIndependentKeys(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Acquire(ctx, "task:1")
	require.NoError(t, err)
	defer unlock()

	_, err = l.Acquire(ctx, "task:1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Acquire(ctx, "task:2")
	require.NoError(t, err)
	require.NoError(t, other())
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker(0)
	unlock, err := l.Acquire(context.Background(), "task:1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "task:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
