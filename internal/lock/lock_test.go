package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/facade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(cfg Config) (*Service, *adapter.InProcessAdapter) {
	a := adapter.NewInProcess()
	f := facade.New(a, facade.Config{DefaultTimeoutMs: 200})
	return New(f, cfg), a
}

func TestAcquireLockExclusivity(t *testing.T) {
	svc, a := newTestService(Config{KeyPrefix: "lock"})
	defer a.Close()
	ctx := context.Background()

	_, ok1, err := svc.AcquireLock(ctx, "res", 5000, "owner-a")
	require.NoError(t, err)
	assert.True(t, ok1)

	_, ok2, err := svc.AcquireLock(ctx, "res", 5000, "owner-b")
	require.NoError(t, err)
	assert.False(t, ok2, "a second acquire while the lock is held must fail")

	locked, err := svc.IsLocked(ctx, "res")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestReleaseLockOnlyByOwner(t *testing.T) {
	svc, a := newTestService(Config{KeyPrefix: "lock"})
	defer a.Close()
	ctx := context.Background()

	_, ok, err := svc.AcquireLock(ctx, "res", 5000, "owner-a")
	require.NoError(t, err)
	require.True(t, ok)

	released, err := svc.ReleaseLock(ctx, "res", "owner-b")
	require.NoError(t, err)
	assert.False(t, released, "release by a non-owner must not succeed")

	released, err = svc.ReleaseLock(ctx, "res", "owner-a")
	require.NoError(t, err)
	assert.True(t, released)

	locked, err := svc.IsLocked(ctx, "res")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestExtendLockOnlyByOwner(t *testing.T) {
	svc, a := newTestService(Config{KeyPrefix: "lock"})
	defer a.Close()
	ctx := context.Background()

	_, ok, err := svc.AcquireLock(ctx, "res", 5000, "owner-a")
	require.NoError(t, err)
	require.True(t, ok)

	extended, err := svc.ExtendLock(ctx, "res", 10000, "owner-b")
	require.NoError(t, err)
	assert.False(t, extended)

	extended, err = svc.ExtendLock(ctx, "res", 10000, "owner-a")
	require.NoError(t, err)
	assert.True(t, extended)
}

func TestWithLockSerializesConcurrentCallers(t *testing.T) {
	svc, a := newTestService(Config{KeyPrefix: "lock"})
	defer a.Close()
	ctx := context.Background()

	var mu sync.Mutex
	active := 0
	maxActive := 0
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.WithLock(ctx, "critical", func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			}, WithLockOptions{TTLMs: 2000, TimeoutMs: 2000, RetryIntervalMs: 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "withLock must serialize access to the critical section")

	locked, err := svc.IsLocked(ctx, "critical")
	require.NoError(t, err)
	assert.False(t, locked, "lock must be released after every caller finishes")
}

func TestWithLockTimesOutUnderContention(t *testing.T) {
	svc, a := newTestService(Config{KeyPrefix: "lock"})
	defer a.Close()
	ctx := context.Background()

	_, ok, err := svc.AcquireLock(ctx, "busy", 5000, "holder")
	require.NoError(t, err)
	require.True(t, ok)

	err = svc.WithLock(ctx, "busy", func(ctx context.Context) error {
		return nil
	}, WithLockOptions{TTLMs: 5000, TimeoutMs: 20, RetryIntervalMs: 5})

	require.Error(t, err)
	var timeoutErr *ErrAcquireTimeout
	assert.ErrorAs(t, err, &timeoutErr)
}
