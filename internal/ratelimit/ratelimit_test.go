package ratelimit

import (
	"context"
	"testing"

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

func TestFixedWindowAdmitsUpToMaxThenDenies(t *testing.T) {
	svc, a := newTestService(Config{
		KeyPrefix: "rl",
		DefaultConfig: EndpointConfig{
			Strategy: FixedWindow, MaxRequests: 2, WindowSeconds: 60,
		},
	})
	defer a.Close()
	ctx := context.Background()

	r1, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, r1.Allowed)
	assert.Equal(t, 1, r1.Remaining)

	r2, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, r2.Allowed)
	assert.Equal(t, 0, r2.Remaining)

	r3, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.False(t, r3.Allowed)
	assert.Greater(t, r3.RetryAfter, int64(0))
	assert.Contains(t, r3.Headers, "Retry-After")
}

func TestFixedWindowResetClearsCounter(t *testing.T) {
	svc, a := newTestService(Config{
		KeyPrefix: "rl",
		DefaultConfig: EndpointConfig{
			Strategy: FixedWindow, MaxRequests: 1, WindowSeconds: 60,
		},
	})
	defer a.Close()
	ctx := context.Background()

	_, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	denied, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	require.NoError(t, svc.Reset(ctx, "user1", "ep"))

	allowed, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
}

func TestSlidingWindowAdmitsUpToMax(t *testing.T) {
	svc, a := newTestService(Config{
		KeyPrefix: "rl",
		DefaultConfig: EndpointConfig{
			Strategy: SlidingWindow, MaxRequests: 2, WindowSeconds: 60,
		},
	})
	defer a.Close()
	ctx := context.Background()

	r1, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, r1.Allowed)

	r2, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, r2.Allowed)

	r3, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.False(t, r3.Allowed)
}

func TestTokenBucketAdmitsThenDepletes(t *testing.T) {
	svc, a := newTestService(Config{
		KeyPrefix: "rl",
		DefaultConfig: EndpointConfig{
			Strategy: TokenBucket, BucketSize: 2, RefillRate: 0.001,
		},
	})
	defer a.Close()
	ctx := context.Background()

	r1, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, r1.Allowed)

	r2, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, r2.Allowed)

	r3, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.False(t, r3.Allowed)
}

func TestMultiTierDeniesWhenAnyTierDenies(t *testing.T) {
	svc, a := newTestService(Config{
		KeyPrefix: "rl",
		DefaultConfig: EndpointConfig{
			Strategy: MultiTier,
			Tiers: []EndpointConfig{
				{MaxRequests: 100, WindowSeconds: 3600},
				{MaxRequests: 1, WindowSeconds: 1},
			},
		},
	})
	defer a.Close()
	ctx := context.Background()

	r1, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.True(t, r1.Allowed)

	r2, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.False(t, r2.Allowed, "second tier's tighter limit must deny the whole request")
}

func TestQuotaAdmitsUntilExhausted(t *testing.T) {
	svc, a := newTestService(Config{
		KeyPrefix: "rl",
		DefaultConfig: EndpointConfig{
			Strategy: Quota, QuotaLimit: 3, QuotaPeriodSeconds: 3600,
		},
	})
	defer a.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, err := svc.Check(ctx, "user1", "ep")
		require.NoError(t, err)
		assert.True(t, r.Allowed)
	}
	denied, err := svc.Check(ctx, "user1", "ep")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
}
