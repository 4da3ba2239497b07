package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisAdapter(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	a, err := NewRedisAdapter(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	return a, mr
}

func TestRedisAdapterStringRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisAdapter(t)
	defer mr.Close()
	defer a.Close()

	ok, err := a.Set(ctx, "k1", "v1", SetOptions{})
	require.NoError(t, err)
	assert.True(t, ok)

	v, ok, err := a.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	stored, err := mr.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", stored)
}

func TestRedisAdapterSetNXRespectsExisting(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisAdapter(t)
	defer mr.Close()
	defer a.Close()

	_, err := a.Set(ctx, "k2", "v2", SetOptions{})
	require.NoError(t, err)

	ok, err := a.Set(ctx, "k2", "v2b", SetOptions{NX: true})
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := mr.Get("k2")
	require.NoError(t, err)
	assert.Equal(t, "v2", stored)
}

func TestRedisAdapterExpiry(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisAdapter(t)
	defer mr.Close()
	defer a.Close()

	_, err := a.Set(ctx, "ttl-key", "v", SetOptions{EX: 10 * time.Second})
	require.NoError(t, err)

	ttl, err := a.TTL(ctx, "ttl-key")
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))

	mr.FastForward(11 * time.Second)
	_, ok, err := a.Get(ctx, "ttl-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisAdapterHashIncrement(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisAdapter(t)
	defer mr.Close()
	defer a.Close()

	_, err := a.HIncrBy(ctx, "h1", "f", 3)
	require.NoError(t, err)
	_, err = a.HIncrBy(ctx, "h1", "f", 4)
	require.NoError(t, err)

	v, ok, err := a.HGet(ctx, "h1", "f")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestRedisAdapterSortedSetOrdering(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisAdapter(t)
	defer mr.Close()
	defer a.Close()

	_, err := a.ZAdd(ctx, "z1", ZAddOptions{},
		ZMember{Member: "c", Score: 3},
		ZMember{Member: "a", Score: 1},
		ZMember{Member: "b", Score: 2},
	)
	require.NoError(t, err)

	asc, err := a.ZRange(ctx, "z1", 0, -1, RangeOptions{})
	require.NoError(t, err)
	var ascMembers []string
	for _, m := range asc {
		ascMembers = append(ascMembers, m.Member)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ascMembers)
}

func TestRedisAdapterPipelineExecutesAllEntries(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestRedisAdapter(t)
	defer mr.Close()
	defer a.Close()

	entries := []PipelineEntry{
		{Command: CmdSet, Args: []interface{}{"p1", "v1", SetOptions{}}},
		{Command: CmdSet, Args: []interface{}{"p2", "v2", SetOptions{}}},
	}
	results, err := a.ExecutePipeline(ctx, entries)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)

	v, err := mr.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
}

func TestRedisAdapterHasScriptIsTrue(t *testing.T) {
	a, mr := newTestRedisAdapter(t)
	defer mr.Close()
	defer a.Close()

	assert.True(t, a.HasScript())
}
