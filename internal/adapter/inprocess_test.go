package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessStringRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess()
	defer a.Close()

	t.Run("set then get", func(t *testing.T) {
		ok, err := a.Set(ctx, "k1", "v1", SetOptions{})
		require.NoError(t, err)
		assert.True(t, ok)

		v, ok, err := a.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v1", v)
	})

	t.Run("del then exists is zero", func(t *testing.T) {
		_, err := a.Set(ctx, "k2", "v2", SetOptions{})
		require.NoError(t, err)
		n, err := a.Del(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		exists, err := a.Exists(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)
	})

	t.Run("set nx on existing key returns false", func(t *testing.T) {
		_, err := a.Set(ctx, "k3", "v3", SetOptions{})
		require.NoError(t, err)
		ok, err := a.Set(ctx, "k3", "v3b", SetOptions{NX: true})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set xx on absent key returns false", func(t *testing.T) {
		ok, err := a.Set(ctx, "absent-key", "v", SetOptions{XX: true})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestInProcessExpiry(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess(WithSweepPeriod(5 * time.Millisecond))
	defer a.Close()

	_, err := a.Set(ctx, "ttl-key", "v", SetOptions{EX: 20 * time.Millisecond})
	require.NoError(t, err)

	_, ok, err := a.Get(ctx, "ttl-key")
	require.NoError(t, err)
	assert.True(t, ok, "value must be readable before expiry")

	time.Sleep(60 * time.Millisecond)

	_, ok, err = a.Get(ctx, "ttl-key")
	require.NoError(t, err)
	assert.False(t, ok, "value must be absent after expiry plus sweep period")
}

func TestInProcessHIncrBy(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess()
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

func TestInProcessSortedSetOrdering(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess()
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

	desc, err := a.ZRevRange(ctx, "z1", 0, -1, RangeOptions{})
	require.NoError(t, err)
	var descMembers []string
	for _, m := range desc {
		descMembers = append(descMembers, m.Member)
	}
	assert.Equal(t, []string{"c", "b", "a"}, descMembers)

	removed, err := a.ZRemRangeByRank(ctx, "z1", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	card, err := a.ZCard(ctx, "z1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), card)
}

func TestInProcessTagMismatchReturnsZeroValue(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess()
	defer a.Close()

	_, err := a.LPush(ctx, "listkey", "x", "y")
	require.NoError(t, err)

	v, ok, err := a.Get(ctx, "listkey")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestInProcessFIFOEviction(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess(WithMaxEntries(2))
	defer a.Close()

	_, err := a.Set(ctx, "e1", "v", SetOptions{})
	require.NoError(t, err)
	_, err = a.Set(ctx, "e2", "v", SetOptions{})
	require.NoError(t, err)
	_, err = a.Set(ctx, "e3", "v", SetOptions{})
	require.NoError(t, err)

	_, ok, err := a.Get(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry must be evicted first under FIFO")

	_, ok, err = a.Get(ctx, "e3")
	require.NoError(t, err)
	assert.True(t, ok)

	stats := a.GetStats()
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestInProcessPipelinePerEntryFailure(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess()
	defer a.Close()

	entries := []PipelineEntry{
		{Command: CmdSet, Args: []interface{}{"p1", "v1", SetOptions{}}},
		{Command: Command("BOGUS"), Args: []interface{}{"p2"}},
		{Command: CmdSet, Args: []interface{}{"p3", "v3", SetOptions{}}},
	}
	results, err := a.ExecutePipeline(ctx, entries)
	require.NoError(t, err)
	require.Len(t, results, len(entries))

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success, "later entries must still run after an earlier failure")

	_, ok, err := a.Get(ctx, "p3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInProcessTransactionAllOrNothing(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess()
	defer a.Close()

	entries := []PipelineEntry{
		{Command: CmdSet, Args: []interface{}{"t1", "v1", SetOptions{}}},
		{Command: Command("BOGUS"), Args: []interface{}{"t2"}},
	}
	result, err := a.ExecuteTransaction(ctx, entries)
	require.NoError(t, err)
	assert.False(t, result.Committed)

	_, ok, err := a.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok, "no writes from an aborted transaction may be visible")
}

func TestInProcessScanCompletion(t *testing.T) {
	ctx := context.Background()
	a := NewInProcess()
	defer a.Close()

	for _, k := range []string{"scan:a", "scan:b", "scan:c"} {
		_, err := a.Set(ctx, k, "v", SetOptions{})
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	cursor := "0"
	for {
		result, err := a.Scan(ctx, cursor, ScanOptions{Match: "scan:*", Count: 1})
		require.NoError(t, err)
		for _, k := range result.Keys {
			seen[k] = true
		}
		cursor = result.NextCursor
		if cursor == "0" {
			break
		}
	}
	assert.True(t, seen["scan:a"])
	assert.True(t, seen["scan:b"])
	assert.True(t, seen["scan:c"])
}
