// Package adapter defines the uniform command surface described in
// SPEC_FULL.md §5 and provides two implementations: InProcessAdapter, a
// faithful reference store, and RedisAdapter, a thin wrapper over
// github.com/redis/go-redis/v9 for Redis/Valkey/DragonflyDB backends.
package adapter

import "context"

// Adapter is the capability surface every backing store must expose.
// Required methods cover strings, hashes, lists, sets, sorted sets, key
// lifecycle, scan, pipeline, transaction and script execution. Optional
// capabilities (streams, HyperLogLog, Bloom filters, pub/sub) are probed
// via the Has* methods before a caller relies on them, per the
// polymorphic-adapter redesign note.
type Adapter interface {
	// String commands.
	Set(ctx context.Context, key string, value interface{}, opts SetOptions) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	MSet(ctx context.Context, pairs map[string]interface{}) error
	MGet(ctx context.Context, keys []string) ([]*string, error)
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	DecrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Hash commands.
	HSet(ctx context.Context, key, field string, value interface{}) (bool, error)
	HMSet(ctx context.Context, key string, fields map[string]interface{}) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HMGet(ctx context.Context, key string, fields []string) ([]*string, error)
	HDel(ctx context.Context, key string, fields []string) (int64, error)
	HExists(ctx context.Context, key, field string) (bool, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HLen(ctx context.Context, key string) (int64, error)

	// List commands.
	LPush(ctx context.Context, key string, values ...interface{}) (int64, error)
	RPush(ctx context.Context, key string, values ...interface{}) (int64, error)
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LIndex(ctx context.Context, key string, index int64) (string, bool, error)
	LSet(ctx context.Context, key string, index int64, value interface{}) error
	LRem(ctx context.Context, key string, count int64, value interface{}) (int64, error)
	LPos(ctx context.Context, key string, value interface{}) (int64, bool, error)
	LInsert(ctx context.Context, key string, before bool, pivot, value interface{}) (int64, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Set commands.
	SAdd(ctx context.Context, key string, members ...interface{}) (int64, error)
	SRem(ctx context.Context, key string, members ...interface{}) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)
	SInter(ctx context.Context, keys ...string) ([]string, error)
	SUnion(ctx context.Context, keys ...string) ([]string, error)
	SDiff(ctx context.Context, keys ...string) ([]string, error)

	// Sorted-set commands.
	ZAdd(ctx context.Context, key string, opts ZAddOptions, members ...ZMember) (int64, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZRank(ctx context.Context, key, member string) (int64, bool, error)
	ZRevRank(ctx context.Context, key, member string) (int64, bool, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZCount(ctx context.Context, key, min, max string) (int64, error)
	ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error)
	ZRange(ctx context.Context, key string, start, stop int64, opts RangeOptions) ([]ZMember, error)
	ZRevRange(ctx context.Context, key string, start, stop int64, opts RangeOptions) ([]ZMember, error)
	ZRangeByScore(ctx context.Context, key, min, max string, opts RangeOptions) ([]ZMember, error)
	ZRevRangeByScore(ctx context.Context, key, min, max string, opts RangeOptions) ([]ZMember, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error)
	ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error)

	// Key management.
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, seconds int64) (bool, error)
	ExpireAt(ctx context.Context, key string, unixSeconds int64) (bool, error)
	TTL(ctx context.Context, key string) (int64, error)
	PTTL(ctx context.Context, key string) (int64, error)
	Persist(ctx context.Context, key string) (bool, error)
	Rename(ctx context.Context, src, dst string) error
	Type(ctx context.Context, key string) (string, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Scan(ctx context.Context, cursor string, opts ScanOptions) (ScanResult, error)

	// Batch execution.
	ExecutePipeline(ctx context.Context, entries []PipelineEntry) ([]PipelineResult, error)
	ExecuteTransaction(ctx context.Context, entries []PipelineEntry) (TransactionResult, error)
	ExecuteScript(ctx context.Context, script string, keys []string, args []interface{}) (interface{}, error)

	// Metrics.
	GetStats() Stats
	Reset()

	// Capability probes.
	HasStreams() bool
	HasHyperLogLog() bool
	HasBloom() bool
	HasScript() bool
	HasPubSub() bool
}

// StreamAdapter is the optional stream capability, probed with HasStreams.
type StreamAdapter interface {
	XAdd(ctx context.Context, key, id string, fields map[string]interface{}) (string, error)
	XLen(ctx context.Context, key string) (int64, error)
	XRange(ctx context.Context, key, start, stop string, count int64) ([]StreamEntry, error)
	XRevRange(ctx context.Context, key, start, stop string, count int64) ([]StreamEntry, error)
	XRead(ctx context.Context, streams []string, ids []string, count int64) (map[string][]StreamEntry, error)
	XTrim(ctx context.Context, key string, maxLen int64, approx bool) (int64, error)
	XDel(ctx context.Context, key string, ids ...string) (int64, error)
}

// StreamEntry is one XADD'd record.
type StreamEntry struct {
	ID     string
	Fields map[string]interface{}
}

// HLLAdapter is the optional HyperLogLog capability, probed with
// HasHyperLogLog.
type HLLAdapter interface {
	PFAdd(ctx context.Context, key string, elements ...interface{}) (bool, error)
	PFCount(ctx context.Context, keys ...string) (int64, error)
	PFMerge(ctx context.Context, dest string, src ...string) error
}

// BloomAdapter is the optional Bloom-filter capability, probed with
// HasBloom.
type BloomAdapter interface {
	BFReserve(ctx context.Context, key string, errorRate float64, capacity int64) error
	BFAdd(ctx context.Context, key string, item interface{}) (bool, error)
	BFMAdd(ctx context.Context, key string, items ...interface{}) ([]bool, error)
	BFExists(ctx context.Context, key string, item interface{}) (bool, error)
	BFMExists(ctx context.Context, key string, items ...interface{}) ([]bool, error)
}

// PubSubAdapter is the optional pub/sub capability, probed with HasPubSub.
type PubSubAdapter interface {
	Publish(ctx context.Context, channel string, message interface{}) (int64, error)
	Subscribe(ctx context.Context, channel string, cb func(message string)) (unsubscribe func(), err error)
}
