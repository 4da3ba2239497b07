package adapter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter wraps a github.com/redis/go-redis/v9 client so the cache
// facade can talk to Redis, Valkey, or DragonflyDB through the same
// Adapter surface as InProcessAdapter. Grounded on the teacher's
// DragonflyDBSaveKeyValue/DragonflyDBGetKey helpers and RedisRepository,
// generalized from a handful of hand-picked operations to the full
// command surface.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter parses url (a redis://[:password@]host:port[/db] URL,
// exactly as RedisRepository.NewRedisRepository does) and pings the
// server before returning, so configuration mistakes surface at startup
// rather than on the first cache operation.
func NewRedisAdapter(ctx context.Context, url string) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, Wrap(ConfigError, "NewRedisAdapter", "", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, Wrap(ConnectionError, "PING", "", err)
	}
	return &RedisAdapter{client: client}, nil
}

// NewRedisAdapterFromClient wraps an already-constructed client, for
// callers (and tests, via miniredis) that build their own *redis.Options.
func NewRedisAdapterFromClient(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// Close releases the underlying connection pool.
func (a *RedisAdapter) Close() error { return a.client.Close() }

func classify(op, key string, err error) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	switch {
	case err == context.DeadlineExceeded:
		return Wrap(TimeoutError, op, key, err)
	default:
		return Wrap(ConnectionError, op, key, err)
	}
}

// --- String commands ---

func (a *RedisAdapter) Set(ctx context.Context, key string, value interface{}, opts SetOptions) (bool, error) {
	args := []interface{}{"SET", key, value}
	if opts.EX > 0 {
		args = append(args, "PX", opts.EX.Milliseconds())
	}
	if opts.KeepTTL {
		args = append(args, "KEEPTTL")
	}
	if opts.NX {
		args = append(args, "NX")
	}
	if opts.XX {
		args = append(args, "XX")
	}
	res, err := a.client.Do(ctx, args...).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, classify(string(CmdSet), key, err)
	}
	return res != nil, nil
}

func (a *RedisAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := a.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(string(CmdGet), key, err)
	}
	return v, true, nil
}

func (a *RedisAdapter) MSet(ctx context.Context, pairs map[string]interface{}) error {
	flat := make([]interface{}, 0, len(pairs)*2)
	for k, v := range pairs {
		flat = append(flat, k, v)
	}
	return classify(string(CmdMSet), "", a.client.MSet(ctx, flat...).Err())
}

func (a *RedisAdapter) MGet(ctx context.Context, keys []string) ([]*string, error) {
	vals, err := a.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify(string(CmdMGet), "", err)
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s := fmt.Sprint(v)
		out[i] = &s
	}
	return out, nil
}

func (a *RedisAdapter) Incr(ctx context.Context, key string) (int64, error) {
	v, err := a.client.Incr(ctx, key).Result()
	return v, classify(string(CmdIncr), key, err)
}
func (a *RedisAdapter) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := a.client.IncrBy(ctx, key, delta).Result()
	return v, classify(string(CmdIncrBy), key, err)
}
func (a *RedisAdapter) Decr(ctx context.Context, key string) (int64, error) {
	v, err := a.client.Decr(ctx, key).Result()
	return v, classify(string(CmdDecr), key, err)
}
func (a *RedisAdapter) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := a.client.DecrBy(ctx, key, delta).Result()
	return v, classify(string(CmdDecrBy), key, err)
}

// --- Hash commands ---

func (a *RedisAdapter) HSet(ctx context.Context, key, field string, value interface{}) (bool, error) {
	n, err := a.client.HSet(ctx, key, field, value).Result()
	return n > 0, classify(string(CmdHSet), key, err)
}

func (a *RedisAdapter) HMSet(ctx context.Context, key string, fields map[string]interface{}) error {
	return classify(string(CmdHMSet), key, a.client.HSet(ctx, key, fields).Err())
}

func (a *RedisAdapter) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := a.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	return v, err == nil, classify(string(CmdHGet), key, err)
}

func (a *RedisAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := a.client.HGetAll(ctx, key).Result()
	return v, classify(string(CmdHGetAll), key, err)
}

func (a *RedisAdapter) HMGet(ctx context.Context, key string, fields []string) ([]*string, error) {
	vals, err := a.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, classify(string(CmdHMGet), key, err)
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s := fmt.Sprint(v)
		out[i] = &s
	}
	return out, nil
}

func (a *RedisAdapter) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	n, err := a.client.HDel(ctx, key, fields...).Result()
	return n, classify(string(CmdHDel), key, err)
}

func (a *RedisAdapter) HExists(ctx context.Context, key, field string) (bool, error) {
	v, err := a.client.HExists(ctx, key, field).Result()
	return v, classify(string(CmdHExists), key, err)
}

func (a *RedisAdapter) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	v, err := a.client.HIncrBy(ctx, key, field, delta).Result()
	return v, classify(string(CmdHIncrBy), key, err)
}

func (a *RedisAdapter) HLen(ctx context.Context, key string) (int64, error) {
	v, err := a.client.HLen(ctx, key).Result()
	return v, classify(string(CmdHLen), key, err)
}

// --- List commands ---

func (a *RedisAdapter) LPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	v, err := a.client.LPush(ctx, key, values...).Result()
	return v, classify(string(CmdLPush), key, err)
}
func (a *RedisAdapter) RPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	v, err := a.client.RPush(ctx, key, values...).Result()
	return v, classify(string(CmdRPush), key, err)
}
func (a *RedisAdapter) LPop(ctx context.Context, key string) (string, bool, error) {
	v, err := a.client.LPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	return v, err == nil, classify(string(CmdLPop), key, err)
}
func (a *RedisAdapter) RPop(ctx context.Context, key string) (string, bool, error) {
	v, err := a.client.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	return v, err == nil, classify(string(CmdRPop), key, err)
}
func (a *RedisAdapter) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := a.client.LRange(ctx, key, start, stop).Result()
	return v, classify(string(CmdLRange), key, err)
}
func (a *RedisAdapter) LTrim(ctx context.Context, key string, start, stop int64) error {
	return classify(string(CmdLTrim), key, a.client.LTrim(ctx, key, start, stop).Err())
}
func (a *RedisAdapter) LIndex(ctx context.Context, key string, index int64) (string, bool, error) {
	v, err := a.client.LIndex(ctx, key, index).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	return v, err == nil, classify(string(CmdLIndex), key, err)
}
func (a *RedisAdapter) LSet(ctx context.Context, key string, index int64, value interface{}) error {
	return classify(string(CmdLSet), key, a.client.LSet(ctx, key, index, value).Err())
}
func (a *RedisAdapter) LRem(ctx context.Context, key string, count int64, value interface{}) (int64, error) {
	v, err := a.client.LRem(ctx, key, count, value).Result()
	return v, classify(string(CmdLRem), key, err)
}
func (a *RedisAdapter) LPos(ctx context.Context, key string, value interface{}) (int64, bool, error) {
	v, err := a.client.LPos(ctx, key, fmt.Sprint(value), redis.LPosArgs{}).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	return v, err == nil, classify(string(CmdLPos), key, err)
}
func (a *RedisAdapter) LInsert(ctx context.Context, key string, before bool, pivot, value interface{}) (int64, error) {
	op := "AFTER"
	if before {
		op = "BEFORE"
	}
	v, err := a.client.LInsert(ctx, key, op, pivot, value).Result()
	return v, classify(string(CmdLInsert), key, err)
}
func (a *RedisAdapter) LLen(ctx context.Context, key string) (int64, error) {
	v, err := a.client.LLen(ctx, key).Result()
	return v, classify(string(CmdLLen), key, err)
}

// --- Set commands ---

func (a *RedisAdapter) SAdd(ctx context.Context, key string, members ...interface{}) (int64, error) {
	v, err := a.client.SAdd(ctx, key, members...).Result()
	return v, classify(string(CmdSAdd), key, err)
}
func (a *RedisAdapter) SRem(ctx context.Context, key string, members ...interface{}) (int64, error) {
	v, err := a.client.SRem(ctx, key, members...).Result()
	return v, classify(string(CmdSRem), key, err)
}
func (a *RedisAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := a.client.SMembers(ctx, key).Result()
	return v, classify(string(CmdSMem), key, err)
}
func (a *RedisAdapter) SIsMember(ctx context.Context, key string, member interface{}) (bool, error) {
	v, err := a.client.SIsMember(ctx, key, member).Result()
	return v, classify(string(CmdSIsMem), key, err)
}
func (a *RedisAdapter) SCard(ctx context.Context, key string) (int64, error) {
	v, err := a.client.SCard(ctx, key).Result()
	return v, classify(string(CmdSCard), key, err)
}
func (a *RedisAdapter) SInter(ctx context.Context, keys ...string) ([]string, error) {
	v, err := a.client.SInter(ctx, keys...).Result()
	return v, classify(string(CmdSInter), "", err)
}
func (a *RedisAdapter) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	v, err := a.client.SUnion(ctx, keys...).Result()
	return v, classify(string(CmdSUnion), "", err)
}
func (a *RedisAdapter) SDiff(ctx context.Context, keys ...string) ([]string, error) {
	v, err := a.client.SDiff(ctx, keys...).Result()
	return v, classify(string(CmdSDiff), "", err)
}

// --- Sorted-set commands ---

func (a *RedisAdapter) ZAdd(ctx context.Context, key string, opts ZAddOptions, members ...ZMember) (int64, error) {
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	var v int64
	var err error
	switch {
	case opts.NX:
		v, err = a.client.ZAddNX(ctx, key, zs...).Result()
	case opts.XX && opts.GT:
		v, err = a.client.ZAddXXGT(ctx, key, zs...).Result()
	case opts.XX && opts.LT:
		v, err = a.client.ZAddXXLT(ctx, key, zs...).Result()
	case opts.XX:
		v, err = a.client.ZAddXX(ctx, key, zs...).Result()
	case opts.GT:
		v, err = a.client.ZAddGT(ctx, key, zs...).Result()
	case opts.LT:
		v, err = a.client.ZAddLT(ctx, key, zs...).Result()
	default:
		v, err = a.client.ZAdd(ctx, key, zs...).Result()
	}
	return v, classify(string(CmdZAdd), key, err)
}
func (a *RedisAdapter) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	v, err := a.client.ZRem(ctx, key, args...).Result()
	return v, classify(string(CmdZRem), key, err)
}
func (a *RedisAdapter) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	v, err := a.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	return v, err == nil, classify(string(CmdZScore), key, err)
}
func (a *RedisAdapter) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	v, err := a.client.ZRank(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	return v, err == nil, classify(string(CmdZRank), key, err)
}
func (a *RedisAdapter) ZRevRank(ctx context.Context, key, member string) (int64, bool, error) {
	v, err := a.client.ZRevRank(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	return v, err == nil, classify(string(CmdZRevRank), key, err)
}
func (a *RedisAdapter) ZCard(ctx context.Context, key string) (int64, error) {
	v, err := a.client.ZCard(ctx, key).Result()
	return v, classify(string(CmdZCard), key, err)
}
func (a *RedisAdapter) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	v, err := a.client.ZCount(ctx, key, min, max).Result()
	return v, classify(string(CmdZCount), key, err)
}
func (a *RedisAdapter) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	v, err := a.client.ZIncrBy(ctx, key, delta, member).Result()
	return v, classify(string(CmdZIncrBy), key, err)
}

func toZMembers(zs []redis.Z) []ZMember {
	out := make([]ZMember, len(zs))
	for i, z := range zs {
		out[i] = ZMember{Member: fmt.Sprint(z.Member), Score: z.Score}
	}
	return out
}

func (a *RedisAdapter) ZRange(ctx context.Context, key string, start, stop int64, opts RangeOptions) ([]ZMember, error) {
	zs, err := a.client.ZRangeWithScores(ctx, key, start, stop).Result()
	return toZMembers(zs), classify(string(CmdZRange), key, err)
}
func (a *RedisAdapter) ZRevRange(ctx context.Context, key string, start, stop int64, opts RangeOptions) ([]ZMember, error) {
	zs, err := a.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	return toZMembers(zs), classify(string(CmdZRevRange), key, err)
}

func toRangeBy(min, max string, opts RangeOptions) *redis.ZRangeBy {
	z := &redis.ZRangeBy{Min: min, Max: max}
	if opts.Limit != nil {
		z.Offset = int64(opts.Limit.Offset)
		z.Count = int64(opts.Limit.Count)
	}
	return z
}

func (a *RedisAdapter) ZRangeByScore(ctx context.Context, key, min, max string, opts RangeOptions) ([]ZMember, error) {
	zs, err := a.client.ZRangeByScoreWithScores(ctx, key, toRangeBy(min, max, opts)).Result()
	return toZMembers(zs), classify(string(CmdZRangeByScore), key, err)
}
func (a *RedisAdapter) ZRevRangeByScore(ctx context.Context, key, min, max string, opts RangeOptions) ([]ZMember, error) {
	zs, err := a.client.ZRevRangeByScoreWithScores(ctx, key, toRangeBy(max, min, opts)).Result()
	return toZMembers(zs), classify(string(CmdZRevRangeByScore), key, err)
}
func (a *RedisAdapter) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	v, err := a.client.ZRemRangeByRank(ctx, key, start, stop).Result()
	return v, classify(string(CmdZRemRangeByRank), key, err)
}
func (a *RedisAdapter) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	v, err := a.client.ZRemRangeByScore(ctx, key, min, max).Result()
	return v, classify(string(CmdZRemRangeByScore), key, err)
}

// --- Key management ---

func (a *RedisAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	v, err := a.client.Del(ctx, keys...).Result()
	return v, classify(string(CmdDel), "", err)
}
func (a *RedisAdapter) Exists(ctx context.Context, keys ...string) (int64, error) {
	v, err := a.client.Exists(ctx, keys...).Result()
	return v, classify(string(CmdExists), "", err)
}
func (a *RedisAdapter) Expire(ctx context.Context, key string, seconds int64) (bool, error) {
	v, err := a.client.Expire(ctx, key, secondsToDuration(seconds)).Result()
	return v, classify(string(CmdExpire), key, err)
}
func (a *RedisAdapter) ExpireAt(ctx context.Context, key string, unixSeconds int64) (bool, error) {
	v, err := a.client.ExpireAt(ctx, key, unixToTime(unixSeconds)).Result()
	return v, classify(string(CmdExpireAt), key, err)
}
func (a *RedisAdapter) TTL(ctx context.Context, key string) (int64, error) {
	d, err := a.client.TTL(ctx, key).Result()
	return ttlSeconds(d), classify(string(CmdTTL), key, err)
}
func (a *RedisAdapter) PTTL(ctx context.Context, key string) (int64, error) {
	d, err := a.client.PTTL(ctx, key).Result()
	return pttlMillis(d), classify(string(CmdPTTL), key, err)
}
func (a *RedisAdapter) Persist(ctx context.Context, key string) (bool, error) {
	v, err := a.client.Persist(ctx, key).Result()
	return v, classify(string(CmdPersist), key, err)
}
func (a *RedisAdapter) Rename(ctx context.Context, src, dst string) error {
	err := a.client.Rename(ctx, src, dst).Err()
	if err == redis.Nil {
		return New(NotFound, string(CmdRename), src, "no such key")
	}
	return classify(string(CmdRename), src, err)
}
func (a *RedisAdapter) Type(ctx context.Context, key string) (string, error) {
	v, err := a.client.Type(ctx, key).Result()
	return v, classify(string(CmdType), key, err)
}
func (a *RedisAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	v, err := a.client.Keys(ctx, pattern).Result()
	return v, classify(string(CmdKeys), "", err)
}
func (a *RedisAdapter) Scan(ctx context.Context, cursor string, opts ScanOptions) (ScanResult, error) {
	var cur uint64
	fmt.Sscan(cursor, &cur)
	keys, next, err := a.client.ScanType(ctx, cur, opts.Match, int64(opts.Count), string(opts.Type)).Result()
	if err != nil {
		return ScanResult{}, classify(string(CmdScan), "", err)
	}
	return ScanResult{NextCursor: fmt.Sprint(next), Keys: keys}, nil
}

// --- Batch execution ---

// ExecutePipeline uses go-redis's non-transactional Pipeline, matching
// redis's own semantics: every queued command executes regardless of
// whether an earlier one failed, and results come back in order.
func (a *RedisAdapter) ExecutePipeline(ctx context.Context, entries []PipelineEntry) ([]PipelineResult, error) {
	pipe := a.client.Pipeline()
	cmds := make([]*redis.Cmd, len(entries))
	for i, e := range entries {
		cmds[i] = pipe.Do(ctx, commandArgs(e)...)
	}
	_, _ = pipe.Exec(ctx)

	results := make([]PipelineResult, len(entries))
	for i, c := range cmds {
		v, err := c.Result()
		if err == redis.Nil {
			results[i] = PipelineResult{Success: true, Data: nil}
			continue
		}
		results[i] = PipelineResult{Success: err == nil, Data: v, Err: classify(string(entries[i].Command), "", err)}
	}
	return results, nil
}

// ExecuteTransaction uses go-redis's MULTI/EXEC pipeline (TxPipeline): a
// command error inside the transaction leaves the others committed,
// matching real Redis behaviour, while a WATCH conflict or connection
// failure aborts the whole exec and reports Committed=false.
func (a *RedisAdapter) ExecuteTransaction(ctx context.Context, entries []PipelineEntry) (TransactionResult, error) {
	pipe := a.client.TxPipeline()
	cmds := make([]*redis.Cmd, len(entries))
	for i, e := range entries {
		cmds[i] = pipe.Do(ctx, commandArgs(e)...)
	}
	_, err := pipe.Exec(ctx)
	committed := err == nil

	results := make([]PipelineResult, len(entries))
	for i, c := range cmds {
		v, cerr := c.Result()
		if cerr == redis.Nil {
			cerr = nil
		}
		results[i] = PipelineResult{Success: cerr == nil, Data: v, Err: classify(string(entries[i].Command), "", cerr)}
	}
	return TransactionResult{
		Success:   committed,
		Committed: committed,
		Results:   results,
		Err:       classify("EXEC", "", err),
	}, nil
}

func commandArgs(e PipelineEntry) []interface{} {
	out := make([]interface{}, 0, len(e.Args)+1)
	out = append(out, string(e.Command))
	for _, arg := range e.Args {
		opts, ok := arg.(SetOptions)
		if !ok {
			out = append(out, arg)
			continue
		}
		if opts.EX > 0 {
			out = append(out, "PX", opts.EX.Milliseconds())
		}
		if opts.KeepTTL {
			out = append(out, "KEEPTTL")
		}
		if opts.NX {
			out = append(out, "NX")
		}
		if opts.XX {
			out = append(out, "XX")
		}
	}
	return out
}

// ExecuteScript runs script via EVAL, the native path the rate-limit and
// lock services prefer whenever HasScript is true.
func (a *RedisAdapter) ExecuteScript(ctx context.Context, script string, keys []string, args []interface{}) (interface{}, error) {
	v, err := a.client.Eval(ctx, script, keys, args...).Result()
	if err != nil {
		return nil, Wrap(ScriptError, "EVAL", "", err)
	}
	return v, nil
}

// --- Metrics ---
//
// Redis-backed deployments typically export server-side metrics (via
// INFO or an exporter) rather than relying on client-side counters, so
// GetStats here returns only what the client itself can observe: command
// volume is not tracked client-side (it would require wrapping every
// call above in an instrumentation hook for no operational benefit over
// the server's own command stats), so Commands stays empty, Total, Hits,
// Misses and Evictions stay zero, and Size reports the server's key count
// (DBSIZE) as a coarse signal.
func (a *RedisAdapter) GetStats() Stats {
	size, _ := a.client.DBSize(context.Background()).Result()
	return Stats{Commands: map[Command]int64{}, Size: int(size)}
}

func (a *RedisAdapter) Reset() {}

// --- Capability probes ---

func (a *RedisAdapter) HasStreams() bool     { return true }
func (a *RedisAdapter) HasHyperLogLog() bool { return true }
func (a *RedisAdapter) HasBloom() bool       { return true }
func (a *RedisAdapter) HasScript() bool      { return true }
func (a *RedisAdapter) HasPubSub() bool      { return true }

// --- Streams ---

func (a *RedisAdapter) XAdd(ctx context.Context, key, id string, fields map[string]interface{}) (string, error) {
	if id == "" {
		id = "*"
	}
	v, err := a.client.XAdd(ctx, &redis.XAddArgs{Stream: key, ID: id, Values: fields}).Result()
	return v, classify(string(CmdXAdd), key, err)
}
func (a *RedisAdapter) XLen(ctx context.Context, key string) (int64, error) {
	v, err := a.client.XLen(ctx, key).Result()
	return v, classify(string(CmdXLen), key, err)
}

func toStreamEntries(msgs []redis.XMessage) []StreamEntry {
	out := make([]StreamEntry, len(msgs))
	for i, m := range msgs {
		fields := make(map[string]interface{}, len(m.Values))
		for k, v := range m.Values {
			fields[k] = v
		}
		out[i] = StreamEntry{ID: m.ID, Fields: fields}
	}
	return out
}

func (a *RedisAdapter) XRange(ctx context.Context, key, start, stop string, count int64) ([]StreamEntry, error) {
	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = a.client.XRangeN(ctx, key, start, stop, count).Result()
	} else {
		msgs, err = a.client.XRange(ctx, key, start, stop).Result()
	}
	return toStreamEntries(msgs), classify(string(CmdXRange), key, err)
}
func (a *RedisAdapter) XRevRange(ctx context.Context, key, start, stop string, count int64) ([]StreamEntry, error) {
	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = a.client.XRevRangeN(ctx, key, start, stop, count).Result()
	} else {
		msgs, err = a.client.XRevRange(ctx, key, start, stop).Result()
	}
	return toStreamEntries(msgs), classify(string(CmdXRevRange), key, err)
}
func (a *RedisAdapter) XRead(ctx context.Context, streams []string, ids []string, count int64) (map[string][]StreamEntry, error) {
	args := &redis.XReadArgs{Streams: append(append([]string{}, streams...), ids...), Count: count}
	res, err := a.client.XRead(ctx, args).Result()
	if err == redis.Nil {
		return map[string][]StreamEntry{}, nil
	}
	if err != nil {
		return nil, classify(string(CmdXRead), "", err)
	}
	out := make(map[string][]StreamEntry, len(res))
	for _, s := range res {
		out[s.Stream] = toStreamEntries(s.Messages)
	}
	return out, nil
}

func (a *RedisAdapter) XTrim(ctx context.Context, key string, maxLen int64, approx bool) (int64, error) {
	var v int64
	var err error
	if approx {
		v, err = a.client.XTrimMaxLenApprox(ctx, key, maxLen, 0).Result()
	} else {
		v, err = a.client.XTrimMaxLen(ctx, key, maxLen).Result()
	}
	return v, classify(string(CmdXTrim), key, err)
}
func (a *RedisAdapter) XDel(ctx context.Context, key string, ids ...string) (int64, error) {
	v, err := a.client.XDel(ctx, key, ids...).Result()
	return v, classify(string(CmdXDel), key, err)
}

// --- HyperLogLog ---

func (a *RedisAdapter) PFAdd(ctx context.Context, key string, elements ...interface{}) (bool, error) {
	v, err := a.client.PFAdd(ctx, key, elements...).Result()
	return v > 0, classify(string(CmdPFAdd), key, err)
}
func (a *RedisAdapter) PFCount(ctx context.Context, keys ...string) (int64, error) {
	v, err := a.client.PFCount(ctx, keys...).Result()
	return v, classify(string(CmdPFCount), "", err)
}
func (a *RedisAdapter) PFMerge(ctx context.Context, dest string, src ...string) error {
	return classify(string(CmdPFMerge), dest, a.client.PFMerge(ctx, dest, src...).Err())
}

// --- Bloom filters (RedisBloom BF.* commands, via client.Do since
// go-redis has no typed helpers for them) ---

func (a *RedisAdapter) BFReserve(ctx context.Context, key string, errorRate float64, capacity int64) error {
	return classify(string(CmdBFReserve), key, a.client.Do(ctx, "BF.RESERVE", key, errorRate, capacity).Err())
}
func (a *RedisAdapter) BFAdd(ctx context.Context, key string, item interface{}) (bool, error) {
	v, err := a.client.Do(ctx, "BF.ADD", key, item).Bool()
	return v, classify(string(CmdBFAdd), key, err)
}
func (a *RedisAdapter) BFMAdd(ctx context.Context, key string, items ...interface{}) ([]bool, error) {
	args := append([]interface{}{"BF.MADD", key}, items...)
	res, err := a.client.Do(ctx, args...).Slice()
	if err != nil {
		return nil, classify(string(CmdBFMAdd), key, err)
	}
	out := make([]bool, len(res))
	for i, r := range res {
		out[i] = fmt.Sprint(r) == "1"
	}
	return out, nil
}
func (a *RedisAdapter) BFExists(ctx context.Context, key string, item interface{}) (bool, error) {
	v, err := a.client.Do(ctx, "BF.EXISTS", key, item).Bool()
	return v, classify(string(CmdBFExists), key, err)
}
func (a *RedisAdapter) BFMExists(ctx context.Context, key string, items ...interface{}) ([]bool, error) {
	args := append([]interface{}{"BF.MEXISTS", key}, items...)
	res, err := a.client.Do(ctx, args...).Slice()
	if err != nil {
		return nil, classify(string(CmdBFMExists), key, err)
	}
	out := make([]bool, len(res))
	for i, r := range res {
		out[i] = fmt.Sprint(r) == "1"
	}
	return out, nil
}

// --- Pub/Sub ---

func (a *RedisAdapter) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	v, err := a.client.Publish(ctx, channel, message).Result()
	return v, classify("PUBLISH", channel, err)
}

func (a *RedisAdapter) Subscribe(ctx context.Context, channel string, cb func(message string)) (func(), error) {
	sub := a.client.Subscribe(ctx, channel)
	ch := sub.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				cb(msg.Payload)
			case <-done:
				return
			}
		}
	}()
	unsubscribe := func() {
		close(done)
		_ = sub.Close()
	}
	return unsubscribe, nil
}
