package adapter

import "time"

// Tag identifies the data-structure kind stored under a Key. An entry has
// exactly one Tag; a command whose declared tag does not match an entry's
// Tag returns the zero value for that command's return type rather than
// reinterpreting the stored data.
type Tag string

const (
	TagNone      Tag = "none"
	TagString    Tag = "string"
	TagList      Tag = "list"
	TagSet       Tag = "set"
	TagSortedSet Tag = "zset"
	TagHash      Tag = "hash"
	TagStream    Tag = "stream"
	TagHLL       Tag = "hll"
	TagBloom     Tag = "bloom"
)

// Command enumerates every command the adapter contract recognizes. It
// replaces dynamic, string-keyed method lookup (the source's property-name
// dispatch) with a static, closed enumeration that each adapter maps to a
// dispatch table entry; new commands are added here and registered in both
// adapters, not discovered by reflection.
type Command string

const (
	CmdSet    Command = "SET"
	CmdGet    Command = "GET"
	CmdMSet   Command = "MSET"
	CmdMGet   Command = "MGET"
	CmdIncr   Command = "INCR"
	CmdIncrBy Command = "INCRBY"
	CmdDecr   Command = "DECR"
	CmdDecrBy Command = "DECRBY"

	CmdHSet     Command = "HSET"
	CmdHMSet    Command = "HMSET"
	CmdHGet     Command = "HGET"
	CmdHGetAll  Command = "HGETALL"
	CmdHMGet    Command = "HMGET"
	CmdHDel     Command = "HDEL"
	CmdHExists  Command = "HEXISTS"
	CmdHIncrBy  Command = "HINCRBY"
	CmdHLen     Command = "HLEN"

	CmdLPush    Command = "LPUSH"
	CmdRPush    Command = "RPUSH"
	CmdLPop     Command = "LPOP"
	CmdRPop     Command = "RPOP"
	CmdLRange   Command = "LRANGE"
	CmdLTrim    Command = "LTRIM"
	CmdLIndex   Command = "LINDEX"
	CmdLSet     Command = "LSET"
	CmdLRem     Command = "LREM"
	CmdLPos     Command = "LPOS"
	CmdLInsert  Command = "LINSERT"
	CmdLLen     Command = "LLEN"

	CmdSAdd   Command = "SADD"
	CmdSRem   Command = "SREM"
	CmdSMem   Command = "SMEMBERS"
	CmdSIsMem Command = "SISMEMBER"
	CmdSCard  Command = "SCARD"
	CmdSInter Command = "SINTER"
	CmdSUnion Command = "SUNION"
	CmdSDiff  Command = "SDIFF"

	CmdZAdd             Command = "ZADD"
	CmdZRem             Command = "ZREM"
	CmdZScore           Command = "ZSCORE"
	CmdZRank            Command = "ZRANK"
	CmdZRevRank         Command = "ZREVRANK"
	CmdZCard            Command = "ZCARD"
	CmdZCount           Command = "ZCOUNT"
	CmdZIncrBy          Command = "ZINCRBY"
	CmdZRange           Command = "ZRANGE"
	CmdZRevRange        Command = "ZREVRANGE"
	CmdZRangeByScore    Command = "ZRANGEBYSCORE"
	CmdZRevRangeByScore Command = "ZREVRANGEBYSCORE"
	CmdZRemRangeByRank  Command = "ZREMRANGEBYRANK"
	CmdZRemRangeByScore Command = "ZREMRANGEBYSCORE"

	CmdDel       Command = "DEL"
	CmdExists    Command = "EXISTS"
	CmdExpire    Command = "EXPIRE"
	CmdExpireAt  Command = "EXPIREAT"
	CmdTTL       Command = "TTL"
	CmdPTTL      Command = "PTTL"
	CmdPersist   Command = "PERSIST"
	CmdRename    Command = "RENAME"
	CmdType      Command = "TYPE"
	CmdKeys      Command = "KEYS"
	CmdScan      Command = "SCAN"

	CmdPFAdd   Command = "PFADD"
	CmdPFCount Command = "PFCOUNT"
	CmdPFMerge Command = "PFMERGE"

	CmdBFReserve Command = "BF.RESERVE"
	CmdBFAdd     Command = "BF.ADD"
	CmdBFMAdd    Command = "BF.MADD"
	CmdBFExists  Command = "BF.EXISTS"
	CmdBFMExists Command = "BF.MEXISTS"

	CmdXAdd  Command = "XADD"
	CmdXRead Command = "XREAD"
	CmdXRange Command = "XRANGE"
	CmdXRevRange Command = "XREVRANGE"
	CmdXLen  Command = "XLEN"
	CmdXTrim Command = "XTRIM"
	CmdXDel  Command = "XDEL"
)

// SetOptions configures SET.
type SetOptions struct {
	EX       time.Duration // expire after duration
	NX       bool          // only set if key does not exist
	XX       bool          // only set if key exists
	KeepTTL  bool          // preserve any existing TTL
}

// ZAddOptions configures ZADD. NX and XX are mutually exclusive; GT/LT
// inhibit the update when the existing score already satisfies/violates
// the relation against the new score.
type ZAddOptions struct {
	NX bool
	XX bool
	GT bool
	LT bool
}

// RangeOptions configures ZRANGE/ZREVRANGE/ZRANGEBYSCORE/ZREVRANGEBYSCORE.
type RangeOptions struct {
	WithScores bool
	Limit      *LimitOptions
}

// LimitOptions is the LIMIT offset/count clause of the score-range family.
type LimitOptions struct {
	Offset int
	Count  int
}

// ZMember is one member/score pair of a sorted set.
type ZMember struct {
	Member string
	Score  float64
}

// ScanResult is the {nextCursor, keys} pair returned by SCAN. A
// NextCursor of "0" signals completion.
type ScanResult struct {
	NextCursor string
	Keys       []string
}

// ScanOptions configures SCAN.
type ScanOptions struct {
	Match string
	Count int
	Type  Tag
}

// PipelineEntry pairs a command with its already-built argument list. The
// key, when the command is single-key, must occupy Args[0] so the facade
// can prefix it without parsing the rest of the argument list.
type PipelineEntry struct {
	Command Command
	Args    []interface{}
}

// PipelineResult is one entry of executePipeline's ordered result array.
type PipelineResult struct {
	Success bool
	Data    interface{}
	Err     error
}

// TransactionResult is the outcome of executeTransaction: all writes become
// visible together, or none do.
type TransactionResult struct {
	Success   bool
	Committed bool
	Results   []PipelineResult
	Err       error
}

// Stats is the Metrics Record exposed by getStats: monotonic per-command
// counters, a hit/miss ratio, and the adapter's current size.
type Stats struct {
	Commands map[Command]int64
	Total    int64
	Hits     int64
	Misses   int64
	Evictions int64
	Size     int
}

// HitRate returns Hits/(Hits+Misses), or 0 when there have been no reads.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
