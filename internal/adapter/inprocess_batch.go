package adapter

import "context"

// dispatch maps a single PipelineEntry onto the adapter's own typed methods.
// It is the static dispatch table promised by the Command enum redesign:
// each case below is the one and only place a Command is interpreted, in
// place of the source's dynamic property lookup.
func (a *InProcessAdapter) dispatch(ctx context.Context, cmd Command, args []interface{}) (interface{}, error) {
	switch cmd {
	case CmdSet:
		key, _ := args[0].(string)
		opts, _ := args[2].(SetOptions)
		ok, err := a.Set(ctx, key, args[1], opts)
		return ok, err
	case CmdGet:
		key, _ := args[0].(string)
		v, ok, err := a.Get(ctx, key)
		if !ok {
			return nil, err
		}
		return v, err
	case CmdIncr:
		key, _ := args[0].(string)
		return a.Incr(ctx, key)
	case CmdIncrBy:
		key, _ := args[0].(string)
		delta, _ := args[1].(int64)
		return a.IncrBy(ctx, key, delta)
	case CmdDecr:
		key, _ := args[0].(string)
		return a.Decr(ctx, key)
	case CmdDecrBy:
		key, _ := args[0].(string)
		delta, _ := args[1].(int64)
		return a.DecrBy(ctx, key, delta)

	case CmdHSet:
		key, _ := args[0].(string)
		field, _ := args[1].(string)
		return a.HSet(ctx, key, field, args[2])
	case CmdHGet:
		key, _ := args[0].(string)
		field, _ := args[1].(string)
		v, ok, err := a.HGet(ctx, key, field)
		if !ok {
			return nil, err
		}
		return v, err
	case CmdHGetAll:
		key, _ := args[0].(string)
		return a.HGetAll(ctx, key)
	case CmdHDel:
		key, _ := args[0].(string)
		fields, _ := args[1].([]string)
		return a.HDel(ctx, key, fields)
	case CmdHIncrBy:
		key, _ := args[0].(string)
		field, _ := args[1].(string)
		delta, _ := args[2].(int64)
		return a.HIncrBy(ctx, key, field, delta)
	case CmdHLen:
		key, _ := args[0].(string)
		return a.HLen(ctx, key)

	case CmdLPush:
		key, _ := args[0].(string)
		return a.LPush(ctx, key, args[1:]...)
	case CmdRPush:
		key, _ := args[0].(string)
		return a.RPush(ctx, key, args[1:]...)
	case CmdLPop:
		key, _ := args[0].(string)
		v, ok, err := a.LPop(ctx, key)
		if !ok {
			return nil, err
		}
		return v, err
	case CmdRPop:
		key, _ := args[0].(string)
		v, ok, err := a.RPop(ctx, key)
		if !ok {
			return nil, err
		}
		return v, err
	case CmdLRange:
		key, _ := args[0].(string)
		start, _ := args[1].(int64)
		stop, _ := args[2].(int64)
		return a.LRange(ctx, key, start, stop)
	case CmdLLen:
		key, _ := args[0].(string)
		return a.LLen(ctx, key)

	case CmdSAdd:
		key, _ := args[0].(string)
		return a.SAdd(ctx, key, args[1:]...)
	case CmdSRem:
		key, _ := args[0].(string)
		return a.SRem(ctx, key, args[1:]...)
	case CmdSMem:
		key, _ := args[0].(string)
		return a.SMembers(ctx, key)
	case CmdSIsMem:
		key, _ := args[0].(string)
		return a.SIsMember(ctx, key, args[1])
	case CmdSCard:
		key, _ := args[0].(string)
		return a.SCard(ctx, key)

	case CmdZAdd:
		key, _ := args[0].(string)
		opts, _ := args[1].(ZAddOptions)
		members, _ := args[2].([]ZMember)
		return a.ZAdd(ctx, key, opts, members...)
	case CmdZRem:
		key, _ := args[0].(string)
		members, _ := args[1].([]string)
		return a.ZRem(ctx, key, members...)
	case CmdZScore:
		key, _ := args[0].(string)
		member, _ := args[1].(string)
		v, ok, err := a.ZScore(ctx, key, member)
		if !ok {
			return nil, err
		}
		return v, err
	case CmdZRange:
		key, _ := args[0].(string)
		start, _ := args[1].(int64)
		stop, _ := args[2].(int64)
		opts, _ := args[3].(RangeOptions)
		return a.ZRange(ctx, key, start, stop, opts)
	case CmdZCard:
		key, _ := args[0].(string)
		return a.ZCard(ctx, key)
	case CmdZIncrBy:
		key, _ := args[0].(string)
		delta, _ := args[1].(float64)
		member, _ := args[2].(string)
		return a.ZIncrBy(ctx, key, delta, member)

	case CmdDel:
		keys, _ := args[0].([]string)
		return a.Del(ctx, keys...)
	case CmdExists:
		keys, _ := args[0].([]string)
		return a.Exists(ctx, keys...)
	case CmdExpire:
		key, _ := args[0].(string)
		seconds, _ := args[1].(int64)
		return a.Expire(ctx, key, seconds)
	case CmdTTL:
		key, _ := args[0].(string)
		return a.TTL(ctx, key)
	case CmdPersist:
		key, _ := args[0].(string)
		return a.Persist(ctx, key)
	case CmdType:
		key, _ := args[0].(string)
		return a.Type(ctx, key)

	default:
		return nil, New(CommandError, string(cmd), "", "unknown command in pipeline/transaction")
	}
}

// ExecutePipeline runs entries sequentially against the store under a
// single lock acquisition per entry (not one acquisition for the whole
// pipeline), matching §5's note that the in-process adapter never
// suspends mid-command but does not promise atomicity *across* distinct
// pipelined commands the way ExecuteTransaction does.
//
// Decision (redesign note, §9 open question): an unknown or malformed
// command fails only that entry. It does not abort the remaining
// entries — pipelines are a latency optimization over independent
// commands, and the facade already falls back to looping calls
// one-by-one on adapters lacking native pipelining, so partial failure
// here must match partial failure there.
func (a *InProcessAdapter) ExecutePipeline(ctx context.Context, entries []PipelineEntry) ([]PipelineResult, error) {
	results := make([]PipelineResult, len(entries))
	for i, e := range entries {
		data, err := a.dispatch(ctx, e.Command, e.Args)
		results[i] = PipelineResult{Success: err == nil, Data: data, Err: err}
	}
	return results, nil
}

// ExecuteTransaction stages every entry against a private copy of the
// store and only merges that copy back if every entry succeeds,
// matching Redis MULTI/EXEC's all-or-nothing contract more strictly
// than real Redis does (real Redis still commits other commands when one
// fails at EXEC time; this adapter treats any failure, queueing or
// execution, as a reason to discard the whole batch, since the cache
// facade never depends on partial transaction commits).
func (a *InProcessAdapter) ExecuteTransaction(ctx context.Context, entries []PipelineEntry) (TransactionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	staging := &InProcessAdapter{
		store:         cloneStore(a.store),
		insertOrder:   append([]string{}, a.insertOrder...),
		maxEntries:    a.maxEntries,
		commandCounts: make(map[Command]int64),
	}

	results := make([]PipelineResult, len(entries))
	for i, e := range entries {
		data, err := staging.dispatch(ctx, e.Command, e.Args)
		results[i] = PipelineResult{Success: err == nil, Data: data, Err: err}
		if err != nil {
			return TransactionResult{Success: false, Committed: false, Results: results, Err: err}, nil
		}
	}

	a.store = staging.store
	a.insertOrder = staging.insertOrder
	for cmd, n := range staging.commandCounts {
		a.commandCounts[cmd] += n
		a.total += n
	}
	return TransactionResult{Success: true, Committed: true, Results: results}, nil
}

func cloneStore(store map[string]*entry) map[string]*entry {
	out := make(map[string]*entry, len(store))
	for k, e := range store {
		clone := *e
		clone.list = append([]string{}, e.list...)
		if e.set != nil {
			clone.set = make(map[string]struct{}, len(e.set))
			for m := range e.set {
				clone.set[m] = struct{}{}
			}
		}
		if e.zset != nil {
			clone.zset = make(map[string]float64, len(e.zset))
			for m, s := range e.zset {
				clone.zset[m] = s
			}
		}
		if e.hash != nil {
			clone.hash = make(map[string]string, len(e.hash))
			for f, v := range e.hash {
				clone.hash[f] = v
			}
		}
		clone.stream = append([]StreamEntry{}, e.stream...)
		out[k] = &clone
	}
	return out
}

// ExecuteScript always reports AdapterNotSupported: the in-process
// adapter has no Lua interpreter. Callers (the rate-limit and lock
// services) must use their documented non-script fallback path when
// HasScript reports false, rather than silently downgrading to a
// weaker algorithm without signaling it happened.
func (a *InProcessAdapter) ExecuteScript(ctx context.Context, script string, keys []string, args []interface{}) (interface{}, error) {
	return nil, New(AdapterNotSupported, "EVAL", "", "in-process adapter has no scripting engine")
}
