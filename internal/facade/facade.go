// Package facade implements the Cache Facade of SPEC_FULL.md §6: key
// prefixing, timeout enforcement, retry with delay, and access to the
// adapter's metrics. Config.DefaultTTLSeconds is carried in the
// configuration but not applied to any call. Every Adapter implements
// ExecutePipeline and ExecuteTransaction, so the facade has no sequential
// fallback for them. Grounded on worker/pool.go's
// processNext (dequeue → deadline → process → log outcome), generalized
// to build-args → prefix → dispatch-with-timeout → retry → onError.
package facade

import (
	"context"
	"time"

	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/cachelog"
	"github.com/evalgo-org/cachyer/internal/descriptor"
	"github.com/evalgo-org/cachyer/internal/keybuilder"
	"github.com/sirupsen/logrus"
)

// singleKeyCommands lists the commands whose key at Args[0] gets the
// facade's prefix; multiKeyCommands below lists those prefixed on every
// key. RENAME, MSET, KEYS, SCAN, XREAD and the BF.* commands are in
// neither list. Commands absent from both pass through unprefixed, so adapter-specific commands can be issued
// directly against pre-prefixed keys.
var singleKeyCommands = map[adapter.Command]bool{
	adapter.CmdSet: true, adapter.CmdGet: true,
	adapter.CmdIncr: true, adapter.CmdIncrBy: true, adapter.CmdDecr: true, adapter.CmdDecrBy: true,
	adapter.CmdHSet: true, adapter.CmdHMSet: true, adapter.CmdHGet: true, adapter.CmdHGetAll: true,
	adapter.CmdHMGet: true, adapter.CmdHDel: true, adapter.CmdHExists: true, adapter.CmdHIncrBy: true, adapter.CmdHLen: true,
	adapter.CmdLPush: true, adapter.CmdRPush: true, adapter.CmdLPop: true, adapter.CmdRPop: true,
	adapter.CmdLRange: true, adapter.CmdLTrim: true, adapter.CmdLIndex: true, adapter.CmdLSet: true,
	adapter.CmdLRem: true, adapter.CmdLPos: true, adapter.CmdLInsert: true, adapter.CmdLLen: true,
	adapter.CmdSAdd: true, adapter.CmdSRem: true, adapter.CmdSMem: true, adapter.CmdSIsMem: true, adapter.CmdSCard: true,
	adapter.CmdZAdd: true, adapter.CmdZRem: true, adapter.CmdZScore: true, adapter.CmdZRank: true, adapter.CmdZRevRank: true,
	adapter.CmdZCard: true, adapter.CmdZCount: true, adapter.CmdZIncrBy: true, adapter.CmdZRange: true,
	adapter.CmdZRevRange: true, adapter.CmdZRangeByScore: true, adapter.CmdZRevRangeByScore: true,
	adapter.CmdZRemRangeByRank: true, adapter.CmdZRemRangeByScore: true,
	adapter.CmdExpire: true, adapter.CmdExpireAt: true, adapter.CmdTTL: true, adapter.CmdPTTL: true,
	adapter.CmdPersist: true, adapter.CmdType: true,
	adapter.CmdXAdd: true, adapter.CmdXLen: true, adapter.CmdXRange: true, adapter.CmdXRevRange: true,
	adapter.CmdXTrim: true, adapter.CmdXDel: true,
	adapter.CmdPFAdd: true,
}

// multiKeyCommands receive prefixing on every key argument instead of
// just Args[0].
var multiKeyCommands = map[adapter.Command]bool{
	adapter.CmdDel: true, adapter.CmdExists: true,
	adapter.CmdSInter: true, adapter.CmdSUnion: true, adapter.CmdSDiff: true,
	adapter.CmdMGet: true, adapter.CmdPFCount: true, adapter.CmdPFMerge: true,
}

// Options configures retry/timeout/error behavior for a single call,
// overriding the Facade's defaults when set.
type Options struct {
	TimeoutMs    int
	Retries      int
	RetryDelayMs int
	ThrowOnError *bool
	OnError      func(err error)
}

// Config is the facade's external configuration (spec.md §6, facade row).
type Config struct {
	KeyPrefix         string
	DefaultTTLSeconds int64
	DefaultTimeoutMs  int
	DefaultRetries    int
	DefaultRetryDelay int
	ThrowOnError      bool
	EnableMetrics     bool
}

// Facade owns exactly one Adapter and applies prefixing to every call,
// and timeouts and retries to every Execute call.
type Facade struct {
	adapter adapter.Adapter
	cfg     Config
	log     *logrus.Entry
}

// New builds a Facade over adapter a with the given configuration.
func New(a adapter.Adapter, cfg Config) *Facade {
	return &Facade{adapter: a, cfg: cfg, log: cachelog.WithComponent("facade")}
}

// Adapter exposes the underlying adapter for services (rate-limit,
// lock) that need direct, unprefixed script/capability access.
func (f *Facade) Adapter() adapter.Adapter { return f.adapter }

// Prefix applies the facade's key prefix to k, per §4.5.
func (f *Facade) Prefix(k string) string {
	return keybuilder.ApplyPrefix(k, f.cfg.KeyPrefix, keybuilder.DefaultSeparator)
}

// Unprefix strips the facade's key prefix from k, for SCAN/KEYS results
// that must be returned to callers in their unprefixed form (§8 scenario 8).
func (f *Facade) Unprefix(k string) string {
	stripped, _ := keybuilder.StripPrefix(k, f.cfg.KeyPrefix, keybuilder.DefaultSeparator)
	return stripped
}

func (f *Facade) prefixArgs(cmd adapter.Command, args []interface{}) []interface{} {
	if len(args) == 0 {
		return args
	}
	out := append([]interface{}{}, args...)
	switch {
	case multiKeyCommands[cmd]:
		if keys, ok := out[0].([]string); ok {
			prefixed := make([]string, len(keys))
			for i, k := range keys {
				prefixed[i] = f.Prefix(k)
			}
			out[0] = prefixed
		}
	case singleKeyCommands[cmd]:
		if k, ok := out[0].(string); ok {
			out[0] = f.Prefix(k)
		}
	}
	return out
}

func (f *Facade) effectiveOptions(opts Options) (timeout time.Duration, retries int, delay time.Duration, throwOnError bool) {
	timeoutMs := f.cfg.DefaultTimeoutMs
	if opts.TimeoutMs > 0 {
		timeoutMs = opts.TimeoutMs
	}
	retries = f.cfg.DefaultRetries
	if opts.Retries > 0 {
		retries = opts.Retries
	}
	delayMs := f.cfg.DefaultRetryDelay
	if opts.RetryDelayMs > 0 {
		delayMs = opts.RetryDelayMs
	}
	throwOnError = f.cfg.ThrowOnError
	if opts.ThrowOnError != nil {
		throwOnError = *opts.ThrowOnError
	}
	return time.Duration(timeoutMs) * time.Millisecond, retries, time.Duration(delayMs) * time.Millisecond, throwOnError
}

// Execute runs one descriptor against the adapter, applying prefixing,
// per-call timeout, retry-with-delay on retryable errors, and the
// onError/throwOnError final-failure contract of §4.5/§7.
func (f *Facade) Execute(ctx context.Context, d descriptor.OperationDescriptor, params map[string]interface{}, opts Options) (interface{}, error) {
	args, err := d.BuildArgs(params)
	if err != nil {
		return nil, adapter.Wrap(adapter.ConfigError, d.Name, "", err)
	}
	args = f.prefixArgs(d.Command, args)

	timeout, retries, delay, throwOnError := f.effectiveOptions(opts)

	var raw interface{}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		raw, lastErr = f.dispatch(callCtx, d.Command, args)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			break
		}
		f.log.WithFields(logrus.Fields{"op": d.Name, "attempt": attempt, "error": lastErr}).Debug("facade call failed")
		if !adapter.Retryable(lastErr) || attempt == retries {
			break
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if lastErr != nil {
		f.log.WithFields(logrus.Fields{"op": d.Name, "error": lastErr}).Warn("facade call exhausted retries")
		if opts.OnError != nil {
			opts.OnError(lastErr)
		}
		if throwOnError {
			return nil, lastErr
		}
		return nil, nil
	}

	parsed, err := d.Parse(raw)
	if err != nil {
		return nil, adapter.Wrap(adapter.SerializationError, d.Name, "", err)
	}
	return parsed, nil
}

// dispatch invokes the one adapter method named by cmd. This mirrors
// InProcessAdapter's own dispatch table, kept separate because the
// facade operates through the Adapter interface rather than a concrete
// struct, and must work identically against RedisAdapter.
func (f *Facade) dispatch(ctx context.Context, cmd adapter.Command, args []interface{}) (interface{}, error) {
	a := f.adapter
	switch cmd {
	case adapter.CmdSet:
		opts, _ := args[2].(adapter.SetOptions)
		return a.Set(ctx, args[0].(string), args[1], opts)
	case adapter.CmdGet:
		v, ok, err := a.Get(ctx, args[0].(string))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return v, nil
	case adapter.CmdIncr:
		return a.Incr(ctx, args[0].(string))
	case adapter.CmdIncrBy:
		return a.IncrBy(ctx, args[0].(string), args[1].(int64))
	case adapter.CmdDecr:
		return a.Decr(ctx, args[0].(string))
	case adapter.CmdDecrBy:
		return a.DecrBy(ctx, args[0].(string), args[1].(int64))
	case adapter.CmdHGetAll:
		return a.HGetAll(ctx, args[0].(string))
	case adapter.CmdHGet:
		v, ok, err := a.HGet(ctx, args[0].(string), args[1].(string))
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	case adapter.CmdHSet:
		return a.HSet(ctx, args[0].(string), args[1].(string), args[2])
	case adapter.CmdLRange:
		return a.LRange(ctx, args[0].(string), args[1].(int64), args[2].(int64))
	case adapter.CmdRPush:
		return a.RPush(ctx, args[0].(string), args[1:]...)
	case adapter.CmdZRange:
		opts, _ := args[3].(adapter.RangeOptions)
		return a.ZRange(ctx, args[0].(string), args[1].(int64), args[2].(int64), opts)
	case adapter.CmdZAdd:
		opts, _ := args[1].(adapter.ZAddOptions)
		members, _ := args[2].([]adapter.ZMember)
		return a.ZAdd(ctx, args[0].(string), opts, members...)
	case adapter.CmdDel:
		keys, _ := args[0].([]string)
		return a.Del(ctx, keys...)
	case adapter.CmdExists:
		keys, _ := args[0].([]string)
		return a.Exists(ctx, keys...)
	case adapter.CmdExpire:
		return a.Expire(ctx, args[0].(string), args[1].(int64))
	case adapter.CmdTTL:
		return a.TTL(ctx, args[0].(string))
	default:
		return nil, adapter.New(adapter.CommandError, string(cmd), "", "facade has no dispatch case for this command; use ExecutePipeline/ExecuteTransaction directly")
	}
}

// ExecutePipeline prefixes every entry's key arguments and submits them
// together through the adapter's own ExecutePipeline, then applies each
// descriptor's parser to the successful entries. The Adapter interface
// requires ExecutePipeline, so there is no sequential fallback path here.
func (f *Facade) ExecutePipeline(ctx context.Context, entries []PipelineCall) ([]adapter.PipelineResult, error) {
	prefixed := make([]adapter.PipelineEntry, len(entries))
	for i, e := range entries {
		args, err := e.Descriptor.BuildArgs(e.Params)
		if err != nil {
			return nil, adapter.Wrap(adapter.ConfigError, e.Descriptor.Name, "", err)
		}
		prefixed[i] = adapter.PipelineEntry{Command: e.Descriptor.Command, Args: f.prefixArgs(e.Descriptor.Command, args)}
	}

	results, err := f.adapter.ExecutePipeline(ctx, prefixed)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].Success {
			parsed, perr := entries[i].Descriptor.Parse(results[i].Data)
			results[i].Data = parsed
			if perr != nil {
				results[i].Success = false
				results[i].Err = adapter.Wrap(adapter.SerializationError, entries[i].Descriptor.Name, "", perr)
			}
		}
	}
	return results, nil
}

// ExecuteTransaction is ExecutePipeline's all-or-nothing counterpart.
func (f *Facade) ExecuteTransaction(ctx context.Context, entries []PipelineCall) (adapter.TransactionResult, error) {
	prefixed := make([]adapter.PipelineEntry, len(entries))
	for i, e := range entries {
		args, err := e.Descriptor.BuildArgs(e.Params)
		if err != nil {
			return adapter.TransactionResult{}, adapter.Wrap(adapter.ConfigError, e.Descriptor.Name, "", err)
		}
		prefixed[i] = adapter.PipelineEntry{Command: e.Descriptor.Command, Args: f.prefixArgs(e.Descriptor.Command, args)}
	}
	return f.adapter.ExecuteTransaction(ctx, prefixed)
}

// PipelineCall pairs a descriptor with the parameters to build its args,
// the facade-level analogue of adapter.PipelineEntry.
type PipelineCall struct {
	Descriptor descriptor.OperationDescriptor
	Params     map[string]interface{}
}

// GetStats returns the underlying adapter's metrics, unchanged: the
// facade aggregates nothing beyond what the adapter already counts,
// since every call passes through exactly one adapter method.
func (f *Facade) GetStats() adapter.Stats {
	return f.adapter.GetStats()
}
