package adapter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry is the Store Entry of §3: a tagged value with an optional absolute
// expiration instant. Exactly one of the typed fields is meaningful,
// selected by tag.
type entry struct {
	tag       Tag
	str       string
	list      []string
	set       map[string]struct{}
	zset      map[string]float64
	hash      map[string]string
	stream    []StreamEntry
	expiresAt *time.Time
}

func (e *entry) expired(now time.Time) bool {
	return e.expiresAt != nil && now.After(*e.expiresAt)
}

// InProcessAdapter is the reference implementation of SPEC_FULL.md §5: a
// single in-memory map from key to tagged entry, guarded by a mutex so
// every command executes atomically relative to every other command on
// the same instance (§5's concurrency invariant — no suspension between
// the first and last write of a command).
//
// Eviction policy: when the entry count exceeds MaxEntries, keys are
// evicted in insertion order (FIFO) until the store is back under the
// bound. This is a deliberate, documented choice (§9 leaves the policy
// open); evictions are counted in Stats so the choice is observable.
type InProcessAdapter struct {
	mu sync.Mutex

	store        map[string]*entry
	insertOrder  []string // first-seen order, for FIFO eviction
	maxEntries   int
	sweepPeriod  time.Duration
	sweepGate    rate.Sometimes
	stopSweep    chan struct{}
	sweepStopped chan struct{}

	commandCounts map[Command]int64
	total         int64
	hits          int64
	misses        int64
	evictions     int64
}

// InProcessOption configures an InProcessAdapter.
type InProcessOption func(*InProcessAdapter)

// WithMaxEntries bounds the store size; 0 means unbounded.
func WithMaxEntries(n int) InProcessOption {
	return func(a *InProcessAdapter) { a.maxEntries = n }
}

// WithSweepPeriod sets how often the background sweep may run at most.
func WithSweepPeriod(d time.Duration) InProcessOption {
	return func(a *InProcessAdapter) { a.sweepPeriod = d }
}

// NewInProcess builds an in-process reference adapter and starts its
// background expiry sweep. Call Close to stop the sweep goroutine.
func NewInProcess(opts ...InProcessOption) *InProcessAdapter {
	a := &InProcessAdapter{
		store:         make(map[string]*entry),
		maxEntries:    0,
		sweepPeriod:   30 * time.Second,
		commandCounts: make(map[Command]int64),
		stopSweep:     make(chan struct{}),
		sweepStopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sweepGate = rate.Sometimes{Interval: a.sweepPeriod}
	go a.sweepLoop()
	return a
}

// Close stops the background sweep goroutine.
func (a *InProcessAdapter) Close() {
	close(a.stopSweep)
	<-a.sweepStopped
}

// sweepLoop polls frequently but rate.Sometimes collapses the actual sweep
// work to at most once per configured sweepPeriod, bounding memory for
// abandoned expired entries without requiring every caller to agree on a
// single ticker cadence.
func (a *InProcessAdapter) sweepLoop() {
	defer close(a.sweepStopped)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopSweep:
			return
		case <-ticker.C:
			a.sweepGate.Do(func() { a.sweep() })
		}
	}
}

func (a *InProcessAdapter) sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for k, e := range a.store {
		if e.expired(now) {
			delete(a.store, k)
		}
	}
}

func (a *InProcessAdapter) recordCommand(cmd Command) {
	a.commandCounts[cmd]++
	a.total++
}

func (a *InProcessAdapter) recordHit()  { a.hits++ }
func (a *InProcessAdapter) recordMiss() { a.misses++ }

// touch ensures insertOrder carries key, then enforces MaxEntries by
// evicting the oldest keys (FIFO) until back under the bound.
func (a *InProcessAdapter) touch(key string) {
	tracked := false
	for _, k := range a.insertOrder {
		if k == key {
			tracked = true
			break
		}
	}
	if !tracked {
		a.insertOrder = append(a.insertOrder, key)
	}
	if a.maxEntries <= 0 {
		return
	}
	for len(a.store) > a.maxEntries && len(a.insertOrder) > 0 {
		oldest := a.insertOrder[0]
		a.insertOrder = a.insertOrder[1:]
		if _, ok := a.store[oldest]; ok && oldest != key {
			delete(a.store, oldest)
			a.evictions++
		}
	}
}

// lookup returns the live (non-expired) entry for key, or nil. Expired
// entries are lazily removed on access.
func (a *InProcessAdapter) lookup(key string) *entry {
	e, ok := a.store[key]
	if !ok {
		return nil
	}
	if e.expired(time.Now()) {
		delete(a.store, key)
		return nil
	}
	return e
}

func applySetOptions(e *entry, opts SetOptions, now time.Time) {
	if opts.EX > 0 {
		t := now.Add(opts.EX)
		e.expiresAt = &t
	} else if !opts.KeepTTL {
		e.expiresAt = nil
	}
}

// --- String commands ---

func (a *InProcessAdapter) Set(ctx context.Context, key string, value interface{}, opts SetOptions) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSet)

	existing := a.lookup(key)
	if opts.NX && existing != nil {
		return false, nil
	}
	if opts.XX && existing == nil {
		return false, nil
	}

	now := time.Now()
	var e *entry
	if existing != nil && existing.tag == TagString {
		e = existing
	} else {
		e = &entry{tag: TagString}
	}
	e.str = fmt.Sprint(value)
	e.tag = TagString
	applySetOptions(e, opts, now)
	a.store[key] = e
	a.touch(key)
	return true, nil
}

func (a *InProcessAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdGet)

	e := a.lookup(key)
	if e == nil || e.tag != TagString {
		a.recordMiss()
		return "", false, nil
	}
	a.recordHit()
	return e.str, true, nil
}

func (a *InProcessAdapter) MSet(ctx context.Context, pairs map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdMSet)
	for k, v := range pairs {
		a.store[k] = &entry{tag: TagString, str: fmt.Sprint(v)}
		a.touch(k)
	}
	return nil
}

func (a *InProcessAdapter) MGet(ctx context.Context, keys []string) ([]*string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdMGet)
	out := make([]*string, len(keys))
	for i, k := range keys {
		e := a.lookup(k)
		if e == nil || e.tag != TagString {
			continue
		}
		v := e.str
		out[i] = &v
	}
	return out, nil
}

func (a *InProcessAdapter) incrBy(key string, delta int64, cmd Command) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(cmd)

	e := a.lookup(key)
	var cur int64
	if e != nil && e.tag == TagString {
		n, err := strconv.ParseInt(strings.TrimSpace(e.str), 10, 64)
		if err != nil {
			return 0, Wrap(CommandError, string(cmd), key, err)
		}
		cur = n
	} else if e != nil {
		return 0, New(CommandError, string(cmd), key, "WRONGTYPE")
	}
	cur += delta
	a.store[key] = &entry{tag: TagString, str: strconv.FormatInt(cur, 10)}
	a.touch(key)
	return cur, nil
}

func (a *InProcessAdapter) Incr(ctx context.Context, key string) (int64, error) {
	return a.incrBy(key, 1, CmdIncr)
}
func (a *InProcessAdapter) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return a.incrBy(key, delta, CmdIncrBy)
}
func (a *InProcessAdapter) Decr(ctx context.Context, key string) (int64, error) {
	return a.incrBy(key, -1, CmdDecr)
}
func (a *InProcessAdapter) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return a.incrBy(key, -delta, CmdDecrBy)
}

// --- Hash commands ---

func (a *InProcessAdapter) hashOf(key string, create bool) *entry {
	e := a.lookup(key)
	if e == nil {
		if !create {
			return nil
		}
		e = &entry{tag: TagHash, hash: map[string]string{}}
		a.store[key] = e
		a.touch(key)
		return e
	}
	if e.tag != TagHash {
		return nil
	}
	return e
}

func (a *InProcessAdapter) HSet(ctx context.Context, key, field string, value interface{}) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHSet)
	e := a.hashOf(key, true)
	_, existed := e.hash[field]
	e.hash[field] = fmt.Sprint(value)
	return !existed, nil
}

func (a *InProcessAdapter) HMSet(ctx context.Context, key string, fields map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHMSet)
	e := a.hashOf(key, true)
	for f, v := range fields {
		e.hash[f] = fmt.Sprint(v)
	}
	return nil
}

func (a *InProcessAdapter) HGet(ctx context.Context, key, field string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHGet)
	e := a.hashOf(key, false)
	if e == nil {
		a.recordMiss()
		return "", false, nil
	}
	v, ok := e.hash[field]
	if ok {
		a.recordHit()
	} else {
		a.recordMiss()
	}
	return v, ok, nil
}

func (a *InProcessAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHGetAll)
	e := a.hashOf(key, false)
	if e == nil {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(e.hash))
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (a *InProcessAdapter) HMGet(ctx context.Context, key string, fields []string) ([]*string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHMGet)
	e := a.hashOf(key, false)
	out := make([]*string, len(fields))
	if e == nil {
		return out, nil
	}
	for i, f := range fields {
		if v, ok := e.hash[f]; ok {
			vv := v
			out[i] = &vv
		}
	}
	return out, nil
}

func (a *InProcessAdapter) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHDel)
	e := a.hashOf(key, false)
	if e == nil {
		return 0, nil
	}
	var n int64
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			n++
		}
	}
	return n, nil
}

func (a *InProcessAdapter) HExists(ctx context.Context, key, field string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHExists)
	e := a.hashOf(key, false)
	if e == nil {
		return false, nil
	}
	_, ok := e.hash[field]
	return ok, nil
}

func (a *InProcessAdapter) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHIncrBy)
	e := a.hashOf(key, true)
	var cur int64
	if v, ok := e.hash[field]; ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, Wrap(CommandError, string(CmdHIncrBy), key, err)
		}
		cur = n
	}
	cur += delta
	e.hash[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (a *InProcessAdapter) HLen(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdHLen)
	e := a.hashOf(key, false)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.hash)), nil
}

// --- List commands ---

func (a *InProcessAdapter) listOf(key string, create bool) *entry {
	e := a.lookup(key)
	if e == nil {
		if !create {
			return nil
		}
		e = &entry{tag: TagList}
		a.store[key] = e
		a.touch(key)
		return e
	}
	if e.tag != TagList {
		return nil
	}
	return e
}

func (a *InProcessAdapter) LPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLPush)
	e := a.listOf(key, true)
	for _, v := range values {
		e.list = append([]string{fmt.Sprint(v)}, e.list...)
	}
	return int64(len(e.list)), nil
}

func (a *InProcessAdapter) RPush(ctx context.Context, key string, values ...interface{}) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdRPush)
	e := a.listOf(key, true)
	for _, v := range values {
		e.list = append(e.list, fmt.Sprint(v))
	}
	return int64(len(e.list)), nil
}

func (a *InProcessAdapter) LPop(ctx context.Context, key string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLPop)
	e := a.listOf(key, false)
	if e == nil || len(e.list) == 0 {
		return "", false, nil
	}
	v := e.list[0]
	e.list = e.list[1:]
	return v, true, nil
}

func (a *InProcessAdapter) RPop(ctx context.Context, key string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdRPop)
	e := a.listOf(key, false)
	if e == nil || len(e.list) == 0 {
		return "", false, nil
	}
	v := e.list[len(e.list)-1]
	e.list = e.list[:len(e.list)-1]
	return v, true, nil
}

// listIndex converts a possibly-negative redis-style index to an absolute
// offset into a slice of the given length. ok is false if out of range.
func listIndex(idx int64, length int) (int, bool) {
	if idx < 0 {
		idx += int64(length)
	}
	if idx < 0 || idx >= int64(length) {
		return 0, false
	}
	return int(idx), true
}

func (a *InProcessAdapter) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLRange)
	e := a.listOf(key, false)
	if e == nil {
		return nil, nil
	}
	n := len(e.list)
	s, ok := listIndex(start, n)
	if !ok {
		if start < 0 {
			s = 0
		} else {
			return []string{}, nil
		}
	}
	stopIdx := stop
	if stopIdx < 0 {
		stopIdx += int64(n)
	}
	if stopIdx >= int64(n) {
		stopIdx = int64(n) - 1
	}
	if stopIdx < int64(s) {
		return []string{}, nil
	}
	return append([]string{}, e.list[s:stopIdx+1]...), nil
}

func (a *InProcessAdapter) LTrim(ctx context.Context, key string, start, stop int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLTrim)
	e := a.listOf(key, false)
	if e == nil {
		return nil
	}
	trimmed, err := a.lrangeSlice(e.list, start, stop)
	if err != nil {
		return err
	}
	e.list = trimmed
	return nil
}

func (a *InProcessAdapter) lrangeSlice(list []string, start, stop int64) ([]string, error) {
	n := len(list)
	s, ok := listIndex(start, n)
	if !ok {
		if start < 0 {
			s = 0
		} else {
			return []string{}, nil
		}
	}
	stopIdx := stop
	if stopIdx < 0 {
		stopIdx += int64(n)
	}
	if stopIdx >= int64(n) {
		stopIdx = int64(n) - 1
	}
	if stopIdx < int64(s) {
		return []string{}, nil
	}
	return append([]string{}, list[s:stopIdx+1]...), nil
}

func (a *InProcessAdapter) LIndex(ctx context.Context, key string, index int64) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLIndex)
	e := a.listOf(key, false)
	if e == nil {
		return "", false, nil
	}
	idx, ok := listIndex(index, len(e.list))
	if !ok {
		return "", false, nil
	}
	return e.list[idx], true, nil
}

func (a *InProcessAdapter) LSet(ctx context.Context, key string, index int64, value interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLSet)
	e := a.listOf(key, false)
	if e == nil {
		return New(CommandError, string(CmdLSet), key, "no such key")
	}
	idx, ok := listIndex(index, len(e.list))
	if !ok {
		return New(CommandError, string(CmdLSet), key, "index out of range")
	}
	e.list[idx] = fmt.Sprint(value)
	return nil
}

func (a *InProcessAdapter) LRem(ctx context.Context, key string, count int64, value interface{}) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLRem)
	e := a.listOf(key, false)
	if e == nil {
		return 0, nil
	}
	target := fmt.Sprint(value)
	var removed int64
	out := make([]string, 0, len(e.list))

	switch {
	case count == 0:
		for _, v := range e.list {
			if v == target {
				removed++
				continue
			}
			out = append(out, v)
		}
	case count > 0:
		for _, v := range e.list {
			if v == target && removed < count {
				removed++
				continue
			}
			out = append(out, v)
		}
	default:
		limit := -count
		for i := len(e.list) - 1; i >= 0; i-- {
			v := e.list[i]
			if v == target && removed < limit {
				removed++
				continue
			}
			out = append([]string{v}, out...)
		}
	}
	e.list = out
	return removed, nil
}

func (a *InProcessAdapter) LPos(ctx context.Context, key string, value interface{}) (int64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLPos)
	e := a.listOf(key, false)
	if e == nil {
		return 0, false, nil
	}
	target := fmt.Sprint(value)
	for i, v := range e.list {
		if v == target {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (a *InProcessAdapter) LInsert(ctx context.Context, key string, before bool, pivot, value interface{}) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLInsert)
	e := a.listOf(key, false)
	if e == nil {
		return 0, nil
	}
	p := fmt.Sprint(pivot)
	for i, v := range e.list {
		if v == p {
			idx := i
			if !before {
				idx = i + 1
			}
			e.list = append(e.list[:idx], append([]string{fmt.Sprint(value)}, e.list[idx:]...)...)
			return int64(len(e.list)), nil
		}
	}
	return -1, nil
}

func (a *InProcessAdapter) LLen(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdLLen)
	e := a.listOf(key, false)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.list)), nil
}

// --- Set commands ---

func (a *InProcessAdapter) setOf(key string, create bool) *entry {
	e := a.lookup(key)
	if e == nil {
		if !create {
			return nil
		}
		e = &entry{tag: TagSet, set: map[string]struct{}{}}
		a.store[key] = e
		a.touch(key)
		return e
	}
	if e.tag != TagSet {
		return nil
	}
	return e
}

func (a *InProcessAdapter) SAdd(ctx context.Context, key string, members ...interface{}) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSAdd)
	e := a.setOf(key, true)
	var added int64
	for _, m := range members {
		s := fmt.Sprint(m)
		if _, ok := e.set[s]; !ok {
			e.set[s] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (a *InProcessAdapter) SRem(ctx context.Context, key string, members ...interface{}) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSRem)
	e := a.setOf(key, false)
	if e == nil {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		s := fmt.Sprint(m)
		if _, ok := e.set[s]; ok {
			delete(e.set, s)
			removed++
		}
	}
	return removed, nil
}

func (a *InProcessAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSMem)
	e := a.setOf(key, false)
	if e == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (a *InProcessAdapter) SIsMember(ctx context.Context, key string, member interface{}) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSIsMem)
	e := a.setOf(key, false)
	if e == nil {
		return false, nil
	}
	_, ok := e.set[fmt.Sprint(member)]
	return ok, nil
}

func (a *InProcessAdapter) SCard(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSCard)
	e := a.setOf(key, false)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

func (a *InProcessAdapter) setContents(key string) map[string]struct{} {
	e := a.setOf(key, false)
	if e == nil {
		return map[string]struct{}{}
	}
	return e.set
}

func (a *InProcessAdapter) SInter(ctx context.Context, keys ...string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSInter)
	if len(keys) == 0 {
		return []string{}, nil
	}
	result := map[string]struct{}{}
	for m := range a.setContents(keys[0]) {
		result[m] = struct{}{}
	}
	for _, k := range keys[1:] {
		cur := a.setContents(k)
		for m := range result {
			if _, ok := cur[m]; !ok {
				delete(result, m)
			}
		}
	}
	return sortedKeys(result), nil
}

func (a *InProcessAdapter) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSUnion)
	result := map[string]struct{}{}
	for _, k := range keys {
		for m := range a.setContents(k) {
			result[m] = struct{}{}
		}
	}
	return sortedKeys(result), nil
}

func (a *InProcessAdapter) SDiff(ctx context.Context, keys ...string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdSDiff)
	if len(keys) == 0 {
		return []string{}, nil
	}
	result := map[string]struct{}{}
	for m := range a.setContents(keys[0]) {
		result[m] = struct{}{}
	}
	for _, k := range keys[1:] {
		for m := range a.setContents(k) {
			delete(result, m)
		}
	}
	return sortedKeys(result), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// --- Sorted-set commands ---

func (a *InProcessAdapter) zsetOf(key string, create bool) *entry {
	e := a.lookup(key)
	if e == nil {
		if !create {
			return nil
		}
		e = &entry{tag: TagSortedSet, zset: map[string]float64{}}
		a.store[key] = e
		a.touch(key)
		return e
	}
	if e.tag != TagSortedSet {
		return nil
	}
	return e
}

func (a *InProcessAdapter) ZAdd(ctx context.Context, key string, opts ZAddOptions, members ...ZMember) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZAdd)
	e := a.zsetOf(key, true)
	var added int64
	for _, m := range members {
		existing, exists := e.zset[m.Member]
		if opts.NX && exists {
			continue
		}
		if opts.XX && !exists {
			continue
		}
		if opts.GT && exists && m.Score <= existing {
			continue
		}
		if opts.LT && exists && m.Score >= existing {
			continue
		}
		if !exists {
			added++
		}
		e.zset[m.Member] = m.Score
	}
	return added, nil
}

func (a *InProcessAdapter) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZRem)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, ok := e.zset[m]; ok {
			delete(e.zset, m)
			removed++
		}
	}
	return removed, nil
}

func (a *InProcessAdapter) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZScore)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, false, nil
	}
	s, ok := e.zset[member]
	return s, ok, nil
}

// orderedMembers returns the entry's members sorted ascending by score,
// tie-broken by member lexicographic ascending (§3, §4.3).
func orderedMembers(e *entry) []ZMember {
	out := make([]ZMember, 0, len(e.zset))
	for m, s := range e.zset {
		out = append(out, ZMember{Member: m, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func (a *InProcessAdapter) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZRank)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, false, nil
	}
	if _, ok := e.zset[member]; !ok {
		return 0, false, nil
	}
	for i, m := range orderedMembers(e) {
		if m.Member == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (a *InProcessAdapter) ZRevRank(ctx context.Context, key, member string) (int64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZRevRank)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, false, nil
	}
	if _, ok := e.zset[member]; !ok {
		return 0, false, nil
	}
	members := orderedMembers(e)
	for i, m := range members {
		if m.Member == member {
			return int64(len(members)) - 1 - int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (a *InProcessAdapter) ZCard(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZCard)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.zset)), nil
}

// parseScoreBound parses a ZRANGEBYSCORE-style bound: "-inf", "+inf", a
// plain float, or "(value" for an exclusive bound.
func parseScoreBound(s string) (value float64, exclusive bool, err error) {
	switch s {
	case "-inf":
		return negInf, false, nil
	case "+inf", "inf":
		return posInf, false, nil
	}
	if strings.HasPrefix(s, "(") {
		v, err := strconv.ParseFloat(s[1:], 64)
		return v, true, err
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, false, err
}

const (
	posInf = float64(1) << 62
	negInf = -(float64(1) << 62)
)

func inScoreRange(score, min float64, minExcl bool, max float64, maxExcl bool) bool {
	if minExcl {
		if score <= min {
			return false
		}
	} else if score < min {
		return false
	}
	if maxExcl {
		if score >= max {
			return false
		}
	} else if score > max {
		return false
	}
	return true
}

func (a *InProcessAdapter) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZCount)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, nil
	}
	minV, minExcl, err := parseScoreBound(min)
	if err != nil {
		return 0, Wrap(CommandError, string(CmdZCount), key, err)
	}
	maxV, maxExcl, err := parseScoreBound(max)
	if err != nil {
		return 0, Wrap(CommandError, string(CmdZCount), key, err)
	}
	var n int64
	for _, s := range e.zset {
		if inScoreRange(s, minV, minExcl, maxV, maxExcl) {
			n++
		}
	}
	return n, nil
}

func (a *InProcessAdapter) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZIncrBy)
	e := a.zsetOf(key, true)
	e.zset[member] += delta
	return e.zset[member], nil
}

func rangeIndices(start, stop int64, n int) (int, int, bool) {
	s, ok := listIndex(start, n)
	if !ok {
		if start < 0 {
			s = 0
		} else {
			return 0, 0, false
		}
	}
	e := stop
	if e < 0 {
		e += int64(n)
	}
	if e >= int64(n) {
		e = int64(n) - 1
	}
	if e < int64(s) {
		return 0, 0, false
	}
	return s, int(e), true
}

func (a *InProcessAdapter) ZRange(ctx context.Context, key string, start, stop int64, opts RangeOptions) ([]ZMember, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZRange)
	e := a.zsetOf(key, false)
	if e == nil {
		return []ZMember{}, nil
	}
	ordered := orderedMembers(e)
	s, stopIdx, ok := rangeIndices(start, stop, len(ordered))
	if !ok {
		return []ZMember{}, nil
	}
	return append([]ZMember{}, ordered[s:stopIdx+1]...), nil
}

func (a *InProcessAdapter) ZRevRange(ctx context.Context, key string, start, stop int64, opts RangeOptions) ([]ZMember, error) {
	fwd, err := a.ZRange(ctx, key, 0, -1, opts)
	if err != nil {
		return nil, err
	}
	rev := make([]ZMember, len(fwd))
	for i, m := range fwd {
		rev[len(fwd)-1-i] = m
	}
	n := int64(len(rev))
	s, stopIdx, ok := rangeIndices(start, stop, len(rev))
	if !ok || n == 0 {
		return []ZMember{}, nil
	}
	return rev[s : stopIdx+1], nil
}

func (a *InProcessAdapter) zRangeByScore(key, min, max string, opts RangeOptions, reverse bool) ([]ZMember, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZRangeByScore)
	e := a.zsetOf(key, false)
	if e == nil {
		return []ZMember{}, nil
	}
	minV, minExcl, err := parseScoreBound(min)
	if err != nil {
		return nil, Wrap(CommandError, string(CmdZRangeByScore), key, err)
	}
	maxV, maxExcl, err := parseScoreBound(max)
	if err != nil {
		return nil, Wrap(CommandError, string(CmdZRangeByScore), key, err)
	}
	ordered := orderedMembers(e)
	out := make([]ZMember, 0, len(ordered))
	for _, m := range ordered {
		if inScoreRange(m.Score, minV, minExcl, maxV, maxExcl) {
			out = append(out, m)
		}
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit != nil {
		offset := opts.Limit.Offset
		count := opts.Limit.Count
		if offset >= len(out) {
			return []ZMember{}, nil
		}
		end := len(out)
		if count >= 0 && offset+count < end {
			end = offset + count
		}
		out = out[offset:end]
	}
	return out, nil
}

func (a *InProcessAdapter) ZRangeByScore(ctx context.Context, key, min, max string, opts RangeOptions) ([]ZMember, error) {
	return a.zRangeByScore(key, min, max, opts, false)
}

func (a *InProcessAdapter) ZRevRangeByScore(ctx context.Context, key, min, max string, opts RangeOptions) ([]ZMember, error) {
	return a.zRangeByScore(key, max, min, opts, true)
}

func (a *InProcessAdapter) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZRemRangeByRank)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, nil
	}
	ordered := orderedMembers(e)
	s, stopIdx, ok := rangeIndices(start, stop, len(ordered))
	if !ok {
		return 0, nil
	}
	for _, m := range ordered[s : stopIdx+1] {
		delete(e.zset, m.Member)
	}
	return int64(stopIdx - s + 1), nil
}

func (a *InProcessAdapter) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdZRemRangeByScore)
	e := a.zsetOf(key, false)
	if e == nil {
		return 0, nil
	}
	minV, minExcl, err := parseScoreBound(min)
	if err != nil {
		return 0, Wrap(CommandError, string(CmdZRemRangeByScore), key, err)
	}
	maxV, maxExcl, err := parseScoreBound(max)
	if err != nil {
		return 0, Wrap(CommandError, string(CmdZRemRangeByScore), key, err)
	}
	var removed int64
	for m, s := range e.zset {
		if inScoreRange(s, minV, minExcl, maxV, maxExcl) {
			delete(e.zset, m)
			removed++
		}
	}
	return removed, nil
}

// --- Key management ---

func (a *InProcessAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdDel)
	var n int64
	for _, k := range keys {
		if a.lookup(k) != nil {
			delete(a.store, k)
			n++
		}
	}
	return n, nil
}

func (a *InProcessAdapter) Exists(ctx context.Context, keys ...string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdExists)
	var n int64
	for _, k := range keys {
		if a.lookup(k) != nil {
			n++
		}
	}
	return n, nil
}

func (a *InProcessAdapter) Expire(ctx context.Context, key string, seconds int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdExpire)
	e := a.lookup(key)
	if e == nil {
		return false, nil
	}
	t := time.Now().Add(time.Duration(seconds) * time.Second)
	e.expiresAt = &t
	return true, nil
}

func (a *InProcessAdapter) ExpireAt(ctx context.Context, key string, unixSeconds int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdExpireAt)
	e := a.lookup(key)
	if e == nil {
		return false, nil
	}
	t := time.Unix(unixSeconds, 0)
	e.expiresAt = &t
	return true, nil
}

func (a *InProcessAdapter) TTL(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdTTL)
	e := a.lookup(key)
	if e == nil {
		return -2, nil
	}
	if e.expiresAt == nil {
		return -1, nil
	}
	remaining := time.Until(*e.expiresAt)
	if remaining < 0 {
		return -2, nil
	}
	return int64(remaining / time.Second), nil
}

func (a *InProcessAdapter) PTTL(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdPTTL)
	e := a.lookup(key)
	if e == nil {
		return -2, nil
	}
	if e.expiresAt == nil {
		return -1, nil
	}
	remaining := time.Until(*e.expiresAt)
	if remaining < 0 {
		return -2, nil
	}
	return remaining.Milliseconds(), nil
}

func (a *InProcessAdapter) Persist(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdPersist)
	e := a.lookup(key)
	if e == nil || e.expiresAt == nil {
		return false, nil
	}
	e.expiresAt = nil
	return true, nil
}

func (a *InProcessAdapter) Rename(ctx context.Context, src, dst string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdRename)
	e := a.lookup(src)
	if e == nil {
		return New(NotFound, string(CmdRename), src, "no such key")
	}
	delete(a.store, src)
	a.store[dst] = e
	a.touch(dst)
	return nil
}

func (a *InProcessAdapter) Type(ctx context.Context, key string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdType)
	e := a.lookup(key)
	if e == nil {
		return string(TagNone), nil
	}
	return string(e.tag), nil
}

func (a *InProcessAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdKeys)
	now := time.Now()
	var out []string
	for k, e := range a.store {
		if e.expired(now) {
			continue
		}
		if globMatch(pattern, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (a *InProcessAdapter) Scan(ctx context.Context, cursor string, opts ScanOptions) (ScanResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdScan)

	now := time.Now()
	var all []string
	for k, e := range a.store {
		if e.expired(now) {
			continue
		}
		if opts.Type != "" && e.tag != opts.Type {
			continue
		}
		if opts.Match != "" && !globMatch(opts.Match, k) {
			continue
		}
		all = append(all, k)
	}
	sort.Strings(all)

	start := 0
	if cursor != "0" && cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil {
			start = n
		}
	}
	count := opts.Count
	if count <= 0 {
		count = 10
	}
	end := start + count
	if end > len(all) {
		end = len(all)
	}
	if start > len(all) {
		start = len(all)
	}
	next := "0"
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return ScanResult{NextCursor: next, Keys: append([]string{}, all[start:end]...)}, nil
}

// globMatch implements the limited glob syntax used by KEYS/SCAN match
// patterns: '*' (any run of characters) and '?' (any single character).
func globMatch(pattern, s string) bool {
	return globMatchHelper(pattern, s)
}

func globMatchHelper(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	if pattern == "*" {
		return true
	}
	var pi, si int
	var star, match int
	star = -1
	for si < len(s) {
		if pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]) {
			pi++
			si++
		} else if pi < len(pattern) && pattern[pi] == '*' {
			star = pi
			match = si
			pi++
		} else if star != -1 {
			pi = star + 1
			match++
			si = match
		} else {
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// --- Metrics ---

func (a *InProcessAdapter) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[Command]int64, len(a.commandCounts))
	for k, v := range a.commandCounts {
		counts[k] = v
	}
	return Stats{
		Commands:  counts,
		Total:     a.total,
		Hits:      a.hits,
		Misses:    a.misses,
		Evictions: a.evictions,
		Size:      len(a.store),
	}
}

func (a *InProcessAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commandCounts = make(map[Command]int64)
	a.total, a.hits, a.misses, a.evictions = 0, 0, 0, 0
}

// --- Capability probes ---

func (a *InProcessAdapter) HasStreams() bool      { return true }
func (a *InProcessAdapter) HasHyperLogLog() bool  { return true }
func (a *InProcessAdapter) HasBloom() bool        { return false }
func (a *InProcessAdapter) HasScript() bool       { return false }
func (a *InProcessAdapter) HasPubSub() bool       { return true }
