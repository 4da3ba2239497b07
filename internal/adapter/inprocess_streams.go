package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// streamIDSeq gives monotonically increasing auto-IDs within a single
// process lifetime, formatted "<unixMillis>-<seq>" like real stream IDs.
type streamIDSeq struct {
	mu   sync.Mutex
	last int64
	seq  int64
}

var globalStreamSeq streamIDSeq

func (s *streamIDSeq) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	if now == s.last {
		s.seq++
	} else {
		s.last = now
		s.seq = 0
	}
	return fmt.Sprintf("%d-%d", now, s.seq)
}

func (a *InProcessAdapter) streamOf(key string, create bool) *entry {
	e := a.lookup(key)
	if e == nil {
		if !create {
			return nil
		}
		e = &entry{tag: TagStream}
		a.store[key] = e
		a.touch(key)
		return e
	}
	if e.tag != TagStream {
		return nil
	}
	return e
}

// XAdd appends an entry. id "*" requests an auto-generated id.
func (a *InProcessAdapter) XAdd(ctx context.Context, key, id string, fields map[string]interface{}) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdXAdd)

	e := a.streamOf(key, true)
	if id == "" || id == "*" {
		id = globalStreamSeq.next()
	}
	if len(e.stream) > 0 && compareStreamIDs(id, e.stream[len(e.stream)-1].ID) <= 0 {
		return "", New(CommandError, string(CmdXAdd), key, "id must be greater than the last entry's id")
	}
	e.stream = append(e.stream, StreamEntry{ID: id, Fields: fields})
	return id, nil
}

func compareStreamIDs(a, b string) int {
	pa := strings.SplitN(a, "-", 2)
	pb := strings.SplitN(b, "-", 2)
	ma, _ := strconv.ParseInt(pa[0], 10, 64)
	mb, _ := strconv.ParseInt(pb[0], 10, 64)
	if ma != mb {
		if ma < mb {
			return -1
		}
		return 1
	}
	var sa, sb int64
	if len(pa) > 1 {
		sa, _ = strconv.ParseInt(pa[1], 10, 64)
	}
	if len(pb) > 1 {
		sb, _ = strconv.ParseInt(pb[1], 10, 64)
	}
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func (a *InProcessAdapter) XLen(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdXLen)
	e := a.streamOf(key, false)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.stream)), nil
}

func streamBound(id string, lo bool) string {
	if id == "-" {
		return "0-0"
	}
	if id == "+" {
		return fmt.Sprintf("%d-%d", int64(1)<<62, int64(1)<<62)
	}
	if !strings.Contains(id, "-") {
		if lo {
			return id + "-0"
		}
		return fmt.Sprintf("%s-%d", id, int64(1)<<62)
	}
	return id
}

func (a *InProcessAdapter) XRange(ctx context.Context, key, start, stop string, count int64) ([]StreamEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdXRange)
	e := a.streamOf(key, false)
	if e == nil {
		return []StreamEntry{}, nil
	}
	lo := streamBound(start, true)
	hi := streamBound(stop, false)
	out := make([]StreamEntry, 0, len(e.stream))
	for _, se := range e.stream {
		if compareStreamIDs(se.ID, lo) >= 0 && compareStreamIDs(se.ID, hi) <= 0 {
			out = append(out, se)
			if count > 0 && int64(len(out)) >= count {
				break
			}
		}
	}
	return out, nil
}

func (a *InProcessAdapter) XRevRange(ctx context.Context, key, start, stop string, count int64) ([]StreamEntry, error) {
	fwd, err := a.XRange(ctx, key, stop, start, 0)
	if err != nil {
		return nil, err
	}
	rev := make([]StreamEntry, len(fwd))
	for i, se := range fwd {
		rev[len(fwd)-1-i] = se
	}
	if count > 0 && int64(len(rev)) > count {
		rev = rev[:count]
	}
	return rev, nil
}

// XRead is a non-blocking snapshot read: it returns every entry with an
// id strictly greater than the per-stream cursor in ids. block/wait-style
// semantics are out of scope for the in-process adapter (§4.3 marks
// XREAD's blocking form as a full-adapter feature).
func (a *InProcessAdapter) XRead(ctx context.Context, streams []string, ids []string, count int64) (map[string][]StreamEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdXRead)
	out := make(map[string][]StreamEntry)
	for i, key := range streams {
		after := "0-0"
		if i < len(ids) {
			after = ids[i]
		}
		e := a.streamOf(key, false)
		if e == nil {
			continue
		}
		var entries []StreamEntry
		for _, se := range e.stream {
			if compareStreamIDs(se.ID, after) > 0 {
				entries = append(entries, se)
				if count > 0 && int64(len(entries)) >= count {
					break
				}
			}
		}
		if len(entries) > 0 {
			out[key] = entries
		}
	}
	return out, nil
}

func (a *InProcessAdapter) XTrim(ctx context.Context, key string, maxLen int64, approx bool) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdXTrim)
	e := a.streamOf(key, false)
	if e == nil || int64(len(e.stream)) <= maxLen {
		return 0, nil
	}
	trimmed := int64(len(e.stream)) - maxLen
	e.stream = e.stream[trimmed:]
	return trimmed, nil
}

func (a *InProcessAdapter) XDel(ctx context.Context, key string, ids ...string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdXDel)
	e := a.streamOf(key, false)
	if e == nil {
		return 0, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var removed int64
	out := e.stream[:0]
	for _, se := range e.stream {
		if want[se.ID] {
			removed++
			continue
		}
		out = append(out, se)
	}
	e.stream = out
	return removed, nil
}

// --- HyperLogLog ---
//
// The in-process adapter approximates PFADD/PFCOUNT/PFMERGE with exact
// sets rather than a true HyperLogLog sketch: at the scale this
// reference adapter targets (tests and single-process development use)
// exactness is strictly better than a probabilistic estimate, and the
// observable contract — cardinality estimation with bounded error — is
// satisfied trivially by reporting the exact count.
func (a *InProcessAdapter) hllOf(key string, create bool) *entry {
	e := a.lookup(key)
	if e == nil {
		if !create {
			return nil
		}
		e = &entry{tag: TagHLL, set: map[string]struct{}{}}
		a.store[key] = e
		a.touch(key)
		return e
	}
	if e.tag != TagHLL {
		return nil
	}
	return e
}

func (a *InProcessAdapter) PFAdd(ctx context.Context, key string, elements ...interface{}) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdPFAdd)
	e := a.hllOf(key, true)
	changed := false
	for _, el := range elements {
		s := fmt.Sprint(el)
		if _, ok := e.set[s]; !ok {
			e.set[s] = struct{}{}
			changed = true
		}
	}
	return changed, nil
}

func (a *InProcessAdapter) PFCount(ctx context.Context, keys ...string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdPFCount)
	union := map[string]struct{}{}
	for _, k := range keys {
		e := a.hllOf(k, false)
		if e == nil {
			continue
		}
		for m := range e.set {
			union[m] = struct{}{}
		}
	}
	return int64(len(union)), nil
}

func (a *InProcessAdapter) PFMerge(ctx context.Context, dest string, src ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordCommand(CmdPFMerge)
	d := a.hllOf(dest, true)
	for _, k := range src {
		e := a.hllOf(k, false)
		if e == nil {
			continue
		}
		for m := range e.set {
			d.set[m] = struct{}{}
		}
	}
	return nil
}

// --- Pub/Sub ---
//
// Grounded on the teacher's RedisRepository pub/sub methods, reworked
// for an in-process broadcaster: Publish snapshots the channel's
// subscriber list under the process-wide pubsub mutex, releases the
// mutex, then calls each snapshotted callback synchronously. A Subscribe
// that completes before the snapshot receives the message; one that
// completes after it receives only later publishes.
type subscription struct {
	id int64
	cb func(message string)
}

func (a *InProcessAdapter) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	pubsubMu.Lock()
	subs := append([]subscription{}, pubsubChannels[channel]...)
	pubsubMu.Unlock()

	msg := fmt.Sprint(message)
	for _, s := range subs {
		s.cb(msg)
	}
	return int64(len(subs)), nil
}

func (a *InProcessAdapter) Subscribe(ctx context.Context, channel string, cb func(message string)) (func(), error) {
	pubsubMu.Lock()
	defer pubsubMu.Unlock()
	pubsubSeq++
	id := pubsubSeq
	pubsubChannels[channel] = append(pubsubChannels[channel], subscription{id: id, cb: cb})

	unsubscribe := func() {
		pubsubMu.Lock()
		defer pubsubMu.Unlock()
		subs := pubsubChannels[channel]
		for i, s := range subs {
			if s.id == id {
				pubsubChannels[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return unsubscribe, nil
}

// pubsubChannels is process-wide (not per-adapter-instance) because
// real pub/sub fans out across every connection sharing a backend; a
// per-instance channel map would let two InProcessAdapter values in the
// same test disagree about whether a message was delivered.
var (
	pubsubMu       sync.Mutex
	pubsubChannels = map[string][]subscription{}
	pubsubSeq      int64
)
