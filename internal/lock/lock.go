// Package lock implements the Lock Service of SPEC_FULL.md §9:
// acquire/release/extend with owner fencing, and a withLock scope guard
// that always releases. Grounded directly on
// db/repository/redis.go's AcquireLock/ReleaseLock/IsLocked
// (SetNX+TTL, Del, Exists), generalized from one Redis implementation
// to the adapter-abstracted service the spec requires: a compare-and-act
// script on script-capable adapters, and a GET-then-DEL fallback
// elsewhere with the documented correctness caveat from spec.md §4.8.
// Owner ids replace the teacher's plain JSON lock payload with the
// fencing-token shape the invariant in §3 requires: a monotonic
// millisecond prefix plus a github.com/google/uuid suffix.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/cachelog"
	"github.com/evalgo-org/cachyer/internal/facade"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config is the service's external configuration (spec.md §6, lock row).
type Config struct {
	KeyPrefix              string
	DefaultTTLMs           int
	DefaultTimeoutMs       int
	DefaultRetryIntervalMs int
}

// Service is the Lock Service: mutual exclusion over adapter keys, the
// only component in this module that holds locks across suspension
// points (spec.md §5).
type Service struct {
	facade *facade.Facade
	cfg    Config
	log    *logrus.Entry
}

// New builds a lock Service over f with configuration cfg.
func New(f *facade.Facade, cfg Config) *Service {
	return &Service{facade: f, cfg: cfg, log: cachelog.WithComponent("lock")}
}

func (s *Service) key(resource string) string {
	return s.facade.Prefix(fmt.Sprintf("%s:%s", s.cfg.KeyPrefix, resource))
}

// NewOwnerID generates a fencing token unique per caller: a monotonic
// millisecond prefix (so owner ids sort by acquisition time) plus a
// random uuid suffix (so concurrent callers in the same millisecond
// never collide).
func NewOwnerID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
}

// AcquireLock sets the lock key to ownerId with NX and a PX ttlMs
// expiry. Success iff the underlying SET reports it took effect. If
// ownerId is empty, one is generated.
func (s *Service) AcquireLock(ctx context.Context, resource string, ttlMs int, ownerID string) (string, bool, error) {
	if ownerID == "" {
		ownerID = NewOwnerID()
	}
	key := s.key(resource)
	ok, err := s.facade.Adapter().Set(ctx, key, ownerID, adapter.SetOptions{
		NX: true,
		EX: time.Duration(ttlMs) * time.Millisecond,
	})
	if err != nil {
		return ownerID, false, err
	}
	return ownerID, ok, nil
}

// releaseScript performs the compare-and-delete atomically: the lock is
// removed only if it is still held by ownerID.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
else
  return 0
end
`

// extendScript performs the compare-and-pexpire atomically: the TTL is
// refreshed only if the lock is still held by ownerID.
const extendScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
else
  return 0
end
`

// ReleaseLock releases resource iff it is currently held by ownerID.
// On script-capable adapters this is an atomic compare-and-delete; on
// adapters without scripting it falls back to a GET-then-DEL sequence
// that is not safe under adversarial timing (spec.md §4.8) — callers
// that need release correctness under contention should prefer a
// script-capable adapter.
func (s *Service) ReleaseLock(ctx context.Context, resource, ownerID string) (bool, error) {
	a := s.facade.Adapter()
	key := s.key(resource)

	if a.HasScript() {
		raw, err := a.ExecuteScript(ctx, releaseScript, []string{key}, []interface{}{ownerID})
		if err != nil {
			return false, err
		}
		return toInt64(raw) > 0, nil
	}

	current, ok, err := a.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || current != ownerID {
		return false, nil
	}
	n, err := a.Del(ctx, key)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExtendLock refreshes resource's TTL to ttlMs iff it is currently held
// by ownerID, with the same script/fallback split as ReleaseLock.
func (s *Service) ExtendLock(ctx context.Context, resource string, ttlMs int, ownerID string) (bool, error) {
	a := s.facade.Adapter()
	key := s.key(resource)

	if a.HasScript() {
		raw, err := a.ExecuteScript(ctx, extendScript, []string{key}, []interface{}{ownerID, ttlMs})
		if err != nil {
			return false, err
		}
		return toInt64(raw) > 0, nil
	}

	current, ok, err := a.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || current != ownerID {
		return false, nil
	}
	ok, err = a.Set(ctx, key, ownerID, adapter.SetOptions{XX: true, EX: time.Duration(ttlMs) * time.Millisecond})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// IsLocked reports whether resource currently has a lock key, without
// identifying the holder.
func (s *Service) IsLocked(ctx context.Context, resource string) (bool, error) {
	n, err := s.facade.Adapter().Exists(ctx, s.key(resource))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// WithLockOptions configures one WithLock call, falling back to the
// Service's Config defaults when zero.
type WithLockOptions struct {
	TTLMs           int
	TimeoutMs       int
	RetryIntervalMs int
}

func (s *Service) effective(opts WithLockOptions) (ttlMs, timeoutMs, retryIntervalMs int) {
	ttlMs = s.cfg.DefaultTTLMs
	if opts.TTLMs > 0 {
		ttlMs = opts.TTLMs
	}
	timeoutMs = s.cfg.DefaultTimeoutMs
	if opts.TimeoutMs > 0 {
		timeoutMs = opts.TimeoutMs
	}
	retryIntervalMs = s.cfg.DefaultRetryIntervalMs
	if opts.RetryIntervalMs > 0 {
		retryIntervalMs = opts.RetryIntervalMs
	}
	return
}

// ErrAcquireTimeout is returned when WithLock cannot acquire resource
// before its deadline.
type ErrAcquireTimeout struct {
	Resource string
}

func (e *ErrAcquireTimeout) Error() string {
	return fmt.Sprintf("lock: timed out acquiring %q", e.Resource)
}

// WithLock repeatedly attempts AcquireLock, sleeping retryIntervalMs
// between attempts, until either it succeeds or timeoutMs elapses. On
// success it invokes fn and always releases the lock afterward,
// regardless of whether fn returned an error (spec.md §4.8).
func (s *Service) WithLock(ctx context.Context, resource string, fn func(ctx context.Context) error, opts WithLockOptions) error {
	ttlMs, timeoutMs, retryIntervalMs := s.effective(opts)
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	ownerID := NewOwnerID()

	for {
		_, acquired, err := s.AcquireLock(ctx, resource, ttlMs, ownerID)
		if err != nil {
			return err
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return &ErrAcquireTimeout{Resource: resource}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(retryIntervalMs) * time.Millisecond):
		}
	}

	fnErr := fn(ctx)
	_, relErr := s.ReleaseLock(ctx, resource, ownerID)
	if fnErr != nil {
		return fnErr
	}
	if relErr != nil {
		s.log.WithFields(logrus.Fields{"resource": resource, "error": relErr}).Warn("release failed after withLock body succeeded")
		return relErr
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
