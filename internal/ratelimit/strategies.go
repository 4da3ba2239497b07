package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/evalgo-org/cachyer/internal/adapter"
)

// --- Fixed window (§4.7.1) ---------------------------------------------

// fixedWindowScript performs INCR→set-TTL-on-first-hit→TTL in one atomic
// round trip on script-capable adapters, returning {count, ttl}. It
// increments unconditionally; the comparison against MaxRequests is made
// afterwards by fixedWindowResult.
const fixedWindowScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`

func (s *Service) checkFixedWindow(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	key := s.key(endpoint, identifier)
	count, ttl, err := s.incrWindow(ctx, key, cfg.WindowSeconds)
	if err != nil {
		return Result{}, err
	}
	return fixedWindowResult(count, ttl, cfg), nil
}

// incrWindow is the §4.7.1 atomicity contract: a single script on
// script-capable adapters, or INCR-then-conditional-EXPIRE (in that
// order, using only adapter atomic commands) on adapters without
// scripting — never a silent downgrade of a richer strategy into this
// one, only this strategy's own fallback.
func (s *Service) incrWindow(ctx context.Context, key string, windowSeconds int) (count int64, ttl int64, err error) {
	a := s.facade.Adapter()
	if a.HasScript() {
		raw, err := a.ExecuteScript(ctx, fixedWindowScript, []string{key}, []interface{}{windowSeconds})
		if err != nil {
			return 0, 0, err
		}
		parts, ok := raw.([]interface{})
		if !ok || len(parts) != 2 {
			return 0, 0, adapter.New(adapter.SerializationError, "ratelimit.fixedWindow", key, "unexpected script result shape")
		}
		return toInt64(parts[0]), toInt64(parts[1]), nil
	}

	count, err = a.IncrBy(ctx, key, 1)
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if _, err := a.Expire(ctx, key, int64(windowSeconds)); err != nil {
			return 0, 0, err
		}
	}
	ttl, err = a.TTL(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	return count, ttl, nil
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

func fixedWindowResult(count, ttl int64, cfg EndpointConfig) Result {
	resetIn := ttl
	if resetIn < 0 {
		resetIn = int64(cfg.WindowSeconds)
	}
	resetAt := nowSec() + resetIn
	remaining := cfg.MaxRequests - int(count)
	allowed := count <= int64(cfg.MaxRequests)
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := int64(0)
	if !allowed {
		retryAfter = resetIn
	}
	return Result{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
		Headers:    headers(cfg.MaxRequests, remaining, resetAt, retryAfter, allowed),
	}
}

func (s *Service) peekFixedWindow(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	a := s.facade.Adapter()
	key := s.key(endpoint, identifier)
	raw, ok, err := a.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	var count int64
	if ok {
		count, _ = strconv.ParseInt(raw, 10, 64)
	}
	ttl, err := a.TTL(ctx, key)
	if err != nil {
		return Result{}, err
	}
	return fixedWindowResult(count, ttl, cfg), nil
}

// --- Sliding window ------------------------------------------------------

func (s *Service) checkSlidingWindow(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	a := s.facade.Adapter()
	key := s.key(endpoint, identifier)
	now := nowMs()
	windowMs := int64(cfg.WindowSeconds) * 1000
	floor := now - windowMs

	if _, err := a.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", floor)); err != nil {
		return Result{}, err
	}
	card, err := a.ZCard(ctx, key)
	if err != nil {
		return Result{}, err
	}

	allowed := card < int64(cfg.MaxRequests)
	if allowed {
		if _, err := a.ZAdd(ctx, key, adapter.ZAddOptions{}, adapter.ZMember{Member: requestMember(now), Score: float64(now)}); err != nil {
			return Result{}, err
		}
		if _, err := a.Expire(ctx, key, int64(cfg.WindowSeconds)); err != nil {
			return Result{}, err
		}
		card++
	}

	resetAt := s.slidingResetAt(ctx, key, cfg, now)
	remaining := cfg.MaxRequests - int(card)
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := int64(0)
	if !allowed {
		retryAfter = resetAt - nowSec()
		if retryAfter < 0 {
			retryAfter = 0
		}
	}
	return Result{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
		Headers:    headers(cfg.MaxRequests, remaining, resetAt, retryAfter, allowed),
	}, nil
}

// slidingResetAt derives resetAt from the oldest still-admitted
// request's timestamp plus the window length, per §4.7.2.
func (s *Service) slidingResetAt(ctx context.Context, key string, cfg EndpointConfig, now int64) int64 {
	a := s.facade.Adapter()
	oldest, err := a.ZRange(ctx, key, 0, 0, adapter.RangeOptions{WithScores: true})
	if err != nil || len(oldest) == 0 {
		return now/1000 + int64(cfg.WindowSeconds)
	}
	return int64(oldest[0].Score)/1000 + int64(cfg.WindowSeconds)
}

func (s *Service) peekSlidingWindow(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	a := s.facade.Adapter()
	key := s.key(endpoint, identifier)
	now := nowMs()
	card, err := a.ZCard(ctx, key)
	if err != nil {
		return Result{}, err
	}
	resetAt := s.slidingResetAt(ctx, key, cfg, now)
	remaining := cfg.MaxRequests - int(card)
	if remaining < 0 {
		remaining = 0
	}
	allowed := card < int64(cfg.MaxRequests)
	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   resetAt,
		Headers:   headers(cfg.MaxRequests, remaining, resetAt, 0, allowed),
	}, nil
}

// --- Token bucket ----------------------------------------------------------

func (s *Service) checkTokenBucket(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	a := s.facade.Adapter()
	key := s.key(endpoint, identifier)
	now := nowMs()

	fields, err := a.HGetAll(ctx, key)
	if err != nil {
		return Result{}, err
	}
	tokens, lastRefill := parseBucket(fields, cfg, now)

	elapsedSeconds := float64(now-lastRefill) / 1000
	if elapsedSeconds > 0 {
		tokens += elapsedSeconds * cfg.RefillRate
		if tokens > float64(cfg.BucketSize) {
			tokens = float64(cfg.BucketSize)
		}
	}

	allowed := tokens >= 1
	if allowed {
		tokens--
	}

	if _, err := a.HSet(ctx, key, "tokens", fmt.Sprintf("%f", tokens)); err != nil {
		return Result{}, err
	}
	if _, err := a.HSet(ctx, key, "lastRefill", strconv.FormatInt(now, 10)); err != nil {
		return Result{}, err
	}
	ttlSeconds := bucketRefillSeconds(cfg)
	if _, err := a.Expire(ctx, key, ttlSeconds); err != nil {
		return Result{}, err
	}

	remaining := int(tokens)
	resetAt := nowSec() + ttlSeconds
	retryAfter := int64(0)
	if !allowed {
		missing := 1 - tokens
		if cfg.RefillRate > 0 {
			retryAfter = int64(missing/cfg.RefillRate) + 1
		}
	}
	return Result{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
		Headers:    headers(cfg.BucketSize, remaining, resetAt, retryAfter, allowed),
	}, nil
}

func parseBucket(fields map[string]string, cfg EndpointConfig, now int64) (tokens float64, lastRefill int64) {
	if raw, ok := fields["tokens"]; ok {
		tokens, _ = strconv.ParseFloat(raw, 64)
	} else {
		tokens = float64(cfg.BucketSize)
	}
	if raw, ok := fields["lastRefill"]; ok {
		lastRefill, _ = strconv.ParseInt(raw, 10, 64)
	} else {
		lastRefill = now
	}
	return tokens, lastRefill
}

// bucketRefillSeconds bounds how long an idle bucket's key is kept
// around: the time to refill from empty to full, plus a margin.
func bucketRefillSeconds(cfg EndpointConfig) int64 {
	if cfg.RefillRate <= 0 {
		return 3600
	}
	return int64(float64(cfg.BucketSize)/cfg.RefillRate) + 60
}

func (s *Service) peekTokenBucket(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	a := s.facade.Adapter()
	key := s.key(endpoint, identifier)
	now := nowMs()
	fields, err := a.HGetAll(ctx, key)
	if err != nil {
		return Result{}, err
	}
	tokens, lastRefill := parseBucket(fields, cfg, now)
	elapsedSeconds := float64(now-lastRefill) / 1000
	if elapsedSeconds > 0 {
		tokens += elapsedSeconds * cfg.RefillRate
		if tokens > float64(cfg.BucketSize) {
			tokens = float64(cfg.BucketSize)
		}
	}
	remaining := int(tokens)
	resetAt := nowSec() + bucketRefillSeconds(cfg)
	allowed := tokens >= 1
	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   resetAt,
		Headers:   headers(cfg.BucketSize, remaining, resetAt, 0, allowed),
	}, nil
}

// --- Multi-tier --------------------------------------------------------

// checkMultiTier first peeks every tier without side effects; only if
// every tier would admit does it perform the real, incrementing check
// against each tier. This resolves the spec's "increment each admitted
// tier" wording as "increment only when the whole request is admitted" —
// a slower tier's budget is never consumed by a request a faster tier
// was always going to reject (decision recorded in DESIGN.md).
func (s *Service) checkMultiTier(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	worstResult := Result{Allowed: true}
	for i, tier := range cfg.Tiers {
		peek, err := s.peekFixedWindowKey(ctx, s.tierKey(endpoint, identifier, i), tier)
		if err != nil {
			return Result{}, err
		}
		if !peek.Allowed && (worstResult.Allowed || peek.ResetAt < worstResult.ResetAt) {
			worstResult = peek
		}
		if !peek.Allowed {
			worstResult.Allowed = false
		}
	}
	if !worstResult.Allowed {
		return worstResult, nil
	}

	var last Result
	for i, tier := range cfg.Tiers {
		count, ttl, err := s.incrWindow(ctx, s.tierKey(endpoint, identifier, i), tier.WindowSeconds)
		if err != nil {
			return Result{}, err
		}
		last = fixedWindowResult(count, ttl, tier)
	}
	last.Allowed = true
	return last, nil
}

func (s *Service) peekFixedWindowKey(ctx context.Context, key string, cfg EndpointConfig) (Result, error) {
	a := s.facade.Adapter()
	raw, ok, err := a.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	var count int64
	if ok {
		count, _ = strconv.ParseInt(raw, 10, 64)
	}
	ttl, err := a.TTL(ctx, key)
	if err != nil {
		return Result{}, err
	}
	return fixedWindowResult(count+1, ttl, cfg), nil
}

func (s *Service) peekMultiTier(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	worst := Result{Allowed: true}
	for i, tier := range cfg.Tiers {
		peek, err := s.peekFixedWindowKey(ctx, s.tierKey(endpoint, identifier, i), tier)
		if err != nil {
			return Result{}, err
		}
		if !peek.Allowed {
			worst = peek
			worst.Allowed = false
		}
	}
	return worst, nil
}

// --- Quota ---------------------------------------------------------------

func (s *Service) checkQuota(ctx context.Context, identifier, endpoint string, cfg EndpointConfig, cost int) (Result, error) {
	a := s.facade.Adapter()
	key := s.key(endpoint, identifier)
	now := nowSec()

	fields, err := a.HGetAll(ctx, key)
	if err != nil {
		return Result{}, err
	}
	used, lastReset := parseQuota(fields, now)
	resetTime := lastReset + int64(cfg.QuotaPeriodSeconds)

	if now >= resetTime && lastReset < resetTime {
		used = 0
		lastReset = now
		resetTime = lastReset + int64(cfg.QuotaPeriodSeconds)
	}

	allowed := used+cost <= cfg.QuotaLimit
	if allowed {
		used += cost
	}

	if _, err := a.HSet(ctx, key, "used", strconv.Itoa(used)); err != nil {
		return Result{}, err
	}
	if _, err := a.HSet(ctx, key, "lastReset", strconv.FormatInt(lastReset, 10)); err != nil {
		return Result{}, err
	}
	if _, err := a.Expire(ctx, key, int64(cfg.QuotaPeriodSeconds)*2); err != nil {
		return Result{}, err
	}

	remaining := cfg.QuotaLimit - used
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := int64(0)
	if !allowed {
		retryAfter = resetTime - now
	}
	return Result{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    resetTime,
		RetryAfter: retryAfter,
		Headers:    headers(cfg.QuotaLimit, remaining, resetTime, retryAfter, allowed),
	}, nil
}

func parseQuota(fields map[string]string, now int64) (used int, lastReset int64) {
	if raw, ok := fields["used"]; ok {
		used, _ = strconv.Atoi(raw)
	}
	if raw, ok := fields["lastReset"]; ok {
		lastReset, _ = strconv.ParseInt(raw, 10, 64)
	} else {
		lastReset = now
	}
	return used, lastReset
}

func (s *Service) peekQuota(ctx context.Context, identifier, endpoint string, cfg EndpointConfig) (Result, error) {
	a := s.facade.Adapter()
	key := s.key(endpoint, identifier)
	now := nowSec()
	fields, err := a.HGetAll(ctx, key)
	if err != nil {
		return Result{}, err
	}
	used, lastReset := parseQuota(fields, now)
	resetTime := lastReset + int64(cfg.QuotaPeriodSeconds)
	remaining := cfg.QuotaLimit - used
	if remaining < 0 {
		remaining = 0
	}
	allowed := used < cfg.QuotaLimit
	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   resetTime,
		Headers:   headers(cfg.QuotaLimit, remaining, resetTime, 0, allowed),
	}, nil
}
