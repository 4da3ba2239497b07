// Package cachyer is the composition root of the cache stack described in
// SPEC_FULL.md: it wires an Adapter, the Cache Facade, and the Action,
// Rate-Limit and Lock services into one handle. Individual packages under
// internal/ can be used directly by callers inside this module; New is the
// entrypoint for everything else, the analogue of the teacher's top-level
// service constructors in cli/root.go.
package cachyer

import (
	"context"

	"github.com/evalgo-org/cachyer/internal/action"
	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/cacheconfig"
	"github.com/evalgo-org/cachyer/internal/facade"
	"github.com/evalgo-org/cachyer/internal/lock"
	"github.com/evalgo-org/cachyer/internal/ratelimit"
)

// Cache bundles one Facade with the services built on top of it. It owns
// exactly one Adapter, held by its Facade.
type Cache struct {
	Facade    *facade.Facade
	RateLimit *ratelimit.Service
	Lock      *lock.Service
}

// NewInProcess builds a Cache backed by the in-process reference
// adapter, suitable for tests and single-process deployments.
func NewInProcess(facadeCfg facade.Config, rlCfg ratelimit.Config, lockCfg lock.Config, opts ...adapter.InProcessOption) *Cache {
	a := adapter.NewInProcess(opts...)
	return newCache(a, facadeCfg, rlCfg, lockCfg)
}

// NewRedis builds a Cache backed by a Redis/Valkey/DragonflyDB server
// reachable at url.
func NewRedis(ctx context.Context, url string, facadeCfg facade.Config, rlCfg ratelimit.Config, lockCfg lock.Config) (*Cache, error) {
	a, err := adapter.NewRedisAdapter(ctx, url)
	if err != nil {
		return nil, err
	}
	return newCache(a, facadeCfg, rlCfg, lockCfg), nil
}

func newCache(a adapter.Adapter, facadeCfg facade.Config, rlCfg ratelimit.Config, lockCfg lock.Config) *Cache {
	f := facade.New(a, facadeCfg)
	return &Cache{
		Facade:    f,
		RateLimit: ratelimit.New(f, rlCfg),
		Lock:      lock.New(f, lockCfg),
	}
}

// NewAction starts a fresh action-engine builder, bound to no Cache in
// particular: Actions are run against whichever Facade is passed to Run,
// so the same Action definition can execute against different Cache
// instances (e.g. in-process in tests, Redis in production).
func NewAction() *action.Builder {
	return action.NewBuilder()
}

// LoadFacadeConfigFromEnv loads a FacadeConfig from the environment and
// adapts it to facade.Config, sparing cmd/cachyerctl (and any future
// caller within this module) from repeating the field mapping.
func LoadFacadeConfigFromEnv(prefix, configFile string) facade.Config {
	c := cacheconfig.LoadFacadeConfig(prefix, configFile)
	return facade.Config{
		KeyPrefix:         c.KeyPrefix,
		DefaultTTLSeconds: c.DefaultTTLSeconds,
		DefaultTimeoutMs:  c.TimeoutMs,
		DefaultRetries:    c.Retries,
		DefaultRetryDelay: c.RetryDelayMs,
		ThrowOnError:      c.ThrowOnError,
		EnableMetrics:     c.EnableMetrics,
	}
}
