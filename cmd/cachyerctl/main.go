// Command cachyerctl is a minimal composition-root binary exercising the
// cache stack end to end, the demonstration analogue of the teacher's
// cli/ + main.go (trimmed to this module's domain; CLI/packaging beyond
// this minimal binary is a Non-goal per SPEC_FULL.md §11).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/evalgo-org/cachyer"
	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/cachelog"
	"github.com/evalgo-org/cachyer/internal/descriptor"
	"github.com/evalgo-org/cachyer/internal/facade"
	"github.com/evalgo-org/cachyer/internal/keybuilder"
	"github.com/evalgo-org/cachyer/internal/lock"
	"github.com/evalgo-org/cachyer/internal/ratelimit"
)

func main() {
	redisURL := flag.String("redis-url", "", "Redis/Valkey/DragonflyDB URL; empty uses the in-process adapter")
	endpoint := flag.String("endpoint", "demo", "rate-limit endpoint name to exercise")
	identifier := flag.String("id", "local", "rate-limit/lock identifier to exercise")
	flag.Parse()

	log := cachelog.WithComponent("cachyerctl")
	ctx := context.Background()

	c, err := buildCache(ctx, *redisURL)
	if err != nil {
		log.WithField("error", err).Error("failed to build cache")
		os.Exit(1)
	}

	if err := demoFacade(ctx, c.Facade); err != nil {
		log.WithField("error", err).Error("facade demo failed")
		os.Exit(1)
	}

	if err := demoRateLimit(ctx, c.RateLimit, *identifier, *endpoint); err != nil {
		log.WithField("error", err).Error("rate-limit demo failed")
		os.Exit(1)
	}

	if err := demoLock(ctx, c.Lock, *identifier); err != nil {
		log.WithField("error", err).Error("lock demo failed")
		os.Exit(1)
	}

	fmt.Println("cachyerctl: facade, rate-limit and lock demos completed")
}

func buildCache(ctx context.Context, redisURL string) (*cachyer.Cache, error) {
	facadeCfg := cachyer.LoadFacadeConfigFromEnv("CACHYER", "")
	rlCfg := ratelimit.Config{
		KeyPrefix: "ratelimit",
		DefaultConfig: ratelimit.EndpointConfig{
			Strategy:      ratelimit.FixedWindow,
			MaxRequests:   5,
			WindowSeconds: 60,
		},
	}
	lockCfg := lock.Config{
		KeyPrefix:              "lock",
		DefaultTTLMs:           10000,
		DefaultTimeoutMs:       5000,
		DefaultRetryIntervalMs: 100,
	}

	if redisURL == "" {
		return cachyer.NewInProcess(facadeCfg, rlCfg, lockCfg), nil
	}
	return cachyer.NewRedis(ctx, redisURL, facadeCfg, rlCfg, lockCfg)
}

func demoFacade(ctx context.Context, f *facade.Facade) error {
	template := keybuilder.New("cachyerctl:{name}")
	schema := descriptor.NewSchema("demo", template, adapter.TagString).WithTTL(60)
	for _, d := range descriptor.BuiltinDescriptors(adapter.TagString) {
		schema.Register(d)
	}

	setDesc, _ := schema.Describe("set")
	key, err := template.Build(map[string]string{"name": "greeting"})
	if err != nil {
		return err
	}
	if _, err := f.Execute(ctx, setDesc, map[string]interface{}{
		"key": key, "value": "hello from cachyerctl", "opts": adapter.SetOptions{},
	}, facade.Options{}); err != nil {
		return err
	}

	getDesc, _ := schema.Describe("get")
	value, err := f.Execute(ctx, getDesc, map[string]interface{}{"key": key}, facade.Options{})
	if err != nil {
		return err
	}
	fmt.Printf("facade: %s = %v\n", key, value)
	return nil
}

func demoRateLimit(ctx context.Context, svc *ratelimit.Service, identifier, endpoint string) error {
	for i := 0; i < 3; i++ {
		result, err := svc.Check(ctx, identifier, endpoint)
		if err != nil {
			return err
		}
		fmt.Printf("ratelimit: attempt %d -> %s\n", i+1, result.Summary())
	}
	return nil
}

func demoLock(ctx context.Context, svc *lock.Service, identifier string) error {
	resource := "cachyerctl:" + identifier
	return svc.WithLock(ctx, resource, func(ctx context.Context) error {
		fmt.Println("lock: critical section entered")
		time.Sleep(10 * time.Millisecond)
		return nil
	}, lock.WithLockOptions{})
}
