// Package cacheconfig loads the four configuration structs
// (facade, action, rate-limit, lock) from environment
// variables, with an optional file-based overlay consulted first.
// Grounded on config/config.go's EnvConfig, generalized with a
// github.com/spf13/viper file layer the way cli/root.go layers viper
// over flags and environment.
package cacheconfig

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfig loads prefixed environment variables, falling back to
// defaults when unset or unparseable. Read-only and holds no I/O state
// beyond the prefix string, matching the teacher's EnvConfig.
type EnvConfig struct {
	prefix string
	v      *viper.Viper
}

// NewEnvConfig builds a loader scoped to prefix. If configFile is
// non-empty, it is read via viper first (YAML/JSON/TOML, by extension)
// so operators can ship a cachyer.yaml instead of exporting every
// variable; missing or unreadable files are silently ignored, since the
// environment remains a complete configuration source on its own.
func NewEnvConfig(prefix, configFile string) *EnvConfig {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if configFile != "" {
		v.SetConfigFile(configFile)
		_ = v.ReadInConfig()
	}
	return &EnvConfig{prefix: prefix, v: v}
}

func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if ec.v.IsSet(key) {
		return ec.v.GetString(key)
	}
	return defaultValue
}

func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if ec.v.IsSet(key) {
		return ec.v.GetInt(key)
	}
	return defaultValue
}

func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if ec.v.IsSet(key) {
		return ec.v.GetBool(key)
	}
	return defaultValue
}

func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if ec.v.IsSet(key) {
		return ec.v.GetDuration(key)
	}
	return defaultValue
}

func (ec *EnvConfig) GetStringMapInt(key string, defaultValue map[string]int) map[string]int {
	if !ec.v.IsSet(key) {
		return defaultValue
	}
	raw := ec.v.GetStringMap(key)
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		if n, ok := v.(int); ok {
			out[k] = n
			continue
		}
		if f, ok := v.(float64); ok {
			out[k] = int(f)
		}
	}
	return out
}

// FacadeConfig configures the Cache Facade (spec.md §6, facade row).
type FacadeConfig struct {
	KeyPrefix         string
	DefaultTTLSeconds int64
	TimeoutMs         int
	Retries           int
	RetryDelayMs      int
	ThrowOnError      bool
	EnableMetrics     bool
	AutoConnect       bool
}

// LoadFacadeConfig loads a FacadeConfig scoped to prefix, optionally
// overlaying configFile.
func LoadFacadeConfig(prefix, configFile string) FacadeConfig {
	ec := NewEnvConfig(prefix, configFile)
	return FacadeConfig{
		KeyPrefix:         ec.GetString("key_prefix", ""),
		DefaultTTLSeconds: int64(ec.GetInt("default_ttl_seconds", 0)),
		TimeoutMs:         ec.GetInt("timeout_ms", 1000),
		Retries:           ec.GetInt("retries", 0),
		RetryDelayMs:      ec.GetInt("retry_delay_ms", 100),
		ThrowOnError:      ec.GetBool("throw_on_error", true),
		EnableMetrics:     ec.GetBool("enable_metrics", true),
		AutoConnect:       ec.GetBool("auto_connect", true),
	}
}

// ActionConfig configures Action Engine execution (spec.md §6, action row).
type ActionConfig struct {
	ErrorStrategy     string
	StepTimeoutMs     int
	Retries           int
	RetryDelayMs      int
	RollbackOnFailure bool
}

// LoadActionConfig loads an ActionConfig scoped to prefix.
func LoadActionConfig(prefix, configFile string) ActionConfig {
	ec := NewEnvConfig(prefix, configFile)
	return ActionConfig{
		ErrorStrategy:     ec.GetString("error_strategy", "skip-dependents"),
		StepTimeoutMs:     ec.GetInt("step_timeout_ms", 0),
		Retries:           ec.GetInt("retries", 0),
		RetryDelayMs:      ec.GetInt("retry_delay_ms", 100),
		RollbackOnFailure: ec.GetBool("rollback_on_failure", false),
	}
}

// RateLimitEndpointConfig is one entry of RateLimitConfig.Endpoints.
type RateLimitEndpointConfig struct {
	MaxRequests   int
	WindowSeconds int
}

// RateLimitConfig configures the Rate-Limit Service (spec.md §6).
type RateLimitConfig struct {
	KeyPrefix     string
	DefaultConfig RateLimitEndpointConfig
	Endpoints     map[string]RateLimitEndpointConfig
}

// LoadRateLimitConfig loads a RateLimitConfig scoped to prefix. Endpoint
// overrides are not environment-loadable (there is no clean env-var shape
// for a dynamic map of structs); they are expected to come from a config
// file overlay or be set programmatically after loading the defaults.
func LoadRateLimitConfig(prefix, configFile string) RateLimitConfig {
	ec := NewEnvConfig(prefix, configFile)
	return RateLimitConfig{
		KeyPrefix: ec.GetString("key_prefix", "ratelimit"),
		DefaultConfig: RateLimitEndpointConfig{
			MaxRequests:   ec.GetInt("default_max_requests", 100),
			WindowSeconds: ec.GetInt("default_window_seconds", 60),
		},
		Endpoints: map[string]RateLimitEndpointConfig{},
	}
}

// LockConfig configures the Lock Service (spec.md §6).
type LockConfig struct {
	KeyPrefix              string
	DefaultTTLMs           int
	DefaultTimeoutMs       int
	DefaultRetryIntervalMs int
}

// LoadLockConfig loads a LockConfig scoped to prefix.
func LoadLockConfig(prefix, configFile string) LockConfig {
	ec := NewEnvConfig(prefix, configFile)
	return LockConfig{
		KeyPrefix:              ec.GetString("key_prefix", "lock"),
		DefaultTTLMs:           ec.GetInt("default_ttl_ms", 10000),
		DefaultTimeoutMs:       ec.GetInt("default_timeout_ms", 5000),
		DefaultRetryIntervalMs: ec.GetInt("default_retry_interval_ms", 100),
	}
}
