// Package nexusconfig loads the store's runtime configuration from
// environment variables (NEXUS_-prefixed) or an optional YAML file,
// backed by viper.
package nexusconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/evalgo-org/nexus-store/memory"
	"github.com/evalgo-org/nexus-store/reliability"
)

// WritePolicy mirrors nexusstore.WritePolicy without importing it (config
// must not depend on the store facade it configures).
type WritePolicy string

const (
	WritePolicyCacheOnly       WritePolicy = "cache_only"
	WritePolicyCacheFirst      WritePolicy = "cache_first"
	WritePolicyCacheAndNetwork WritePolicy = "cache_and_network"
	WritePolicyNetworkFirst    WritePolicy = "network_first"
)

// Config is every tunable the store reads at startup.
type Config struct {
	Memory          memory.Config
	CircuitBreaker  reliability.CircuitBreakerConfig
	Degradation     reliability.DegradationConfig
	HealthCheck     reliability.HealthCheckConfig
	DefaultPolicy   WritePolicy
}

// Load builds a Config from environment variables (and, if present, a
// YAML config file named nexus.yaml on the given search paths), with
// NEXUS_-prefixed keys. Fields not found fall back to DefaultConfig's
// values.
func Load(searchPaths ...string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEXUS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("nexus")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("nexusconfig: reading config: %w", err)
		}
	}

	cfg := Config{
		Memory: memory.Config{
			Moderate: v.GetFloat64("memory.moderate"),
			Critical: v.GetFloat64("memory.critical"),
			Batch:    v.GetInt("memory.batch"),
			Strategy: memory.Strategy(v.GetString("memory.strategy")),
		},
		CircuitBreaker: reliability.CircuitBreakerConfig{
			FailureThreshold: v.GetInt("circuit_breaker.failure_threshold"),
			SuccessThreshold: v.GetInt("circuit_breaker.success_threshold"),
			OpenDuration:     v.GetDuration("circuit_breaker.open_duration"),
			HalfOpenMax:      v.GetInt("circuit_breaker.half_open_max"),
			Enabled:          v.GetBool("circuit_breaker.enabled"),
		},
		Degradation: reliability.DegradationConfig{
			Cooldown:     v.GetDuration("degradation.cooldown"),
			AutoMode:     v.GetBool("degradation.auto_mode"),
			FallbackMode: reliability.DegradationMode(v.GetInt("degradation.fallback_mode")),
		},
		HealthCheck: reliability.HealthCheckConfig{
			CheckInterval: v.GetDuration("health_check.check_interval"),
			Timeout:       v.GetDuration("health_check.timeout"),
			AutoStart:     v.GetBool("health_check.auto_start"),
		},
		DefaultPolicy: WritePolicy(v.GetString("default_policy")),
	}

	if maxBytes := v.GetInt64("memory.max_bytes"); maxBytes > 0 {
		cfg.Memory = cfg.Memory.WithMaxBytes(maxBytes)
	}

	if err := cfg.HealthCheck.Validate(); err != nil {
		return Config{}, err
	}
	if !cfg.Memory.Valid() {
		return Config{}, fmt.Errorf("nexusconfig: invalid memory thresholds moderate=%v critical=%v", cfg.Memory.Moderate, cfg.Memory.Critical)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := memory.DefaultConfig()
	v.SetDefault("memory.moderate", def.Moderate)
	v.SetDefault("memory.critical", def.Critical)
	v.SetDefault("memory.batch", def.Batch)
	v.SetDefault("memory.strategy", string(def.Strategy))
	v.SetDefault("memory.max_bytes", int64(0))

	cb := reliability.DefaultCircuitBreakerConfig()
	v.SetDefault("circuit_breaker.failure_threshold", cb.FailureThreshold)
	v.SetDefault("circuit_breaker.success_threshold", cb.SuccessThreshold)
	v.SetDefault("circuit_breaker.open_duration", cb.OpenDuration)
	v.SetDefault("circuit_breaker.half_open_max", cb.HalfOpenMax)
	v.SetDefault("circuit_breaker.enabled", cb.Enabled)

	deg := reliability.DefaultDegradationConfig()
	v.SetDefault("degradation.cooldown", deg.Cooldown)
	v.SetDefault("degradation.auto_mode", deg.AutoMode)
	v.SetDefault("degradation.fallback_mode", int(deg.FallbackMode))

	v.SetDefault("health_check.check_interval", 30*time.Second)
	v.SetDefault("health_check.timeout", 5*time.Second)
	v.SetDefault("health_check.auto_start", false)

	v.SetDefault("default_policy", string(WritePolicyCacheFirst))
}
