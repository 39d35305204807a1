package nexusconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-org/nexus-store/memory"
)

func TestLoadDefaultsWithNoEnvOrFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, memory.DefaultConfig().Moderate, cfg.Memory.Moderate)
	assert.Equal(t, memory.DefaultConfig().Critical, cfg.Memory.Critical)
	assert.Equal(t, memory.StrategyLRU, cfg.Memory.Strategy)
	assert.True(t, cfg.Memory.Unlimited())

	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)

	assert.Equal(t, WritePolicyCacheFirst, cfg.DefaultPolicy)
	assert.False(t, cfg.HealthCheck.AutoStart)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("NEXUS_MEMORY_MAX_BYTES", "1048576")
	t.Setenv("NEXUS_MEMORY_STRATEGY", "lfu")
	t.Setenv("NEXUS_CIRCUIT_BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("NEXUS_DEFAULT_POLICY", "network_first")

	cfg, err := Load()
	require.NoError(t, err)

	require.False(t, cfg.Memory.Unlimited())
	assert.EqualValues(t, 1048576, *cfg.Memory.MaxBytes)
	assert.Equal(t, memory.StrategyLFU, cfg.Memory.Strategy)
	assert.Equal(t, 9, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, WritePolicyNetworkFirst, cfg.DefaultPolicy)
}

func TestLoadRejectsInvalidMemoryThresholds(t *testing.T) {
	t.Setenv("NEXUS_MEMORY_MODERATE", "0.95")
	t.Setenv("NEXUS_MEMORY_CRITICAL", "0.9")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidHealthCheckTimeout(t *testing.T) {
	t.Setenv("NEXUS_HEALTH_CHECK_CHECK_INTERVAL", "1ms")
	t.Setenv("NEXUS_HEALTH_CHECK_TIMEOUT", "1s")

	_, err := Load()
	assert.Error(t, err)
}
