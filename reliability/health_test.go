package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyChecker() CheckerFunc {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	}
}

func TestHealthServiceAggregatesWorstOf(t *testing.T) {
	hs := NewHealthService(HealthCheckConfig{CheckInterval: time.Second, Timeout: 100 * time.Millisecond}, nil)
	hs.Register("cache", healthyChecker())
	hs.Register("backend", CheckerFunc(func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "slow"}
	}))

	snap := hs.CheckHealth(context.Background())
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.Len(t, snap.Components, 2)
}

func TestHealthServiceTimeoutYieldsUnhealthy(t *testing.T) {
	hs := NewHealthService(HealthCheckConfig{CheckInterval: time.Second, Timeout: 10 * time.Millisecond}, nil)
	hs.Register("slow", CheckerFunc(func(ctx context.Context) ComponentHealth {
		<-ctx.Done()
		return ComponentHealth{Status: StatusHealthy}
	}))

	snap := hs.CheckHealth(context.Background())
	require.Len(t, snap.Components, 1)
	assert.Equal(t, StatusUnhealthy, snap.Components[0].Status)
	assert.Contains(t, snap.Components[0].Message, "timeout")
}

func TestHealthServiceRetriesTransientFailureBeforeReporting(t *testing.T) {
	hs := NewHealthService(HealthCheckConfig{CheckInterval: time.Second, Timeout: 200 * time.Millisecond}, nil)

	var attempts int
	hs.Register("flaky", CheckerFunc(func(ctx context.Context) ComponentHealth {
		attempts++
		if attempts < 3 {
			return ComponentHealth{Status: StatusUnhealthy, Message: "transient"}
		}
		return ComponentHealth{Status: StatusHealthy}
	}))

	snap := hs.CheckHealth(context.Background())
	require.Len(t, snap.Components, 1)
	assert.Equal(t, StatusHealthy, snap.Components[0].Status)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestHealthServicePanicYieldsUnhealthy(t *testing.T) {
	hs := NewHealthService(HealthCheckConfig{CheckInterval: time.Second, Timeout: 50 * time.Millisecond}, nil)
	hs.Register("panicky", CheckerFunc(func(ctx context.Context) ComponentHealth {
		panic("boom")
	}))

	snap := hs.CheckHealth(context.Background())
	require.Len(t, snap.Components, 1)
	assert.Equal(t, StatusUnhealthy, snap.Components[0].Status)
}

func TestHealthServiceReRegisterReplaces(t *testing.T) {
	hs := NewHealthService(HealthCheckConfig{CheckInterval: time.Second, Timeout: 100 * time.Millisecond}, nil)
	hs.Register("cache", CheckerFunc(func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUnhealthy}
	}))
	hs.Register("cache", healthyChecker())

	snap := hs.CheckHealth(context.Background())
	require.Len(t, snap.Components, 1)
	assert.Equal(t, StatusHealthy, snap.Components[0].Status)
}

func TestHealthCheckConfigValidate(t *testing.T) {
	assert.NoError(t, HealthCheckConfig{CheckInterval: time.Second, Timeout: time.Millisecond}.Validate())
	assert.Error(t, HealthCheckConfig{CheckInterval: time.Millisecond, Timeout: time.Second}.Validate())
	assert.Error(t, HealthCheckConfig{}.Validate())
}

func TestHealthServiceStreamPublishesOnEachCheck(t *testing.T) {
	hs := NewHealthService(HealthCheckConfig{CheckInterval: time.Second, Timeout: 100 * time.Millisecond}, nil)
	hs.Register("cache", healthyChecker())

	ch, cancel := hs.HealthStream()
	defer cancel()
	<-ch // initial replay, zero value

	hs.CheckHealth(context.Background())
	snap := <-ch
	assert.Equal(t, StatusHealthy, snap.Status)
}

func TestHealthServiceAutoStartRunsPeriodically(t *testing.T) {
	hs := NewHealthService(HealthCheckConfig{CheckInterval: 10 * time.Millisecond, Timeout: 5 * time.Millisecond, AutoStart: true}, nil)
	hs.Register("cache", healthyChecker())

	ctx, cancel := context.WithCancel(context.Background())
	hs.Start(ctx)
	defer hs.Stop()
	defer cancel()

	assert.Eventually(t, func() bool {
		return hs.LastSnapshot().Status == StatusHealthy && len(hs.LastSnapshot().Components) == 1
	}, time.Second, 5*time.Millisecond)
}
