package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/evalgo-org/nexus-store/nexuslog"
)

// HealthStatus is the ordinal lattice Healthy < Degraded < Unhealthy.
type HealthStatus int

const (
	StatusHealthy HealthStatus = iota
	StatusDegraded
	StatusUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ComponentHealth is one checker's latest result.
type ComponentHealth struct {
	Name         string
	Status       HealthStatus
	CheckedAt    time.Time
	Message      string
	ResponseTime time.Duration
	Details      map[string]any
}

// SystemHealth aggregates every component's health by worst-of.
type SystemHealth struct {
	Status     HealthStatus
	Components []ComponentHealth
	CheckedAt  time.Time
}

// Checker probes one dependency's health.
type Checker interface {
	Check(ctx context.Context) ComponentHealth
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) ComponentHealth

func (f CheckerFunc) Check(ctx context.Context) ComponentHealth { return f(ctx) }

// HealthCheckConfig governs check cadence and per-checker timeout.
// Timeout must be <= CheckInterval.
type HealthCheckConfig struct {
	CheckInterval time.Duration
	Timeout       time.Duration
	AutoStart     bool
}

// Validate enforces the config invariants: positive durations and
// timeout <= check_interval.
func (c HealthCheckConfig) Validate() error {
	if c.CheckInterval <= 0 || c.Timeout <= 0 {
		return fmt.Errorf("reliability: check_interval and timeout must be positive")
	}
	if c.Timeout > c.CheckInterval {
		return fmt.Errorf("reliability: timeout (%s) must be <= check_interval (%s)", c.Timeout, c.CheckInterval)
	}
	return nil
}

// HealthService runs a registry of named checkers, aggregating their
// results into a SystemHealth snapshot.
type HealthService struct {
	mu       sync.Mutex
	cfg      HealthCheckConfig
	log      logrus.FieldLogger
	checkers map[string]Checker

	last   SystemHealth
	cancel context.CancelFunc
	bc     *healthBroadcast
}

// NewHealthService builds a service with the given config. A nil log
// defaults to the package default logger.
func NewHealthService(cfg HealthCheckConfig, log logrus.FieldLogger) *HealthService {
	if log == nil {
		log = nexuslog.Default
	}
	return &HealthService{cfg: cfg, log: log, checkers: make(map[string]Checker), bc: newHealthBroadcast()}
}

// HealthStream returns a replaying channel of SystemHealth snapshots,
// published after every CheckHealth call (including ones driven by the
// AutoStart loop), so a DegradationManager can auto-demote off it the same
// way it does off a CircuitBreaker's state stream.
func (hs *HealthService) HealthStream() (<-chan SystemHealth, func()) {
	return hs.bc.subscribe()
}

type healthBroadcast struct {
	mu        sync.Mutex
	current   SystemHealth
	listeners map[chan SystemHealth]struct{}
}

func newHealthBroadcast() *healthBroadcast {
	return &healthBroadcast{listeners: make(map[chan SystemHealth]struct{})}
}

func (b *healthBroadcast) subscribe() (<-chan SystemHealth, func()) {
	b.mu.Lock()
	ch := make(chan SystemHealth, 1)
	ch <- b.current
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.listeners[ch]; ok {
			delete(b.listeners, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *healthBroadcast) publish(s SystemHealth) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = s
	for ch := range b.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Register adds or replaces the checker for name.
func (hs *HealthService) Register(name string, checker Checker) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checkers[name] = checker
}

// CheckHealth runs every registered checker concurrently, each bounded by
// the configured timeout, and returns the aggregated SystemHealth.
func (hs *HealthService) CheckHealth(ctx context.Context) SystemHealth {
	hs.mu.Lock()
	names := make([]string, 0, len(hs.checkers))
	checkers := make(map[string]Checker, len(hs.checkers))
	for name, c := range hs.checkers {
		names = append(names, name)
		checkers[name] = c
	}
	hs.mu.Unlock()

	results := make([]ComponentHealth, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = hs.runOne(gctx, name, checkers[name])
			return nil
		})
	}
	_ = g.Wait()

	status := StatusHealthy
	for _, r := range results {
		if r.Status > status {
			status = r.Status
		}
	}

	snapshot := SystemHealth{Status: status, Components: results, CheckedAt: time.Now()}
	hs.mu.Lock()
	hs.last = snapshot
	hs.mu.Unlock()
	hs.bc.publish(snapshot)
	return snapshot
}

func (hs *HealthService) runOne(ctx context.Context, name string, checker Checker) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, hs.cfg.Timeout)
	defer cancel()

	start := time.Now()
	health := hs.probeWithRetry(checkCtx, name, checker)
	health.CheckedAt = time.Now()
	health.ResponseTime = time.Since(start)
	return health
}

// probeWithRetry runs checker, retrying an Unhealthy result with bounded
// exponential backoff (giving a transient probe failure a few chances to
// clear) until ctx's deadline before reporting it. A Healthy or Degraded
// result is returned immediately.
func (hs *HealthService) probeWithRetry(ctx context.Context, name string, checker Checker) ComponentHealth {
	var last ComponentHealth

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = hs.cfg.Timeout / 4
	boCtx := backoff.WithContext(bo, ctx)

	_ = backoff.Retry(func() error {
		last = hs.probeOnce(ctx, name, checker)
		if last.Status == StatusUnhealthy {
			return fmt.Errorf("%s: %s", name, last.Message)
		}
		return nil
	}, boCtx)

	return last
}

func (hs *HealthService) probeOnce(ctx context.Context, name string, checker Checker) ComponentHealth {
	type outcome struct {
		health ComponentHealth
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{health: ComponentHealth{
					Name: name, Status: StatusUnhealthy,
					Message: fmt.Sprintf("panic: %v", r),
				}}
			}
		}()
		h := checker.Check(ctx)
		h.Name = name
		done <- outcome{health: h}
	}()

	select {
	case o := <-done:
		return o.health
	case <-ctx.Done():
		return ComponentHealth{Name: name, Status: StatusUnhealthy, Message: "timeout"}
	}
}

// LastSnapshot returns the most recently computed SystemHealth.
func (hs *HealthService) LastSnapshot() SystemHealth {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.last
}

// Start launches the periodic check loop if AutoStart is set, stopping
// when ctx is done. A no-op if AutoStart is false or Start was already
// called.
func (hs *HealthService) Start(ctx context.Context) {
	if !hs.cfg.AutoStart {
		return
	}
	hs.mu.Lock()
	if hs.cancel != nil {
		hs.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	hs.cancel = cancel
	hs.mu.Unlock()

	go func() {
		ticker := time.NewTicker(hs.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				hs.CheckHealth(loopCtx)
			}
		}
	}()
}

// Stop halts the periodic loop started by Start.
func (hs *HealthService) Stop() {
	hs.mu.Lock()
	cancel := hs.cancel
	hs.cancel = nil
	hs.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
