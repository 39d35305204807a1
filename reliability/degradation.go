package reliability

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo-org/nexus-store/nexuslog"
)

// DegradationMode is the ordinal capability lattice Normal < CacheOnly <
// ReadOnly < Offline.
type DegradationMode int

const (
	Normal DegradationMode = iota
	CacheOnly
	ReadOnly
	Offline
)

func (m DegradationMode) String() string {
	switch m {
	case Normal:
		return "normal"
	case CacheOnly:
		return "cache_only"
	case ReadOnly:
		return "read_only"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// AllowsReads reports whether reads succeed in mode m: every mode but Offline.
func (m DegradationMode) AllowsReads() bool { return m != Offline }

// AllowsWrites reports whether writes succeed in mode m: Normal only.
func (m DegradationMode) AllowsWrites() bool { return m == Normal }

// AllowsBackendCalls reports whether backend I/O is attempted in mode m.
func (m DegradationMode) AllowsBackendCalls() bool { return m == Normal || m == ReadOnly }

// DegradationConfig governs auto-demotion and recovery cooldown.
type DegradationConfig struct {
	Cooldown     time.Duration
	AutoMode     bool
	FallbackMode DegradationMode
}

// DefaultDegradationConfig returns a 60s cooldown with auto mode disabled.
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{Cooldown: 60 * time.Second, FallbackMode: ReadOnly}
}

// DegradationManager tracks the store's current capability mode and the
// transition history that drives cooldown-gated recovery.
type DegradationManager struct {
	mu  sync.Mutex
	cfg DegradationConfig
	log logrus.FieldLogger

	currentMode    DegradationMode
	degradationCnt int
	recoveryCnt    int
	lastModeChange time.Time

	unsubscribe []func()
}

// NewDegradationManager builds a manager starting at Normal.
func NewDegradationManager(cfg DegradationConfig, log logrus.FieldLogger) *DegradationManager {
	if log == nil {
		log = nexuslog.Default
	}
	return &DegradationManager{cfg: cfg, log: log, lastModeChange: time.Now()}
}

// CurrentMode returns the active mode.
func (dm *DegradationManager) CurrentMode() DegradationMode {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.currentMode
}

// Counts returns (degradation_count, recovery_count).
func (dm *DegradationManager) Counts() (int, int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.degradationCnt, dm.recoveryCnt
}

// Degrade transitions to mode m. Setting the current mode again is
// idempotent: no count increment, no last_mode_change update.
func (dm *DegradationManager) Degrade(m DegradationMode) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.currentMode == m {
		return
	}
	dm.currentMode = m
	dm.degradationCnt++
	dm.lastModeChange = time.Now()
	dm.log.WithFields(logrus.Fields{"mode": m}).Warn("store degraded")
}

// Recover transitions to mode to when CanRecover holds.
// A no-op while the cooldown has not elapsed.
func (dm *DegradationManager) Recover(to DegradationMode) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.currentMode == to {
		return
	}
	if !dm.canRecoverLocked() {
		return
	}
	dm.currentMode = to
	dm.recoveryCnt++
	dm.lastModeChange = time.Now()
	dm.log.WithFields(logrus.Fields{"mode": to}).Info("store recovered")
}

// CanRecover reports whether enough time has passed since the last mode
// change for a recovery to be attempted.
func (dm *DegradationManager) CanRecover() bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.canRecoverLocked()
}

func (dm *DegradationManager) canRecoverLocked() bool {
	return time.Since(dm.lastModeChange) >= dm.cfg.Cooldown
}

// WatchCircuitBreaker wires auto-mode demotion/recovery to cb's state
// stream: Open degrades to the configured fallback mode, Closed recovers
// to Normal once the cooldown has passed. A no-op unless AutoMode is set.
func (dm *DegradationManager) WatchCircuitBreaker(cb *CircuitBreaker) {
	if !dm.cfg.AutoMode {
		return
	}
	ch, cancel := cb.StateStream()
	dm.mu.Lock()
	dm.unsubscribe = append(dm.unsubscribe, cancel)
	dm.mu.Unlock()

	go func() {
		for state := range ch {
			switch state {
			case StateOpen:
				dm.Degrade(dm.cfg.FallbackMode)
			case StateClosed:
				dm.Recover(Normal)
			}
		}
	}()
}

// WatchHealthService wires auto-mode demotion/recovery to hs's health
// stream via OnHealthChange. A no-op unless AutoMode is set.
func (dm *DegradationManager) WatchHealthService(hs *HealthService) {
	if !dm.cfg.AutoMode {
		return
	}
	ch, cancel := hs.HealthStream()
	dm.mu.Lock()
	dm.unsubscribe = append(dm.unsubscribe, cancel)
	dm.mu.Unlock()

	go func() {
		for snapshot := range ch {
			dm.OnHealthChange(snapshot.Status)
		}
	}()
}

// OnHealthChange reacts to a health status transition: Unhealthy degrades
// to the fallback mode, Healthy recovers (cooldown-gated), Degraded is a
// no-op.
func (dm *DegradationManager) OnHealthChange(status HealthStatus) {
	switch status {
	case StatusUnhealthy:
		dm.Degrade(dm.cfg.FallbackMode)
	case StatusHealthy:
		dm.Recover(Normal)
	}
}

// Close stops every subscription established by WatchCircuitBreaker and
// WatchHealthService.
func (dm *DegradationManager) Close() {
	dm.mu.Lock()
	unsub := dm.unsubscribe
	dm.unsubscribe = nil
	dm.mu.Unlock()
	for _, cancel := range unsub {
		cancel()
	}
}

// Worst returns the most severe mode in modes, per the lattice ordering;
// an empty input is Normal (worst([]) treated as worst([Normal])).
func Worst(modes ...DegradationMode) DegradationMode {
	worst := Normal
	for _, m := range modes {
		if m > worst {
			worst = m
		}
	}
	return worst
}
