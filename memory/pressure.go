package memory

import "sync"

// PressureLevel is the ordinal-ordered classification of current/max byte
// usage.
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureModerate
	PressureCritical
	PressureEmergency
)

func (l PressureLevel) String() string {
	switch l {
	case PressureNone:
		return "none"
	case PressureModerate:
		return "moderate"
	case PressureCritical:
		return "critical"
	case PressureEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// AtLeast reports whether l is ordinally at or above other.
func (l PressureLevel) AtLeast(other PressureLevel) bool { return l >= other }

// ShouldEvict reports whether the level warrants eviction — every level but None.
func (l PressureLevel) ShouldEvict() bool { return l != PressureNone }

// IsEmergency reports whether l is the most severe level.
func (l PressureLevel) IsEmergency() bool { return l == PressureEmergency }

// PressureHandler computes/holds the current pressure level and notifies
// subscribers strictly on distinct transitions.
type PressureHandler interface {
	Level() PressureLevel
	Subscribe() (ch <-chan PressureLevel, cancel func())
}

// thresholdBroadcast is the shared subscriber/replay plumbing for both
// handler implementations: late subscribers immediately receive the
// current level (BehaviorSubject semantics), and emission is deduplicated
// against the last-sent value.
type thresholdBroadcast struct {
	mu        sync.Mutex
	current   PressureLevel
	listeners map[chan PressureLevel]struct{}
}

func newThresholdBroadcast() *thresholdBroadcast {
	return &thresholdBroadcast{listeners: make(map[chan PressureLevel]struct{})}
}

func (b *thresholdBroadcast) level() PressureLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *thresholdBroadcast) subscribe() (<-chan PressureLevel, func()) {
	b.mu.Lock()
	ch := make(chan PressureLevel, 1)
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

// set applies level if it differs from the current one, and fans it out
// to every subscriber. Returns whether a transition happened.
func (b *thresholdBroadcast) set(level PressureLevel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == level {
		return false
	}
	b.current = level
	for ch := range b.listeners {
		select {
		case <-ch: // drop the stale buffered value, if any
		default:
		}
		ch <- level
	}
	return true
}

// ThresholdHandler computes PressureLevel from current/max bytes using the
// Config's moderate/critical thresholds.
type ThresholdHandler struct {
	cfg  Config
	bc   *thresholdBroadcast
}

// NewThresholdHandler builds a handler starting at PressureNone.
func NewThresholdHandler(cfg Config) *ThresholdHandler {
	return &ThresholdHandler{cfg: cfg, bc: newThresholdBroadcast()}
}

// Level returns the last-computed level.
func (h *ThresholdHandler) Level() PressureLevel { return h.bc.level() }

// Subscribe returns a replaying channel of level changes and a cancel func.
func (h *ThresholdHandler) Subscribe() (<-chan PressureLevel, func()) { return h.bc.subscribe() }

// Update recomputes the level from current/max and emits on change. With
// unlimited capacity (max == 0, i.e. Config.Unlimited()) the level is
// permanently None.
func (h *ThresholdHandler) Update(current, max int64) PressureLevel {
	if h.cfg.Unlimited() || max <= 0 {
		h.bc.set(PressureNone)
		return PressureNone
	}

	usage := float64(current) / float64(max)
	level := PressureNone
	switch {
	case usage >= 1.0:
		level = PressureEmergency
	case usage >= h.cfg.Critical:
		level = PressureCritical
	case usage >= h.cfg.Moderate:
		level = PressureModerate
	}

	h.bc.set(level)
	return level
}

// ManualHandler allows direct level assertion, bypassing threshold math —
// useful for tests and for hosts that compute pressure from external
// signals (OS memory pressure notifications, cgroup limits, ...).
type ManualHandler struct {
	bc *thresholdBroadcast
}

// NewManualHandler builds a manual handler starting at PressureNone.
func NewManualHandler() *ManualHandler {
	return &ManualHandler{bc: newThresholdBroadcast()}
}

// Level returns the last-asserted level.
func (h *ManualHandler) Level() PressureLevel { return h.bc.level() }

// Subscribe returns a replaying channel of level changes and a cancel func.
func (h *ManualHandler) Subscribe() (<-chan PressureLevel, func()) { return h.bc.subscribe() }

// Assert sets the level directly, emitting only on change.
func (h *ManualHandler) Assert(level PressureLevel) { h.bc.set(level) }
