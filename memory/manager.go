package memory

import (
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/evalgo-org/nexus-store/nexuslog"
)

// TrackedItem is the per-id bookkeeping record the Manager maintains for
// every item it has recorded.
type TrackedItem[ID comparable] struct {
	ID          ID
	Size        int64
	LastAccess  time.Time
	AccessCount int64
}

// Metrics is a point-in-time snapshot published on every state change.
type Metrics struct {
	CurrentBytes  int64
	MaxBytes      int64
	EvictionCount int64
	PinnedCount   int
	PinnedBytes   int64
	ItemCount     int
	PressureLevel PressureLevel
	Timestamp     time.Time
}

// Usage returns CurrentBytes/MaxBytes, 0 when MaxBytes is 0 (unlimited).
func (m Metrics) Usage() float64 {
	if m.MaxBytes == 0 {
		return 0
	}
	return float64(m.CurrentBytes) / float64(m.MaxBytes)
}

// UnpinnedBytes returns the bytes tracked by items that are not pinned.
func (m Metrics) UnpinnedBytes() int64 { return m.CurrentBytes - m.PinnedBytes }

// AvgSize returns the average tracked item size, 0 when empty.
func (m Metrics) AvgSize() float64 {
	if m.ItemCount == 0 {
		return 0
	}
	return float64(m.CurrentBytes) / float64(m.ItemCount)
}

// EvictionFunc is notified with the ids removed by an eviction pass.
type EvictionFunc[ID comparable] func(evicted []ID)

// Manager tracks items, access/frequency counters, and pinning, and drives
// strategy-based eviction as memory pressure rises. It owns a
// ThresholdHandler wired to its own Config.
type Manager[ID comparable] struct {
	mu  sync.Mutex
	cfg Config
	log logrus.FieldLogger

	items   map[ID]*TrackedItem[ID]
	pinned  map[ID]struct{}
	lruOrder *lru.Cache[ID, struct{}] // order tracker for StrategyLRU; nil otherwise

	currentBytes  int64
	evictionCount int64

	pressure *ThresholdHandler
	onEvict  EvictionFunc[ID]

	metricsBC *metricsBroadcast
}

// NewManager builds a Manager from cfg. onEvict may be nil.
func NewManager[ID comparable](cfg Config, onEvict EvictionFunc[ID], log logrus.FieldLogger) *Manager[ID] {
	if log == nil {
		log = nexuslog.Default
	}

	m := &Manager[ID]{
		cfg:       cfg,
		log:       log,
		items:     make(map[ID]*TrackedItem[ID]),
		pinned:    make(map[ID]struct{}),
		pressure:  NewThresholdHandler(cfg),
		onEvict:   onEvict,
		metricsBC: newMetricsBroadcast(),
	}

	if cfg.Strategy == StrategyLRU {
		// A very large bound means the cache itself never auto-evicts;
		// it is used purely as an O(1) recency-ordered index, with
		// byte-based eviction driven externally by RecordItem/Evict.
		c, _ := lru.New[ID, struct{}](math.MaxInt32)
		m.lruOrder = c
	}

	return m
}

// Pressure exposes the manager's pressure handler for subscription.
func (m *Manager[ID]) Pressure() *ThresholdHandler { return m.pressure }

// MetricsStream returns a replaying channel of metric snapshots and a
// cancel func.
func (m *Manager[ID]) MetricsStream() (<-chan Metrics, func()) { return m.metricsBC.subscribe() }

// RecordItem records (or re-records) id with the given size, bumping
// access on a re-record, publishing updated metrics, and enqueueing an
// eviction pass if current bytes crossed the moderate threshold.
func (m *Manager[ID]) RecordItem(id ID, size int64) {
	m.mu.Lock()
	now := time.Now()

	if existing, ok := m.items[id]; ok {
		m.currentBytes += size - existing.Size
		existing.Size = size
		existing.LastAccess = now
		existing.AccessCount++
	} else {
		m.items[id] = &TrackedItem[ID]{ID: id, Size: size, LastAccess: now, AccessCount: 1}
		m.currentBytes += size
	}
	if m.lruOrder != nil {
		m.lruOrder.Add(id, struct{}{})
	}

	level := m.publishLocked(now)
	m.mu.Unlock()

	m.evictForPressure(level)
}

// evictForPressure runs the pressure-coupled eviction synchronously with
// the record that triggered it: Moderate evicts a batch, Critical evicts
// 2*batch, Emergency evicts everything unpinned.
func (m *Manager[ID]) evictForPressure(level PressureLevel) {
	switch level {
	case PressureModerate:
		m.logPressure(level)
		m.Evict(m.cfg.Batch)
	case PressureCritical:
		m.logPressure(level)
		m.Evict(2 * m.cfg.Batch)
	case PressureEmergency:
		m.logPressure(level)
		m.EvictUnpinned()
	}
}

func (m *Manager[ID]) logPressure(level PressureLevel) {
	snapshot := m.Metrics()
	m.log.WithFields(logrus.Fields{
		"level":   level,
		"current": humanize.Bytes(uint64(snapshot.CurrentBytes)),
		"max":     humanize.Bytes(uint64(snapshot.MaxBytes)),
	}).Warn("memory pressure eviction triggered")
}

// RecordAccess bumps last-access/access-count for id. A no-op on an
// unknown id.
func (m *Manager[ID]) RecordAccess(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return
	}
	item.LastAccess = time.Now()
	item.AccessCount++
	if m.lruOrder != nil {
		m.lruOrder.Add(id, struct{}{})
	}
}

// RemoveItem drops id from tracking and the pin set, subtracting its size.
func (m *Manager[ID]) RemoveItem(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	m.publishLocked(time.Now())
}

func (m *Manager[ID]) removeLocked(id ID) {
	if item, ok := m.items[id]; ok {
		m.currentBytes -= item.Size
		delete(m.items, id)
	}
	delete(m.pinned, id)
	if m.lruOrder != nil {
		m.lruOrder.Remove(id)
	}
}

// Pin excludes id from eviction.
func (m *Manager[ID]) Pin(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[id] = struct{}{}
}

// Unpin makes id eligible for eviction again.
func (m *Manager[ID]) Unpin(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pinned, id)
}

// IsPinned reports whether id is currently pinned.
func (m *Manager[ID]) IsPinned(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pinned[id]
	return ok
}

// Evict removes up to count unpinned candidates chosen by the configured
// strategy, invokes onEvict with the removed ids, and returns them.
func (m *Manager[ID]) Evict(count int) []ID {
	m.mu.Lock()
	candidates := m.candidatesLocked()
	if count < len(candidates) {
		candidates = candidates[:count]
	}
	for _, id := range candidates {
		m.removeLocked(id)
	}
	m.evictionCount += int64(len(candidates))
	m.publishLocked(time.Now())
	cb := m.onEvict
	m.mu.Unlock()

	if cb != nil && len(candidates) > 0 {
		cb(candidates)
	}
	return candidates
}

// EvictUnpinned removes every unpinned item.
func (m *Manager[ID]) EvictUnpinned() []ID {
	m.mu.Lock()
	candidates := m.candidatesLocked()
	m.mu.Unlock()
	return m.Evict(len(candidates))
}

// candidatesLocked returns unpinned items ordered best-candidate-first per
// the configured strategy. Must be called with mu held.
func (m *Manager[ID]) candidatesLocked() []ID {
	unpinned := make([]*TrackedItem[ID], 0, len(m.items))
	for id, item := range m.items {
		if _, pinned := m.pinned[id]; !pinned {
			unpinned = append(unpinned, item)
		}
	}

	switch m.cfg.Strategy {
	case StrategyLFU:
		sortBy(unpinned, func(a, b *TrackedItem[ID]) bool {
			if a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			return a.LastAccess.Before(b.LastAccess)
		})
	case StrategySize:
		sortBy(unpinned, func(a, b *TrackedItem[ID]) bool {
			if a.Size != b.Size {
				return a.Size > b.Size
			}
			return a.LastAccess.Before(b.LastAccess)
		})
	default: // StrategyLRU
		if m.lruOrder != nil {
			ids := make([]ID, 0, len(unpinned))
			for _, id := range m.lruOrder.Keys() { // oldest first
				if _, pinned := m.pinned[id]; pinned {
					continue
				}
				if _, tracked := m.items[id]; tracked {
					ids = append(ids, id)
				}
			}
			return ids
		}
		sortBy(unpinned, func(a, b *TrackedItem[ID]) bool {
			return a.LastAccess.Before(b.LastAccess)
		})
	}

	ids := make([]ID, len(unpinned))
	for i, item := range unpinned {
		ids[i] = item.ID
	}
	return ids
}

func sortBy[ID comparable](items []*TrackedItem[ID], less func(a, b *TrackedItem[ID]) bool) {
	// Insertion sort is sufficient: eviction batches are small relative
	// to total tracked items, and determinism matters more than
	// asymptotic complexity here.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// Metrics returns the current snapshot.
func (m *Manager[ID]) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(time.Now())
}

// publishLocked recomputes metrics and pressure level and fans both out.
// Must be called with mu held; returns the newly computed level so the
// caller can run eviction synchronously after releasing the lock.
func (m *Manager[ID]) publishLocked(now time.Time) PressureLevel {
	snapshot := m.snapshotLocked(now)

	var maxBytes int64
	if !m.cfg.Unlimited() {
		maxBytes = *m.cfg.MaxBytes
	}
	level := m.pressure.Update(m.currentBytes, maxBytes)
	snapshot.PressureLevel = level

	m.metricsBC.publish(snapshot)
	return level
}

func (m *Manager[ID]) snapshotLocked(now time.Time) Metrics {
	var maxBytes int64
	if !m.cfg.Unlimited() {
		maxBytes = *m.cfg.MaxBytes
	}

	var pinnedBytes int64
	for id := range m.pinned {
		if item, ok := m.items[id]; ok {
			pinnedBytes += item.Size
		}
	}

	return Metrics{
		CurrentBytes:  m.currentBytes,
		MaxBytes:      maxBytes,
		EvictionCount: m.evictionCount,
		PinnedCount:   len(m.pinned),
		PinnedBytes:   pinnedBytes,
		ItemCount:     len(m.items),
		PressureLevel: m.pressure.Level(),
		Timestamp:     now,
	}
}

// metricsBroadcast mirrors thresholdBroadcast's replay semantics for Metrics.
type metricsBroadcast struct {
	mu        sync.Mutex
	current   Metrics
	listeners map[chan Metrics]struct{}
}

func newMetricsBroadcast() *metricsBroadcast {
	return &metricsBroadcast{listeners: make(map[chan Metrics]struct{})}
}

func (b *metricsBroadcast) subscribe() (<-chan Metrics, func()) {
	b.mu.Lock()
	ch := make(chan Metrics, 1)
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

func (b *metricsBroadcast) publish(m Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = m
	for ch := range b.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- m
	}
}
