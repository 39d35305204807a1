package nexusstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo-org/nexus-store/cachestate"
	"github.com/evalgo-org/nexus-store/interceptor"
	"github.com/evalgo-org/nexus-store/memory"
	"github.com/evalgo-org/nexus-store/metrics"
	"github.com/evalgo-org/nexus-store/nexuserrors"
	"github.com/evalgo-org/nexus-store/nexuslog"
	"github.com/evalgo-org/nexus-store/pending"
	"github.com/evalgo-org/nexus-store/query"
	"github.com/evalgo-org/nexus-store/reliability"
)

// PaginatingBackend is implemented by adapters that paginate natively
// instead of relying on the default materialize-then-slice strategy.
type PaginatingBackend[E any] interface {
	GetAllPaged(ctx context.Context, q query.Query[E]) (PagedResult[E], error)
	WatchAllPaged(ctx context.Context, q query.Query[E]) (<-chan PagedResult[E], func(), error)
}

// Config is every dependency and setting NewStore needs to build a Store.
// Backend and IDOf are required; everything else falls back to a sensible
// default.
type Config[E any, ID comparable] struct {
	Name    string
	Backend Backend[E, ID]
	IDOf    func(item E) ID

	SizeOf memory.SizeEstimator[E]
	TagsOf func(item E) []string

	Chain *interceptor.Chain

	Memory         memory.Config
	CircuitBreaker reliability.CircuitBreakerConfig
	Degradation    reliability.DegradationConfig
	HealthCheck    reliability.HealthCheckConfig
	DefaultPolicy  WritePolicy

	Reporter metrics.Reporter
	Log      logrus.FieldLogger
}

// Store is the entity-oriented facade: it wires a Backend through the
// interceptor chain, tracks freshness in a cachestate.Store, drives
// eviction through a memory.Manager, and guards backend calls with a
// circuit breaker. It also builds a degradation manager (driven by the
// breaker and health state) and a health service, exposed through
// Degradation() and Health(); the store itself does not check the
// degradation mode before a backend call.
type Store[E any, ID comparable] struct {
	mu          sync.RWMutex
	initialized bool

	name    string
	backend Backend[E, ID]
	idOf    func(item E) ID
	sizeOf  memory.SizeEstimator[E]
	tagsOf  func(item E) []string

	chain *interceptor.Chain
	cache *cachestate.Store[ID]
	mem   *memory.Manager[ID]

	cb          *reliability.CircuitBreaker
	degradation *reliability.DegradationManager
	health      *reliability.HealthService

	defaultPolicy   WritePolicy
	reporter        metrics.Reporter
	log             logrus.FieldLogger
	poolUnsubscribe func()
}

// NewStore validates cfg and builds a Store, constructing every
// reliability-layer component from its config. It does not call
// Initialize: the caller decides when backend I/O may begin.
func NewStore[E any, ID comparable](cfg Config[E, ID]) (*Store[E, ID], error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("nexusstore: Config.Backend is required")
	}
	if cfg.IDOf == nil {
		return nil, fmt.Errorf("nexusstore: Config.IDOf is required")
	}

	log := cfg.Log
	if log == nil {
		log = nexuslog.Default
	}
	name := cfg.Name
	if name == "" {
		name = "store"
	}
	sizeOf := cfg.SizeOf
	if sizeOf == nil {
		sizeOf = memory.FixedSize[E]{Bytes: 1}
	}
	tagsOf := cfg.TagsOf
	if tagsOf == nil {
		tagsOf = func(E) []string { return nil }
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = metrics.NoopReporter{}
	}
	memCfg := cfg.Memory
	if memCfg.Strategy == "" {
		memCfg = memory.DefaultConfig()
	}
	if !memCfg.Valid() {
		return nil, fmt.Errorf("nexusstore: invalid memory config: %w", memCfg.Validate())
	}
	hcCfg := cfg.HealthCheck
	if hcCfg.CheckInterval == 0 {
		hcCfg = reliability.HealthCheckConfig{CheckInterval: 30 * time.Second, Timeout: 5 * time.Second}
	}
	if err := hcCfg.Validate(); err != nil {
		return nil, err
	}
	cbCfg := cfg.CircuitBreaker
	if cbCfg.FailureThreshold == 0 {
		cbCfg = reliability.DefaultCircuitBreakerConfig()
	}
	degCfg := cfg.Degradation
	if degCfg.Cooldown == 0 {
		degCfg = reliability.DefaultDegradationConfig()
	}

	chain := cfg.Chain
	if chain == nil {
		chain = interceptor.NewChain()
	}

	mem := memory.NewManager[ID](memCfg, nil, log)
	cb := reliability.NewCircuitBreaker(name, cbCfg, log)
	degradation := reliability.NewDegradationManager(degCfg, log)
	health := reliability.NewHealthService(hcCfg, log)

	s := &Store[E, ID]{
		name:          name,
		backend:       cfg.Backend,
		idOf:          cfg.IDOf,
		sizeOf:        sizeOf,
		tagsOf:        tagsOf,
		chain:         chain,
		cache:         cachestate.NewStore[ID](),
		mem:           mem,
		cb:            cb,
		degradation:   degradation,
		health:        health,
		defaultPolicy: cfg.DefaultPolicy,
		reporter:      reporter,
		log:           log,
	}

	health.Register("backend_sync", reliability.CheckerFunc(s.checkBackendSync))
	return s, nil
}

func (s *Store[E, ID]) checkBackendSync(ctx context.Context) reliability.ComponentHealth {
	switch status := s.backend.SyncStatus(); status {
	case SyncIdle:
		return reliability.ComponentHealth{Status: reliability.StatusHealthy}
	case SyncSyncing:
		return reliability.ComponentHealth{Status: reliability.StatusDegraded, Message: "sync in progress"}
	default:
		return reliability.ComponentHealth{Status: reliability.StatusUnhealthy, Message: string(status)}
	}
}

// Initialize brings the backend online and starts the reliability-layer
// auto-wiring (degradation reacting to circuit breaker and health state,
// and the health service's periodic loop if configured). A no-op if
// already initialized.
func (s *Store[E, ID]) Initialize(ctx context.Context) error {
	s.mu.RLock()
	already := s.initialized
	s.mu.RUnlock()
	if already {
		return nil
	}

	if err := s.backend.Initialize(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.degradation.WatchCircuitBreaker(s.cb)
	s.degradation.WatchHealthService(s.health)
	s.health.Start(ctx)
	s.watchPoolMetrics()
	return nil
}

// watchPoolMetrics forwards circuit breaker state transitions to the
// reporter as PoolMetric, so a host application's metrics backend sees
// breaker state without polling CircuitBreaker() directly.
func (s *Store[E, ID]) watchPoolMetrics() {
	ch, cancel := s.cb.StateStream()
	s.mu.Lock()
	s.poolUnsubscribe = cancel
	s.mu.Unlock()

	go func() {
		for state := range ch {
			s.reporter.ReportPool(metrics.PoolMetric{Name: s.name, State: state.String(), Value: 1})
		}
	}()
}

// Close stops the health loop, degradation subscriptions, and pool metric
// forwarding, then closes the backend.
func (s *Store[E, ID]) Close() error {
	s.health.Stop()
	s.degradation.Close()
	s.mu.RLock()
	poolUnsubscribe := s.poolUnsubscribe
	s.mu.RUnlock()
	if poolUnsubscribe != nil {
		poolUnsubscribe()
	}
	return s.backend.Close()
}

func (s *Store[E, ID]) requireInitialized() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nexuserrors.NewStateError("uninitialized", "initialized")
	}
	return nil
}

// Cache exposes the store's cache-freshness tracking for direct
// invalidation (e.g. InvalidateByTags after an out-of-band mutation).
func (s *Store[E, ID]) Cache() *cachestate.Store[ID] { return s.cache }

// Memory exposes the store's eviction engine for pinning and metrics.
func (s *Store[E, ID]) Memory() *memory.Manager[ID] { return s.mem }

// CircuitBreaker exposes the store's breaker for external state inspection.
func (s *Store[E, ID]) CircuitBreaker() *reliability.CircuitBreaker { return s.cb }

// Degradation exposes the store's degradation manager.
func (s *Store[E, ID]) Degradation() *reliability.DegradationManager { return s.degradation }

// Health exposes the store's health service.
func (s *Store[E, ID]) Health() *reliability.HealthService { return s.health }

func (s *Store[E, ID]) runThroughBreaker(fn func() error) error {
	return s.cb.Execute(fn)
}

// reportOp publishes an OperationMetric for one public method call, timed
// from start.
func (s *Store[E, ID]) reportOp(name string, start time.Time, err error) {
	m := metrics.OperationMetric{Operation: name, Duration: time.Since(start), Success: err == nil}
	if err != nil {
		m.ErrorMsg = err.Error()
	}
	s.reporter.ReportOperation(m)
}

func (s *Store[E, ID]) reportCache(event string, id ID) {
	s.reporter.ReportCache(metrics.CacheMetric{Event: event, Key: fmt.Sprint(id)})
}

func (s *Store[E, ID]) track(item E) {
	id := s.idOf(item)
	s.cache.Save(id, time.Now(), s.tagsOf(item))
	s.mem.RecordItem(id, s.sizeOf.EstimateSize(item))
}

func (s *Store[E, ID]) untrack(id ID) {
	s.cache.Remove(id)
	s.mem.RemoveItem(id)
}

// Get fetches a single entity by id.
func (s *Store[E, ID]) Get(ctx context.Context, id ID) (item *E, err error) {
	start := time.Now()
	defer func() { s.reportOp("get", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return nil, err
	}

	resp, err := s.chain.Execute(interceptor.OpGet, id, func(*interceptor.Context) (any, error) {
		var found *E
		err := s.runThroughBreaker(func() error {
			v, err := s.backend.Get(ctx, id)
			found = v
			return err
		})
		return found, err
	})
	if err != nil {
		return nil, err
	}
	item, _ = resp.(*E)
	if item != nil {
		s.track(*item)
		s.reportCache("hit", id)
	} else {
		s.reportCache("miss", id)
	}
	return item, nil
}

// GetAll fetches every entity matching q.
func (s *Store[E, ID]) GetAll(ctx context.Context, q query.Query[E]) (items []E, err error) {
	start := time.Now()
	defer func() { s.reportOp("get_all", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return nil, err
	}

	resp, err := s.chain.Execute(interceptor.OpGetAll, q, func(*interceptor.Context) (any, error) {
		var items []E
		err := s.runThroughBreaker(func() error {
			v, err := s.backend.GetAll(ctx, q)
			items = v
			return err
		})
		return items, err
	})
	if err != nil {
		return nil, err
	}
	items, _ = resp.([]E)
	for _, item := range items {
		s.track(item)
	}
	return items, nil
}

// GetAllPaged fetches one page matching q, using the backend's native
// pagination when available and falling back to the default
// materialize-then-slice strategy otherwise.
func (s *Store[E, ID]) GetAllPaged(ctx context.Context, q query.Query[E]) (PagedResult[E], error) {
	if err := s.requireInitialized(); err != nil {
		return PagedResult[E]{}, err
	}
	if pb, ok := s.backend.(PaginatingBackend[E]); ok {
		return pb.GetAllPaged(ctx, q)
	}
	// Materialize every match (predicate and ordering only) so paginate
	// can slice the page and report HasNext against the full list.
	full := query.New[E]().WhereExpr(q.Expression())
	for _, ob := range q.OrderBys() {
		full = full.OrderByField(ob.Field, ob.Descending)
	}
	all, err := s.GetAll(ctx, full)
	if err != nil {
		return PagedResult[E]{}, err
	}
	return paginate(all, q), nil
}

type watchHandle[T any] struct {
	ch     <-chan T
	cancel func()
}

// Watch subscribes to changes for a single id.
func (s *Store[E, ID]) Watch(ctx context.Context, id ID) (<-chan *E, func(), error) {
	if err := s.requireInitialized(); err != nil {
		return nil, nil, err
	}

	resp, err := s.chain.Execute(interceptor.OpWatch, id, func(*interceptor.Context) (any, error) {
		var wh watchHandle[*E]
		err := s.runThroughBreaker(func() error {
			ch, cancel, err := s.backend.Watch(ctx, id)
			wh = watchHandle[*E]{ch: ch, cancel: cancel}
			return err
		})
		return wh, err
	})
	if err != nil {
		return nil, nil, err
	}
	wh := resp.(watchHandle[*E])
	return wh.ch, wh.cancel, nil
}

// WatchAll subscribes to changes for every entity matching q.
func (s *Store[E, ID]) WatchAll(ctx context.Context, q query.Query[E]) (<-chan []E, func(), error) {
	if err := s.requireInitialized(); err != nil {
		return nil, nil, err
	}

	resp, err := s.chain.Execute(interceptor.OpWatchAll, q, func(*interceptor.Context) (any, error) {
		var wh watchHandle[[]E]
		err := s.runThroughBreaker(func() error {
			ch, cancel, err := s.backend.WatchAll(ctx, q)
			wh = watchHandle[[]E]{ch: ch, cancel: cancel}
			return err
		})
		return wh, err
	})
	if err != nil {
		return nil, nil, err
	}
	wh := resp.(watchHandle[[]E])
	return wh.ch, wh.cancel, nil
}

func (s *Store[E, ID]) resolvePolicy(opts callOptions) WritePolicy {
	if opts.policy != nil {
		return *opts.policy
	}
	return s.defaultPolicy
}

// dispatchSync routes the sync half of a write per policy: CacheOnly never
// syncs, CacheFirst fires a background sync and swallows its error,
// CacheAndNetwork/NetworkFirst await sync and propagate its error.
func (s *Store[E, ID]) dispatchSync(ctx context.Context, policy WritePolicy) error {
	if !policy.requestsSync() {
		return nil
	}
	if policy.awaitsSync() {
		start := time.Now()
		err := s.runThroughBreaker(func() error { return s.backend.Sync(ctx) })
		s.reporter.ReportSync(metrics.SyncMetric{Operation: policy.String(), Duration: time.Since(start), Success: err == nil})
		return err
	}
	go func() {
		start := time.Now()
		err := s.runThroughBreaker(func() error { return s.backend.Sync(context.Background()) })
		s.reporter.ReportSync(metrics.SyncMetric{Operation: policy.String(), Duration: time.Since(start), Success: err == nil})
		if err != nil {
			s.log.WithError(err).WithField("store", s.name).Debug("background sync failed, discarded per cache_first policy")
		}
	}()
	return nil
}

// Save applies item per policy (the store default, or WithPolicy's
// override): cache write is always synchronous, the sync half is
// dispatched per dispatchSync.
func (s *Store[E, ID]) Save(ctx context.Context, item E, opts ...CallOption) (result E, err error) {
	start := time.Now()
	defer func() { s.reportOp("save", start, err) }()

	var zero E
	if err = s.requireInitialized(); err != nil {
		return zero, err
	}
	o := resolveOptions(opts)
	policy := s.resolvePolicy(o)

	resp, err := s.chain.Execute(interceptor.OpSave, item, func(*interceptor.Context) (any, error) {
		var saved E
		err := s.runThroughBreaker(func() error {
			v, err := s.backend.Save(ctx, item)
			saved = v
			return err
		})
		if err != nil {
			return saved, err
		}
		return saved, s.dispatchSync(ctx, policy)
	})
	if err != nil {
		return zero, err
	}
	saved := resp.(E)
	s.track(saved)
	if len(o.tags) > 0 {
		s.cache.AddTags(s.idOf(saved), o.tags)
	}
	return saved, nil
}

// SaveAll applies items per policy, as Save does for a single item.
func (s *Store[E, ID]) SaveAll(ctx context.Context, items []E, opts ...CallOption) (saved []E, err error) {
	start := time.Now()
	defer func() { s.reportOp("save_all", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return nil, err
	}
	o := resolveOptions(opts)
	policy := s.resolvePolicy(o)

	resp, err := s.chain.Execute(interceptor.OpSaveAll, items, func(*interceptor.Context) (any, error) {
		var saved []E
		err := s.runThroughBreaker(func() error {
			v, err := s.backend.SaveAll(ctx, items)
			saved = v
			return err
		})
		if err != nil {
			return saved, err
		}
		return saved, s.dispatchSync(ctx, policy)
	})
	if err != nil {
		return nil, err
	}
	saved, _ = resp.([]E)
	for _, item := range saved {
		s.track(item)
		if len(o.tags) > 0 {
			s.cache.AddTags(s.idOf(item), o.tags)
		}
	}
	return saved, nil
}

// Delete removes id per policy.
func (s *Store[E, ID]) Delete(ctx context.Context, id ID, opts ...CallOption) (ok bool, err error) {
	start := time.Now()
	defer func() { s.reportOp("delete", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return false, err
	}
	o := resolveOptions(opts)
	policy := s.resolvePolicy(o)

	resp, err := s.chain.Execute(interceptor.OpDelete, id, func(*interceptor.Context) (any, error) {
		var removed bool
		err := s.runThroughBreaker(func() error {
			v, err := s.backend.Delete(ctx, id)
			removed = v
			return err
		})
		if err != nil {
			return removed, err
		}
		return removed, s.dispatchSync(ctx, policy)
	})
	if err != nil {
		return false, err
	}
	ok = resp.(bool)
	if ok {
		s.untrack(id)
	}
	return ok, nil
}

// DeleteAll removes ids per policy, returning the count actually removed.
func (s *Store[E, ID]) DeleteAll(ctx context.Context, ids []ID, opts ...CallOption) (n int, err error) {
	start := time.Now()
	defer func() { s.reportOp("delete_all", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return 0, err
	}
	o := resolveOptions(opts)
	policy := s.resolvePolicy(o)

	resp, err := s.chain.Execute(interceptor.OpDeleteAll, ids, func(*interceptor.Context) (any, error) {
		var removed int
		err := s.runThroughBreaker(func() error {
			v, err := s.backend.DeleteAll(ctx, ids)
			removed = v
			return err
		})
		if err != nil {
			return removed, err
		}
		return removed, s.dispatchSync(ctx, policy)
	})
	if err != nil {
		return 0, err
	}
	n = resp.(int)
	for _, id := range ids {
		s.untrack(id)
	}
	return n, nil
}

// DeleteWhere removes every entity matching q, returning the count
// removed. The matched ids aren't known to the store, so affected cache
// and memory tracking entries stay in place until the caller removes or
// invalidates them (e.g. via Cache().InvalidateByTags); a later Get that
// finds nothing does not remove them.
func (s *Store[E, ID]) DeleteWhere(ctx context.Context, q query.Query[E], opts ...CallOption) (n int, err error) {
	start := time.Now()
	defer func() { s.reportOp("delete_where", start, err) }()

	if err = s.requireInitialized(); err != nil {
		return 0, err
	}
	policy := s.resolvePolicy(resolveOptions(opts))

	resp, err := s.chain.Execute(interceptor.OpDeleteAll, q, func(*interceptor.Context) (any, error) {
		var removed int
		err := s.runThroughBreaker(func() error {
			v, err := s.backend.DeleteWhere(ctx, q)
			removed = v
			return err
		})
		if err != nil {
			return removed, err
		}
		return removed, s.dispatchSync(ctx, policy)
	})
	if err != nil {
		return 0, err
	}
	n = resp.(int)
	return n, nil
}

// Sync forces an immediate backend sync, guarded by the circuit breaker.
func (s *Store[E, ID]) Sync(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		s.reporter.ReportSync(metrics.SyncMetric{Operation: "sync", Duration: time.Since(start), Success: err == nil})
	}()

	if err = s.requireInitialized(); err != nil {
		return err
	}
	_, err = s.chain.Execute(interceptor.OpSync, nil, func(*interceptor.Context) (any, error) {
		return nil, s.runThroughBreaker(func() error { return s.backend.Sync(ctx) })
	})
	return err
}

// SyncStatus reports the backend's current reconciliation state.
func (s *Store[E, ID]) SyncStatus() SyncStatus { return s.backend.SyncStatus() }

// SyncStatusStream returns a replaying channel of sync status changes.
func (s *Store[E, ID]) SyncStatusStream() (<-chan SyncStatus, func()) {
	return s.backend.SyncStatusStream()
}

// PendingChangesCount reports the backend's outstanding pending change count.
func (s *Store[E, ID]) PendingChangesCount() int { return s.backend.PendingChangesCount() }

// PendingChangesStream returns a replaying channel of the backend's
// pending-change list.
func (s *Store[E, ID]) PendingChangesStream() (<-chan []pending.Change[E], func()) {
	return s.backend.PendingChangesStream()
}

// ConflictsStream returns a replaying channel of the backend's conflict list.
func (s *Store[E, ID]) ConflictsStream() (<-chan []pending.Conflict[E], func()) {
	return s.backend.ConflictsStream()
}

// RetryChange asks the backend to retry a pending change.
func (s *Store[E, ID]) RetryChange(ctx context.Context, id string) error {
	return s.backend.RetryChange(ctx, id)
}

// CancelChange asks the backend to cancel and roll back a pending change.
func (s *Store[E, ID]) CancelChange(ctx context.Context, id string) (*pending.Change[E], error) {
	return s.backend.CancelChange(ctx, id)
}
