// Package faketest provides an in-memory nexusstore.Backend good enough to
// exercise the store facade end-to-end in tests: it persists in a plain
// map, evaluates queries with query.Evaluator, and simulates sync/pending
// changes through pending.Ledger instead of talking to a real network.
package faketest

import (
	"context"
	"sync"

	"github.com/evalgo-org/nexus-store/nexuserrors"
	"github.com/evalgo-org/nexus-store/nexusstore"
	"github.com/evalgo-org/nexus-store/pending"
	"github.com/evalgo-org/nexus-store/query"
)

// Backend is a map-backed nexusstore.Backend[E, ID]. FailSync, when set,
// makes every Sync call fail (useful for exercising CacheFirst's swallowed
// background errors and CacheAndNetwork's propagated ones).
type Backend[E any, ID comparable] struct {
	mu    sync.Mutex
	idOf  func(E) ID
	eval  query.Evaluator[E]
	items map[ID]E

	watchers     map[ID]map[chan *E]struct{}
	watchAllSubs map[chan []E]query.Query[E]

	ledger     *pending.Ledger[E, ID]
	syncStatus nexusstore.SyncStatus
	syncBC     *syncStatusBroadcast

	initialized bool
	closed      bool

	FailSync bool
}

// NewBackend builds an empty Backend. fieldOf resolves named fields for
// query evaluation.
func NewBackend[E any, ID comparable](idOf func(E) ID, fieldOf query.FieldOf[E]) *Backend[E, ID] {
	return &Backend[E, ID]{
		idOf:         idOf,
		eval:         query.NewEvaluator(fieldOf),
		items:        make(map[ID]E),
		watchers:     make(map[ID]map[chan *E]struct{}),
		watchAllSubs: make(map[chan []E]query.Query[E]),
		ledger:       pending.NewLedger[E, ID](idOf),
		syncStatus:   nexusstore.SyncIdle,
		syncBC:       newSyncStatusBroadcast(),
	}
}

func (b *Backend[E, ID]) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

func (b *Backend[E, ID]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, subs := range b.watchers {
		for ch := range subs {
			close(ch)
		}
		delete(b.watchers, id)
	}
	for ch := range b.watchAllSubs {
		close(ch)
		delete(b.watchAllSubs, ch)
	}
	return nil
}

func (b *Backend[E, ID]) requireInitialized() error {
	if !b.initialized || b.closed {
		return nexuserrors.NewStateError("uninitialized", "initialized")
	}
	return nil
}

func (b *Backend[E, ID]) Get(ctx context.Context, id ID) (*E, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireInitialized(); err != nil {
		return nil, err
	}
	item, ok := b.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (b *Backend[E, ID]) GetAll(ctx context.Context, q query.Query[E]) ([]E, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireInitialized(); err != nil {
		return nil, err
	}
	return b.eval.Evaluate(b.allLocked(), q), nil
}

func (b *Backend[E, ID]) allLocked() []E {
	all := make([]E, 0, len(b.items))
	for _, item := range b.items {
		all = append(all, item)
	}
	return all
}

func (b *Backend[E, ID]) Watch(ctx context.Context, id ID) (<-chan *E, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireInitialized(); err != nil {
		return nil, nil, err
	}

	ch := make(chan *E, 1)
	if item, ok := b.items[id]; ok {
		cp := item
		ch <- &cp
	} else {
		ch <- nil
	}

	if b.watchers[id] == nil {
		b.watchers[id] = make(map[chan *E]struct{})
	}
	b.watchers[id][ch] = struct{}{}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.watchers[id]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

func (b *Backend[E, ID]) WatchAll(ctx context.Context, q query.Query[E]) (<-chan []E, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireInitialized(); err != nil {
		return nil, nil, err
	}

	ch := make(chan []E, 1)
	ch <- b.eval.Evaluate(b.allLocked(), q)
	b.watchAllSubs[ch] = q

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.watchAllSubs[ch]; ok {
			delete(b.watchAllSubs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// notifyLocked pushes the current state to every watcher affected by a
// mutation to id. Must be called with b.mu held.
func (b *Backend[E, ID]) notifyLocked(id ID) {
	if subs, ok := b.watchers[id]; ok {
		item, present := b.items[id]
		for ch := range subs {
			select {
			case <-ch:
			default:
			}
			if present {
				cp := item
				ch <- &cp
			} else {
				ch <- nil
			}
		}
	}
	for ch, q := range b.watchAllSubs {
		result := b.eval.Evaluate(b.allLocked(), q)
		select {
		case <-ch:
		default:
		}
		ch <- result
	}
}

func (b *Backend[E, ID]) Save(ctx context.Context, item E) (E, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireInitialized(); err != nil {
		var zero E
		return zero, err
	}

	id := b.idOf(item)
	original, existed := b.items[id]
	b.items[id] = item

	op := pending.OpCreate
	var originalPtr *E
	if existed {
		op = pending.OpUpdate
		originalPtr = &original
	}
	b.ledger.Add(item, op, originalPtr)

	b.notifyLocked(id)
	return item, nil
}

func (b *Backend[E, ID]) SaveAll(ctx context.Context, items []E) ([]E, error) {
	saved := make([]E, 0, len(items))
	for _, item := range items {
		v, err := b.Save(ctx, item)
		if err != nil {
			return saved, err
		}
		saved = append(saved, v)
	}
	return saved, nil
}

func (b *Backend[E, ID]) Delete(ctx context.Context, id ID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireInitialized(); err != nil {
		return false, err
	}

	original, ok := b.items[id]
	if !ok {
		return false, nil
	}
	delete(b.items, id)
	b.ledger.Add(original, pending.OpDelete, &original)
	b.notifyLocked(id)
	return true, nil
}

func (b *Backend[E, ID]) DeleteAll(ctx context.Context, ids []ID) (int, error) {
	n := 0
	for _, id := range ids {
		ok, err := b.Delete(ctx, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (b *Backend[E, ID]) DeleteWhere(ctx context.Context, q query.Query[E]) (int, error) {
	b.mu.Lock()
	matched := b.eval.Evaluate(b.allLocked(), q)
	b.mu.Unlock()

	n := 0
	for _, item := range matched {
		ok, err := b.Delete(ctx, b.idOf(item))
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (b *Backend[E, ID]) setSyncStatus(s nexusstore.SyncStatus) {
	b.mu.Lock()
	b.syncStatus = s
	b.mu.Unlock()
	b.syncBC.publish(s)
}

func (b *Backend[E, ID]) SyncStatus() nexusstore.SyncStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncStatus
}

func (b *Backend[E, ID]) SyncStatusStream() (<-chan nexusstore.SyncStatus, func()) {
	return b.syncBC.subscribe()
}

// Sync simulates reconciliation by clearing every pending change. FailSync
// makes it fail instead, leaving pending changes untouched.
func (b *Backend[E, ID]) Sync(ctx context.Context) error {
	b.setSyncStatus(nexusstore.SyncSyncing)

	if b.FailSync {
		b.setSyncStatus(nexusstore.SyncError)
		return nexuserrors.NewSyncError("faketest: simulated sync failure", nil)
	}

	b.mu.Lock()
	ids := make([]string, 0)
	for _, c := range b.currentChangesLocked() {
		ids = append(ids, c.ID)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.ledger.Remove(id)
	}
	b.setSyncStatus(nexusstore.SyncIdle)
	return nil
}

func (b *Backend[E, ID]) currentChangesLocked() []pending.Change[E] {
	ch, cancel := b.ledger.PendingChangesStream()
	defer cancel()
	return <-ch
}

func (b *Backend[E, ID]) PendingChangesCount() int { return b.ledger.Count() }

func (b *Backend[E, ID]) SupportsPagination() bool { return false }

func (b *Backend[E, ID]) PendingChangesStream() (<-chan []pending.Change[E], func()) {
	return b.ledger.PendingChangesStream()
}

func (b *Backend[E, ID]) ConflictsStream() (<-chan []pending.Conflict[E], func()) {
	return b.ledger.ConflictsStream()
}

func (b *Backend[E, ID]) RetryChange(ctx context.Context, id string) error {
	_, ok, err := b.ledger.RetryChange(id, &replayerAdapter[E, ID]{b: b})
	if !ok {
		return nexuserrors.NewStateError("no_such_change", "pending_change")
	}
	return err
}

func (b *Backend[E, ID]) CancelChange(ctx context.Context, id string) (*pending.Change[E], error) {
	change, ok, err := b.ledger.CancelChange(id, &replayerAdapter[E, ID]{b: b})
	if !ok {
		return nil, nexuserrors.NewStateError("no_such_change", "pending_change")
	}
	return &change, err
}

// replayerAdapter adapts Backend's context-taking Save/Delete to the
// context-free signature pending.Ledger replays cancel/retry rollbacks
// through.
type replayerAdapter[E any, ID comparable] struct{ b *Backend[E, ID] }

func (r *replayerAdapter[E, ID]) Save(item E) error {
	_, err := r.b.Save(context.Background(), item)
	return err
}

func (r *replayerAdapter[E, ID]) Delete(id ID) error {
	_, err := r.b.Delete(context.Background(), id)
	return err
}
