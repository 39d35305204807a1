// Package pending implements the pending-change ledger shared by every
// backend: a change id -> record map with retry bookkeeping and the
// replay rules applied when a pending change is cancelled.
package pending

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeOp is the kind of mutation a PendingChange represents.
type ChangeOp int

const (
	OpCreate ChangeOp = iota
	OpUpdate
	OpDelete
)

func (o ChangeOp) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change[E] is one pending mutation awaiting sync.
type Change[E any] struct {
	ID          string
	Item        E
	Operation   ChangeOp
	CreatedAt   time.Time
	RetryCount  int
	LastAttempt *time.Time
	Original    *E
}

// Conflict[E] records a change that failed to replay cleanly against the
// backend (e.g. the original it expected to restore no longer matches).
type Conflict[E any] struct {
	Change  Change[E]
	Reason  string
	AtTime  time.Time
}

// Replayer applies the cancel/retry side effects a Ledger can't perform
// itself (it has no backend handle): Save persists v, Delete removes id.
type Replayer[E any, ID comparable] interface {
	Save(item E) error
	Delete(id ID) error
}

// IDOf extracts the entity id from an item, for replay against a backend.
type IDOf[E any, ID comparable] func(item E) ID

type snapshotBroadcast[T any] struct {
	mu        sync.Mutex
	current   []T
	listeners map[chan []T]struct{}
}

func newSnapshotBroadcast[T any]() *snapshotBroadcast[T] {
	return &snapshotBroadcast[T]{listeners: make(map[chan []T]struct{})}
}

func (b *snapshotBroadcast[T]) subscribe() (<-chan []T, func()) {
	b.mu.Lock()
	ch := make(chan []T, 1)
	ch <- append([]T{}, b.current...)
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

func (b *snapshotBroadcast[T]) publish(snapshot []T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = snapshot
	for ch := range b.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- append([]T{}, snapshot...)
	}
}

// Ledger[E, ID] tracks pending changes awaiting sync, publishing a
// broadcast snapshot after every mutation.
type Ledger[E any, ID comparable] struct {
	mu       sync.Mutex
	changes  map[string]*Change[E]
	idOf     IDOf[E, ID]
	changeBC *snapshotBroadcast[Change[E]]
	conflictBC *snapshotBroadcast[Conflict[E]]
	conflicts []Conflict[E]
}

// NewLedger builds an empty Ledger. idOf extracts an entity's id, needed
// to replay Delete operations on cancel.
func NewLedger[E any, ID comparable](idOf IDOf[E, ID]) *Ledger[E, ID] {
	return &Ledger[E, ID]{
		changes:    make(map[string]*Change[E]),
		idOf:       idOf,
		changeBC:   newSnapshotBroadcast[Change[E]](),
		conflictBC: newSnapshotBroadcast[Conflict[E]](),
	}
}

// Add records a new pending change and returns it.
func (l *Ledger[E, ID]) Add(item E, op ChangeOp, original *E) Change[E] {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := &Change[E]{
		ID:        uuid.NewString(),
		Item:      item,
		Operation: op,
		CreatedAt: time.Now(),
		Original:  original,
	}
	l.changes[c.ID] = c
	l.publishLocked()
	return *c
}

// Get returns the change for id, if present.
func (l *Ledger[E, ID]) Get(id string) (Change[E], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.changes[id]
	if !ok {
		return Change[E]{}, false
	}
	return *c, true
}

// Update replaces the item/original of an existing change in place.
func (l *Ledger[E, ID]) Update(id string, item E, original *E) (Change[E], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.changes[id]
	if !ok {
		return Change[E]{}, false
	}
	c.Item = item
	c.Original = original
	l.publishLocked()
	return *c, true
}

// Remove deletes the change from the ledger without replaying anything.
func (l *Ledger[E, ID]) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.changes, id)
	l.publishLocked()
}

// RetryChange bumps retry bookkeeping for id: increments retry_count, sets
// last_attempt = now, and replays the change by saving its item through
// replayer, recording a conflict if that save fails. It does not start a
// backend sync.
func (l *Ledger[E, ID]) RetryChange(id string, replayer Replayer[E, ID]) (Change[E], bool, error) {
	l.mu.Lock()
	c, ok := l.changes[id]
	if !ok {
		l.mu.Unlock()
		return Change[E]{}, false, nil
	}
	now := time.Now()
	c.RetryCount++
	c.LastAttempt = &now
	snapshot := *c
	l.publishLocked()
	l.mu.Unlock()

	err := l.replay(snapshot, replayer)
	return snapshot, true, err
}

// CancelChange removes a pending change and replays its rollback: create
// deletes the item, update/delete restore the original value (which must
// be present for those operations). Returns the removed change.
func (l *Ledger[E, ID]) CancelChange(id string, replayer Replayer[E, ID]) (Change[E], bool, error) {
	l.mu.Lock()
	c, ok := l.changes[id]
	if !ok {
		l.mu.Unlock()
		return Change[E]{}, false, nil
	}
	delete(l.changes, id)
	l.publishLocked()
	l.mu.Unlock()

	err := l.replayCancel(*c, replayer)
	return *c, true, err
}

func (l *Ledger[E, ID]) replayCancel(c Change[E], replayer Replayer[E, ID]) error {
	var err error
	switch c.Operation {
	case OpCreate:
		err = replayer.Delete(l.idOf(c.Item))
	case OpUpdate, OpDelete:
		if c.Original == nil {
			err = fmt.Errorf("pending: cannot cancel %s change %s without an original value", c.Operation, c.ID)
		} else {
			err = replayer.Save(*c.Original)
		}
	default:
		return fmt.Errorf("pending: unknown operation %v", c.Operation)
	}
	if err != nil {
		l.recordConflict(c, err.Error())
	}
	return err
}

func (l *Ledger[E, ID]) replay(c Change[E], replayer Replayer[E, ID]) error {
	if replayer == nil {
		return nil
	}
	err := replayer.Save(c.Item)
	if err != nil {
		l.recordConflict(c, err.Error())
	}
	return err
}

func (l *Ledger[E, ID]) recordConflict(c Change[E], reason string) {
	l.mu.Lock()
	l.conflicts = append(l.conflicts, Conflict[E]{Change: c, Reason: reason, AtTime: time.Now()})
	snapshot := append([]Conflict[E]{}, l.conflicts...)
	l.mu.Unlock()
	l.conflictBC.publish(snapshot)
}

func (l *Ledger[E, ID]) publishLocked() {
	snapshot := make([]Change[E], 0, len(l.changes))
	for _, c := range l.changes {
		snapshot = append(snapshot, *c)
	}
	l.changeBC.publish(snapshot)
}

// PendingChangesStream returns a replaying channel of the full pending
// change list, refreshed after every mutation.
func (l *Ledger[E, ID]) PendingChangesStream() (<-chan []Change[E], func()) {
	return l.changeBC.subscribe()
}

// ConflictsStream returns a replaying channel of the conflict list,
// refreshed whenever a retry or cancel replay fails.
func (l *Ledger[E, ID]) ConflictsStream() (<-chan []Conflict[E], func()) {
	return l.conflictBC.subscribe()
}

// Count returns the number of pending changes.
func (l *Ledger[E, ID]) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes)
}
