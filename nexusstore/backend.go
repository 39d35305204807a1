// Package nexusstore provides the Store[E, ID] facade: it wires a Backend
// adapter through the interceptor chain, the tag-indexed cache layer, the
// memory-pressure manager, and the reliability layer into one uniform
// entity-oriented data access surface.
package nexusstore

import (
	"context"
	"time"

	"github.com/evalgo-org/nexus-store/pending"
	"github.com/evalgo-org/nexus-store/query"
)

// SyncStatus reports a backend's current reconciliation state.
type SyncStatus string

const (
	SyncIdle     SyncStatus = "idle"
	SyncSyncing  SyncStatus = "syncing"
	SyncError    SyncStatus = "error"
	SyncOffline  SyncStatus = "offline"
)

// Backend is the seam to an external storage engine, per the external
// interfaces contract: a concrete adapter (in-memory, SQLite, CRDT-replicated
// SQLite) implements this and the Store facade drives it. CRDT-specific
// capabilities are exposed through CRDTCapable rather than forced onto
// every adapter.
type Backend[E any, ID comparable] interface {
	Get(ctx context.Context, id ID) (*E, error)
	GetAll(ctx context.Context, q query.Query[E]) ([]E, error)
	Watch(ctx context.Context, id ID) (<-chan *E, func(), error)
	WatchAll(ctx context.Context, q query.Query[E]) (<-chan []E, func(), error)

	Save(ctx context.Context, item E) (E, error)
	SaveAll(ctx context.Context, items []E) ([]E, error)
	Delete(ctx context.Context, id ID) (bool, error)
	DeleteAll(ctx context.Context, ids []ID) (int, error)
	DeleteWhere(ctx context.Context, q query.Query[E]) (int, error)

	SyncStatus() SyncStatus
	SyncStatusStream() (<-chan SyncStatus, func())
	Sync(ctx context.Context) error
	PendingChangesCount() int

	SupportsPagination() bool

	PendingChangesStream() (<-chan []pending.Change[E], func())
	ConflictsStream() (<-chan []pending.Conflict[E], func())
	RetryChange(ctx context.Context, id string) error
	CancelChange(ctx context.Context, id string) (*pending.Change[E], error)

	Initialize(ctx context.Context) error
	Close() error
}

// CRDTCapable is an optional capability a Backend may additionally
// implement when it is CRDT-replicated. Callers type-assert for it rather
// than it being part of the core Backend contract.
type CRDTCapable[E any] interface {
	NodeID() string
	GetChangeset(ctx context.Context, since *time.Time) ([]byte, error)
	ApplyChangeset(ctx context.Context, cs []byte) error
}
