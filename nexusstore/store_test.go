package nexusstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-org/nexus-store/faketest"
	"github.com/evalgo-org/nexus-store/metrics"
	"github.com/evalgo-org/nexus-store/nexusstore"
	"github.com/evalgo-org/nexus-store/query"
	"github.com/evalgo-org/nexus-store/reliability"
)

type recordingReporter struct {
	mu   sync.Mutex
	ops  []metrics.OperationMetric
	sync []metrics.SyncMetric
}

func (r *recordingReporter) ReportOperation(m metrics.OperationMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, m)
}
func (r *recordingReporter) ReportCache(metrics.CacheMetric) {}
func (r *recordingReporter) ReportSync(m metrics.SyncMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync = append(r.sync, m)
}
func (r *recordingReporter) ReportError(metrics.ErrorMetric) {}
func (r *recordingReporter) ReportPool(metrics.PoolMetric)   {}

func (r *recordingReporter) operations() []metrics.OperationMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metrics.OperationMetric(nil), r.ops...)
}

type note struct {
	ID   string
	Text string
	Tier int
}

func noteID(n note) string { return n.ID }

func noteField(n note, field string) any {
	switch field {
	case "id":
		return n.ID
	case "text":
		return n.Text
	case "tier":
		return n.Tier
	default:
		return nil
	}
}

func newTestStore(t *testing.T, policy nexusstore.WritePolicy) (*nexusstore.Store[note, string], *faketest.Backend[note, string]) {
	t.Helper()
	backend := faketest.NewBackend[note, string](noteID, noteField)
	store, err := nexusstore.NewStore(nexusstore.Config[note, string]{
		Name:          "notes",
		Backend:       backend,
		IDOf:          noteID,
		DefaultPolicy: policy,
	})
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store, backend
}

func TestStoreSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t, nexusstore.CacheOnly)
	ctx := context.Background()

	saved, err := store.Save(ctx, note{ID: "n1", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", saved.Text)

	got, err := store.Get(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Text)
}

func TestStoreOperationsRequireInitialize(t *testing.T) {
	backend := faketest.NewBackend[note, string](noteID, noteField)
	store, err := nexusstore.NewStore(nexusstore.Config[note, string]{
		Name: "notes", Backend: backend, IDOf: noteID,
	})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "n1")
	assert.Error(t, err)
}

func TestStoreCacheOnlyNeverSyncs(t *testing.T) {
	store, backend := newTestStore(t, nexusstore.CacheOnly)
	_, err := store.Save(context.Background(), note{ID: "n1", Text: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.PendingChangesCount())
}

func TestStoreCacheAndNetworkAwaitsSyncAndPropagatesError(t *testing.T) {
	store, backend := newTestStore(t, nexusstore.CacheAndNetwork)
	backend.FailSync = true

	_, err := store.Save(context.Background(), note{ID: "n1", Text: "a"})
	assert.Error(t, err)
}

func TestStoreCacheFirstSwallowsBackgroundSyncError(t *testing.T) {
	store, backend := newTestStore(t, nexusstore.CacheFirst)
	backend.FailSync = true

	saved, err := store.Save(context.Background(), note{ID: "n1", Text: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", saved.Text)
}

func TestStorePerCallPolicyOverridesDefault(t *testing.T) {
	store, backend := newTestStore(t, nexusstore.CacheOnly)
	backend.FailSync = true

	_, err := store.Save(context.Background(), note{ID: "n1", Text: "a"}, nexusstore.WithPolicy(nexusstore.CacheAndNetwork))
	assert.Error(t, err)
}

func TestStoreGetAllUsesQuery(t *testing.T) {
	store, _ := newTestStore(t, nexusstore.CacheOnly)
	ctx := context.Background()
	_, _ = store.Save(ctx, note{ID: "n1", Text: "a", Tier: 1})
	_, _ = store.Save(ctx, note{ID: "n2", Text: "b", Tier: 2})

	items, err := store.GetAll(ctx, query.New[note]().Where(query.Filter{Field: "tier", Op: query.Eq, Value: 2}))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n2", items[0].ID)
}

func TestStoreGetAllPagedFallsBackToDefaultPagination(t *testing.T) {
	store, _ := newTestStore(t, nexusstore.CacheOnly)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = store.Save(ctx, note{ID: string(rune('a' + i)), Text: "x"})
	}

	page, err := store.GetAllPaged(ctx, query.New[note]().Limit(2))
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.PageInfo.HasNext)
}

func TestStoreGetAllPagedAdvancesMonotonicallyByEndCursor(t *testing.T) {
	store, _ := newTestStore(t, nexusstore.CacheOnly)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = store.Save(ctx, note{ID: string(rune('a' + i)), Text: "x"})
	}
	base := query.New[note]().OrderByField("id", false).Limit(2)

	var seen []string
	page, err := store.GetAllPaged(ctx, base)
	require.NoError(t, err)

	for {
		for _, item := range page.Items {
			seen = append(seen, item.ID)
		}
		if !page.PageInfo.HasNext {
			break
		}
		require.NotNil(t, page.PageInfo.EndCursor)
		page, err = store.GetAllPaged(ctx, base.After(*page.PageInfo.EndCursor))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestStoreDeleteUntracksCache(t *testing.T) {
	store, _ := newTestStore(t, nexusstore.CacheOnly)
	ctx := context.Background()
	_, _ = store.Save(ctx, note{ID: "n1", Text: "a"})

	ok, err := store.Delete(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorePendingChangesForwardToBackend(t *testing.T) {
	store, backend := newTestStore(t, nexusstore.CacheOnly)
	_, _ = store.Save(context.Background(), note{ID: "n1", Text: "a"})

	assert.Equal(t, backend.PendingChangesCount(), store.PendingChangesCount())
}

func TestStoreSyncForcesImmediateReconciliation(t *testing.T) {
	store, backend := newTestStore(t, nexusstore.CacheOnly)
	_, _ = store.Save(context.Background(), note{ID: "n1", Text: "a"})
	require.Equal(t, 1, backend.PendingChangesCount())

	require.NoError(t, store.Sync(context.Background()))
	assert.Equal(t, 0, backend.PendingChangesCount())
}

func TestStoreCircuitBreakerOpensOnRepeatedSyncFailures(t *testing.T) {
	store, backend := newTestStore(t, nexusstore.CacheOnly)
	backend.FailSync = true

	for i := 0; i < 10; i++ {
		_ = store.Sync(context.Background())
	}

	assert.Eventually(t, func() bool {
		return store.CircuitBreaker().State() == reliability.StateOpen
	}, time.Second, 5*time.Millisecond)
}

func TestStoreReportsOperationAndSyncMetrics(t *testing.T) {
	backend := faketest.NewBackend[note, string](noteID, noteField)
	reporter := &recordingReporter{}
	store, err := nexusstore.NewStore(nexusstore.Config[note, string]{
		Name:          "notes",
		Backend:       backend,
		IDOf:          noteID,
		DefaultPolicy: nexusstore.CacheAndNetwork,
		Reporter:      reporter,
	})
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Save(context.Background(), note{ID: "n1", Text: "a"})
	require.NoError(t, err)

	ops := reporter.operations()
	require.NotEmpty(t, ops)
	assert.Equal(t, "save", ops[len(ops)-1].Operation)
	assert.True(t, ops[len(ops)-1].Success)

	require.NotEmpty(t, reporter.sync)
}
